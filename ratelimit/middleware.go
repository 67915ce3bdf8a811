package ratelimit

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
)

// APIKeyHeader identifies the client when present; otherwise the remote
// IP is used
const APIKeyHeader = "X-API-Key"

// rejection is the 429 response body
type rejection struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after_seconds"`
}

/* Middleware enforces the limiter on every request, before business
 * logic runs. The X-RateLimit-* headers are set on every response,
 * allowed or not
 */
func Middleware(limiter *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			endpoint := fmt.Sprintf("%s %s", r.Method, r.URL.Path)
			decision := limiter.Check(r.Context(), ClientID(r), endpoint)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				retryAfter := decision.RetryAfterSeconds()
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(rejection{
					Error:      fmt.Sprintf("rate limit exceeded, retry in %d seconds", retryAfter),
					RetryAfter: retryAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientID resolves the client identity for a request: the API key
// header when present, else the remote IP without port
func ClientID(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
