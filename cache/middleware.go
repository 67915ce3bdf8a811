package cache

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// StatusHeader reports whether a cache-wrapped GET was served from cache
const StatusHeader = "X-Cache"

// entry is the serialized form of a cached response: status, response
// headers and body
type entry struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

/* Middleware wraps GET handlers in the cache-aside read path: serve
 * hits directly (X-Cache: HIT), otherwise run the handler and store
 * successful responses under the derived key (X-Cache: MISS).
 *
 * Bypass rules: non-GET requests and non-2xx responses are never cached
 */
func Middleware(gw *Gateway, namespace string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := Key(namespace, r.Method, r.URL.Path, r.URL.Query())

			if raw, found := gw.Lookup(r.Context(), key); found {
				var e entry
				if err := json.Unmarshal(raw, &e); err == nil {
					for name, values := range e.Header {
						for _, value := range values {
							w.Header().Add(name, value)
						}
					}
					w.Header().Set(StatusHeader, "HIT")
					w.WriteHeader(e.Status)
					w.Write(e.Body)
					return
				}
				// Corrupt entry: fall through and let the handler overwrite it
				gw.Logger.Error("dropping unreadable cache entry", "key", key)
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			w.Header().Set(StatusHeader, "MISS")
			next.ServeHTTP(rec, r)

			if rec.status >= 200 && rec.status <= 299 {
				header := rec.Header().Clone()
				header.Del(StatusHeader)
				raw, err := json.Marshal(entry{
					Status: rec.status,
					Header: header,
					Body:   rec.body.Bytes(),
				})
				if err == nil {
					gw.Save(r.Context(), key, raw)
				}
			}
		})
	}
}

/* recorder tees the response so the body can be cached after the
 * handler runs
 */
type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

/* InvalidateAfter wraps a mutation handler so that, once it has
 * succeeded, every cached entry matching the patterns is removed.
 * Invalidation runs after the handler's own write so a concurrent read
 * cannot repopulate the cache with pre-write data it observed earlier
 */
func InvalidateAfter(gw *Gateway, next http.Handler, patterns func(r *http.Request) []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &recorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if rec.status >= 200 && rec.status <= 299 {
			for _, pattern := range patterns(r) {
				gw.Invalidate(r.Context(), pattern)
			}
		}
	})
}
