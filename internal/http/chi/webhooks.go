package chi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drytrack/drytrack-api/cache"
	"github.com/drytrack/drytrack-api/ratelimit"
	"github.com/drytrack/drytrack-api/webhook"
)

// webhooksNamespace scopes cache keys for the subscription list so
// mutating handlers can invalidate them by wildcard
const webhooksNamespace = "webhooks"

// Handlers sets up the resilience layer API routes
func Handlers(ctx context.Context, registry webhook.RegistryUseCase, notifier webhook.Notifier, deliveries webhook.DeliveryReader, limiter *ratelimit.Limiter, gateway *cache.Gateway) *chi.Mux {
	logger := httplog.NewLogger("drytrack-api", httplog.Options{
		JSON: true,
	})

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(ratelimit.Middleware(limiter))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Prometheus exposition
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/webhooks", func(r chi.Router) {
		// The subscription list is the cache gateway's own read path;
		// every mutation below invalidates the namespace
		r.With(cache.Middleware(gateway, webhooksNamespace)).
			Get("/", listWebhooks(registry, deliveries).ServeHTTP)

		r.Method(http.MethodPost, "/", invalidating(gateway, postWebhook(registry)))
		r.Method(http.MethodPatch, "/{id}", invalidating(gateway, patchWebhook(registry)))
		r.Method(http.MethodDelete, "/{id}", invalidating(gateway, deleteWebhook(registry)))

		r.Post("/notify", notify(notifier).ServeHTTP)
		r.Get("/deliveries/{id}", getDelivery(deliveries).ServeHTTP)
		r.Get("/stats", getStats(deliveries).ServeHTTP)
	})

	return r
}

// invalidating drops the cached subscription list after a successful mutation
func invalidating(gateway *cache.Gateway, next http.Handler) http.Handler {
	return cache.InvalidateAfter(gateway, next, func(*http.Request) []string {
		return []string{cache.NamespacePattern(webhooksNamespace)}
	})
}
