package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drytrack/drytrack-api/cache"
	cacheredis "github.com/drytrack/drytrack-api/cache/redis"
	"github.com/drytrack/drytrack-api/config"
	"github.com/drytrack/drytrack-api/internal/http/chi"
	"github.com/drytrack/drytrack-api/metrics"
	"github.com/drytrack/drytrack-api/ratelimit"
	"github.com/drytrack/drytrack-api/webhook"
	webhookredis "github.com/drytrack/drytrack-api/webhook/redis"
)

const TIMEOUT = 30 * time.Second

/* main is where all the wiring happens: dispatcher, rate limiter and
 * cache gateway are constructed here and injected into the handlers,
 * sharing one Redis client. No package-level singletons
 */

func main() {
	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Println(err)
		return
	}
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	repo, err := webhookredis.NewRepository(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer repo.Close(ctx)

	registry := webhook.NewRegistry(repo)
	dispatcher := webhook.NewDispatcher(repo, webhook.DispatcherConfig{
		Timeout:     cfg.WebhookTimeout(),
		MaxAttempts: cfg.WebhookMaxAttempts,
		BackoffBase: cfg.WebhookRetryBackoff(),
	}, logger)

	scheduler := webhook.NewScheduler(repo, dispatcher, cfg.WebhookRetrySweep(), logger)
	go scheduler.Run(ctx)

	limits := ratelimit.NewLimits()
	if cfg.LimitsFile != "" {
		if err := limits.Load(cfg.LimitsFile); err != nil {
			fmt.Println(err)
			return
		}
	}
	var limitStore ratelimit.Store
	if cfg.RateLimitStore == "redis" {
		limitStore = ratelimit.NewRedisStore(repo.GetClient())
	} else {
		limitStore = ratelimit.NewMemoryStore()
	}
	limiter := ratelimit.NewLimiter(limitStore, limits, ratelimit.Config{
		Window: cfg.RateLimitWindow(),
		Max:    cfg.RateLimitMax,
	}, logger)
	go limiter.RunPurge(ctx, cfg.RateLimitPurge())

	gateway := cache.NewGateway(cacheredis.NewStore(repo.GetClient()), cfg.CacheTTL(), logger)

	collector := metrics.NewDeliveryCollector(repo)
	exporter, err := metrics.NewOTelExporter(collector)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer exporter.Shutdown(ctx)

	r := chi.Handlers(ctx, registry, dispatcher, repo, limiter, gateway)
	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Addr:         ":" + cfg.Port,
		Handler:      r,
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, ctx, errShutdown)
	fmt.Printf("Listening on port %s\n", cfg.Port)
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		fmt.Println(err)
		return
	}
	err = <-errShutdown
	if err != nil {
		fmt.Println(err)
		return
	}
}

func shutdown(server *http.Server, ctxShutdown context.Context, errShutdown chan error) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), TIMEOUT)
	defer stop()

	err := server.Shutdown(ctxTimeout)
	switch err {
	case nil:
		fmt.Printf("\nShutting down server...\n")
		errShutdown <- nil
	case context.DeadlineExceeded:
		errShutdown <- fmt.Errorf("Forcing closing the server")
	default:
		errShutdown <- fmt.Errorf("Forcing closing the server")
	}
}
