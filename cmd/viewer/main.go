package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/listenai/neural-link/internal/config"
	"github.com/listenai/neural-link/internal/display"
	"github.com/listenai/neural-link/internal/observability"
	"github.com/listenai/neural-link/internal/resilience"
	"github.com/listenai/neural-link/internal/store"
	"github.com/listenai/neural-link/internal/translate"
	"github.com/listenai/neural-link/internal/viewer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.WithCorrelationID("").With().Str("component", "viewer").Logger()

	logger.Info().
		Str("port", cfg.ViewerPort).
		Str("store_url", cfg.StoreURL).
		Dur("poll_interval", cfg.PollInterval()).
		Bool("prune_stale_blocks", cfg.PruneStaleBlocks).
		Msg("Viewer starting")

	storeClient := store.NewClient(cfg.StoreURL, &http.Client{Timeout: 5 * time.Second})

	breaker := resilience.NewCircuitBreaker("translation", cfg.CircuitBreakerMaxFailures, cfg.CircuitBreakerReset())
	lookup := translate.NewMyMemoryClient(translate.MyMemoryConfig{
		BaseURL:    cfg.TranslateURL,
		Email:      cfg.TranslateEmail,
		Retry:      cfg.RetryConfig(),
		Breaker:    breaker,
		HTTPClient: &http.Client{},
		Logger:     logger.With().Str("component", "translate").Logger(),
	})
	translator := translate.NewChunked(lookup, cfg.TranslateChunkLimit)

	hub := display.NewHub(logger.With().Str("component", "display").Logger())
	reconciler := viewer.NewReconciler(storeClient, translator, hub, viewer.NewCache(),
		viewer.WithInterval(cfg.PollInterval()),
		viewer.WithTranslateTimeout(cfg.TranslateTimeout()),
		viewer.WithPrune(cfg.PruneStaleBlocks),
		viewer.WithLogger(logger),
	)

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/", display.PageHandler())
	mux.HandleFunc("/health", observability.HealthCheckHandler("viewer"))
	mux.HandleFunc("/ready", observability.ReadinessHandler("viewer", map[string]observability.HealthCheckFunc{
		"store":       storeClient.Ping,
		"translation": lookup.Healthy,
	}))
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// WriteTimeout stays unset: display sockets are long-lived.
	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.ViewerPort),
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().
			Str("port", cfg.ViewerPort).
			Str("endpoint", fmt.Sprintf("http://localhost:%s/", cfg.ViewerPort)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// The reconciler keeps polling even if the store never answers.
	if err := resilience.Reconnect(ctx, "store", func(ctx context.Context) error {
		_, err := storeClient.Ping(ctx)
		return err
	}, cfg.ReconnectConfig()); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn().Err(err).Msg("Store not reachable yet, polling anyway")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := reconciler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Reconciler stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down viewer...")
	<-done

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Viewer exited gracefully")
}
