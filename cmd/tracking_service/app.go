package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"servicelink/internal/general/config"
	"servicelink/internal/general/jwt"
	"servicelink/internal/general/logger"
	"servicelink/internal/general/postgres"
	"servicelink/internal/general/rabbitmq"
	"servicelink/internal/general/websocket"
	"servicelink/internal/tracking"
)

// Run wires and starts the tracking service, blocking until ctx is cancelled
// or the server fails.
func Run(ctx context.Context, configPath string, maxConcurrent int) error {
	// set up a logger with a static request ID for startup logs
	log := logger.New("tracking-service")
	ctx = log.WithRequestID(ctx, "startup-001")

	// load configuration
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// set up a Postgres connection pool
	pool, err := postgres.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	// connect to RabbitMQ
	rmq, err := rabbitmq.Connect(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()
	pub := rabbitmq.NewMQPublisher(rmq)

	// set up the JWT manager
	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, 2*time.Hour)

	// wire the coordinator over the store and the channel registry
	store := postgres.NewStore(pool)
	registry := tracking.NewRegistry(cfg.Tracking.SubscriberCap)
	coord := tracking.NewCoordinator(log, store, registry, pub, tracking.Options{
		AssumedSpeedKMH: cfg.Tracking.AssumedSpeedKMH,
		SampleTTL:       cfg.Tracking.SampleTTL,
	})

	// background expiry sweep for stale location samples
	coord.StartSweeper(ctx, cfg.Tracking.SweepInterval)

	// background consumer for payment subsystem events
	go rabbitmq.RunPaymentConsumer(ctx, rmq, coord, log, 8)

	// set up the WebSocket transport and HTTP routes
	wsServer := websocket.NewServer(log, jwtManager, coord)
	mux := http.NewServeMux()
	wsServer.RegisterRoutes(mux)
	mux.HandleFunc("GET /health", healthHandler(registry))

	// concurrency limiter (global) — blocks when capacity is full
	limitedHandler := withConcurrencyLimit(maxConcurrent, mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           limitedHandler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	log.Info(ctx, "service_started",
		fmt.Sprintf("Tracking Service started on port %d", cfg.HTTP.Port),
		map[string]any{"port": cfg.HTTP.Port, "max_concurrent": maxConcurrent},
	)

	// start the server in a background goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	// wait for context cancellation or server error
	select {
	case <-ctx.Done():
		// graceful HTTP shutdown on context cancel
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.HTTP.Port})
			return err
		}
	}

	return nil
}

// healthHandler reports liveness plus registry occupancy.
func healthHandler(registry *tracking.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, channels := registry.Counts()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"sessions": sessions,
			"channels": channels,
		})
	}
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// It controls how many HTTP requests can be in-progress at the same time.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			// client canceled or server is shutting down
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
