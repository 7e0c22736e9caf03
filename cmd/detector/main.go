package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/your-org/oceanlens/internal/api"
	"github.com/your-org/oceanlens/internal/api/handlers"
	"github.com/your-org/oceanlens/internal/api/ws"
	"github.com/your-org/oceanlens/internal/cache"
	"github.com/your-org/oceanlens/internal/client"
	"github.com/your-org/oceanlens/internal/config"
	"github.com/your-org/oceanlens/internal/media"
	"github.com/your-org/oceanlens/internal/observability"
	"github.com/your-org/oceanlens/internal/queue"
	"github.com/your-org/oceanlens/internal/session"
	"github.com/your-org/oceanlens/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting OceanLens detector", "port", cfg.Server.Port, "backend", cfg.Backend.BaseURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := map[string]handlers.Pinger{}

	// Cache store
	var store cache.Store
	switch cfg.Cache.Store {
	case "redis":
		rs, err := cache.NewRedisStore(ctx, cache.RedisOptions{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.TTL,
		})
		if err != nil {
			slog.Error("connect to redis", "error", err)
			os.Exit(1)
		}
		defer rs.Close()
		store = rs
		checks["redis"] = rs.Ping
	default:
		store = cache.NewMemoryStore(cfg.Redis.TTL)
	}

	queryCache := cache.New(store, cache.Options{
		StaleTimes: map[cache.Kind]time.Duration{
			cache.KindHistory:       cfg.Cache.HistoryStaleTime,
			cache.KindAdminTimeline: cfg.Cache.TimelineStaleTime,
		},
		Refetch: cfg.Cache.RefetchOnInvalidate,
	})

	backend := client.New(client.Options{
		BaseURL:        cfg.Backend.BaseURL,
		Timeout:        cfg.Backend.Timeout,
		PredictTimeout: cfg.Backend.PredictTimeout,
		CSRFToken:      cfg.Backend.CSRFToken,
		Headers:        cfg.Backend.Headers,
	})

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	previews := media.NewLocalPreviews(cfg.Server.PublicURL)

	// Connect to NATS
	var producer *queue.Producer
	if cfg.NATS.URL != "" {
		producer, err = queue.NewProducer(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStream(ctx); err != nil {
			slog.Warn("ensure nats stream", "error", err)
		}
		checks["nats"] = func(context.Context) error { return producer.Ping() }
	}

	opts := session.Options{
		Backend:  backend,
		Previews: previews,
		Cache:    queryCache,
		MaxBytes: cfg.Upload.MaxBytes,
		Handle:   ws.NewPlaybackHandle(hub),
	}
	if producer != nil {
		opts.Notifier = producer
	}
	sess := session.New(opts)
	defer sess.Close()

	if _, err := sess.RefreshUser(ctx); err != nil {
		slog.Warn("load current user; admin views disabled until it succeeds", "error", err)
	}

	api.WireEvents(sess, hub)

	// Invalidations from other processes of the same user
	if producer != nil {
		consumer, err := queue.NewConsumer(cfg.NATS.URL, producer.Origin())
		if err != nil {
			slog.Error("create invalidation consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		if err := consumer.ConsumeInvalidations(ctx, sess.Sync.Apply); err != nil {
			slog.Warn("start invalidation consumer", "error", err)
		}
	}

	// Connect to MinIO
	var archive handlers.ReportArchive
	if cfg.MinIO.Enabled() {
		reports, err := storage.NewReportArchive(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := reports.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		archive = reports
		checks["minio"] = reports.Ping
	}

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKey:         cfg.Server.APIKey,
		Session:        sess,
		Previews:       previews,
		Hub:            hub,
		Archive:        archive,
		Checks:         checks,
		MaxUploadBytes: cfg.Upload.MaxBytes,
		MediaDir:       cfg.Upload.MediaDir,
	})

	// Start HTTP server. Submissions stream whole videos, so no write timeout.
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 5 * time.Minute,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("detector listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down detector...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	cancel()
	queryCache.Wait()
	sess.Sync.Wait()

	slog.Info("detector stopped")
}
