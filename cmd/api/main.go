package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"atrocitee/internal/api"
	"atrocitee/internal/app"
	"atrocitee/internal/config"
	"atrocitee/internal/database"
	"atrocitee/internal/domain"
	"atrocitee/internal/events"
	"atrocitee/internal/logging"
	"atrocitee/internal/metrics"
	"atrocitee/internal/repository"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	svc, err := app.Build(cfg, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init services")
		return err
	}
	defer svc.Close()

	subscribeEvents(svc.Events, &logger)

	seen, closeSeen := initIdempotencyStore(cfg, &logger)
	defer closeSeen()

	httpServer := api.NewHTTPServer(cfg, api.Deps{
		Queue:       svc.Queue,
		Catalog:     svc.Synchronizer,
		Products:    svc.DB,
		Orders:      svc.Submitter,
		WebhookLogs: svc.DB,
		Seen:        seen,
		Health:      svc.DB,
		Reporter:    svc.Reporter,
		Logger:      &logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Queue.Start(ctx); err != nil {
		// The mirror is best effort; the queue still serves new work.
		logger.Warn().Err(err).Msg("failed to restore mockup tasks")
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(httpServer.Start)
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		database.NewBackupService(svc.DB, cfg.Backup, &logger).Start(gCtx)
		return nil
	})
	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		g.Go(func() error {
			return serveMetrics(gCtx, cfg.Monitoring.PrometheusPort, &logger)
		})
	}

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")
	err = g.Wait()
	logger.Info().Msg("API server stopped")
	return err
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// initIdempotencyStore prefers Redis and falls back to process memory when
// Redis is not configured or goes away.
func initIdempotencyStore(cfg *config.Config, logger *zerolog.Logger) (domain.IdempotencyStore, func()) {
	memory := repository.NewMemoryIdempotencyStore()
	if cfg.Redis.Address == "" {
		logger.Info().Msg("redis not configured, webhook dedup is in-memory")
		return memory, func() {}
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, starting degraded")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}

	primary := repository.NewRedisIdempotencyStore(client, "")
	return repository.NewFailoverIdempotencyStore(primary, memory, logger), func() {
		_ = repository.Close(client)
	}
}

func subscribeEvents(bus *events.EventBus, logger *zerolog.Logger) {
	l := logging.Component(logger, "events")
	for _, eventType := range []string{
		events.EventOrderStatusChanged,
		events.EventProductChangeApplied,
		events.EventMockupTaskFinished,
	} {
		bus.Subscribe(eventType, func(event *events.Event) error {
			l.Info().Str("event_type", event.Type).RawJSON("payload", event.Payload).Msg("domain event")
			return nil
		})
	}
}

func serveMetrics(ctx context.Context, port int, logger *zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().Int("port", port).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
