// Package app assembles the services shared by the API server and podctl.
package app

import (
	"fmt"

	"atrocitee/internal/catalog"
	"atrocitee/internal/config"
	"atrocitee/internal/database"
	"atrocitee/internal/domain"
	"atrocitee/internal/events"
	"atrocitee/internal/observability"
	"atrocitee/internal/orders"
	"atrocitee/internal/provider"
	"atrocitee/internal/ratelimit"
	"atrocitee/internal/worker"

	"github.com/rs/zerolog"
)

type Services struct {
	DB           *database.DB
	Provider     *provider.Client
	Events       *events.EventBus
	Reporter     observability.Reporter
	Synchronizer *catalog.Synchronizer
	Submitter    *orders.Submitter
	Queue        *worker.Queue
}

// Build opens the database and constructs every service around one provider
// client. The caller owns Close.
func Build(cfg *config.Config, logger *zerolog.Logger) (*Services, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	reporter := observability.NewLogReporter(logger)
	bus := events.NewEventBus().WithLogger(logger)
	client := provider.NewFromConfig(cfg.Provider, logger, reporter)

	var store domain.TaskStore
	if cfg.Queue.MirrorEnabled {
		store = db
	}
	mockupLimiter := ratelimit.New(cfg.Provider.MockupRateLimit.Calls, cfg.Provider.MockupRateLimit.Window)

	return &Services{
		DB:       db,
		Provider: client,
		Events:   bus,
		Reporter: reporter,
		Synchronizer: catalog.NewSynchronizer(client, db, db, catalog.Options{
			Events:   bus,
			Reporter: reporter,
			Logger:   logger,
		}),
		Submitter: orders.NewSubmitter(client, db, orders.Options{
			Confirm:  cfg.Provider.ConfirmOrders,
			Events:   bus,
			Reporter: reporter,
			Logger:   logger,
		}),
		Queue: worker.NewQueue(client, mockupLimiter, worker.Options{
			DefaultArtifactURL: cfg.Provider.DefaultArtifactURL,
			RedrainDelay:       cfg.Queue.RedrainDelay,
			Retention:          cfg.Queue.Retention,
			SweepInterval:      cfg.Queue.SweepInterval,
			Store:              store,
			Events:             bus,
			Reporter:           reporter,
			Logger:             logger,
		}),
	}, nil
}

func (s *Services) Close() error {
	return s.DB.Close()
}
