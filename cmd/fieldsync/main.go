package main

import (
	"database/sql"
	"fmt"
	"log"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sentinelpest/fieldsync/internal/bus"
	"github.com/sentinelpest/fieldsync/internal/config"
	"github.com/sentinelpest/fieldsync/internal/connectivity"
	"github.com/sentinelpest/fieldsync/internal/db"
	"github.com/sentinelpest/fieldsync/internal/logging"
	"github.com/sentinelpest/fieldsync/internal/remote"
	"github.com/sentinelpest/fieldsync/internal/service"
	"github.com/sentinelpest/fieldsync/internal/store"
	syncengine "github.com/sentinelpest/fieldsync/internal/sync"
)

// app holds the wired-up components shared by all subcommands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	database *sql.DB
	service  *service.QueueService
	engine   *syncengine.Engine
	prober   *connectivity.Prober
	monitor  connectivity.Monitor
	events   *bus.Bus
	cleanup  func()
}

// openApp loads config and wires stores, adapter, monitor, bus, engine and
// service. With forceOffline the monitor is pinned unreachable so queue
// commands work with no network stack at all.
func openApp(forceOffline bool) (*app, error) {
	cfg := config.Load()

	logger, logCleanup, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		logCleanup()
		return nil, err
	}

	placements := store.NewPlacementStore(database)
	observations := store.NewObservationStore(database)
	references := store.NewReferenceStore(database)
	adapter := remote.NewClient(cfg.APIBaseURL, cfg.APIToken, cfg.HTTPTimeout)
	events := bus.New()

	var prober *connectivity.Prober
	var monitor connectivity.Monitor
	if forceOffline {
		monitor = connectivity.NewManual(false)
	} else {
		prober = connectivity.NewProber(cfg.ProbeURL, cfg.ProbeInterval, cfg.HTTPTimeout, logger)
		monitor = prober
	}

	policy := syncengine.RetryPolicy{
		Initial:     cfg.RetryInitial,
		Multiplier:  2.0,
		Cap:         cfg.RetryCap,
		MaxAttempts: cfg.RetryAttempts,
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		database: database,
		service:  service.NewQueueService(placements, observations, references, adapter, monitor, logger),
		engine:   syncengine.NewEngine(placements, observations, adapter, monitor, events, policy, logger),
		prober:   prober,
		monitor:  monitor,
		events:   events,
	}
	a.cleanup = func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
		logCleanup()
	}
	return a, nil
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		log.SetFlags(0)
		log.Fatalf("fieldsync: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fieldsync",
		Short:         "Offline-first queue and sync for field inspection records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newEnqueuePlacementCmd(),
		newEnqueueObservationCmd(),
		newSyncCmd(),
		newPendingCmd(),
		newResolveCmd(),
		newRefreshCmd(),
		newWatchCmd(),
	)
	return root
}
