package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/eduseek/eduseek/internal/common"
	"github.com/eduseek/eduseek/internal/handlers"
	"github.com/eduseek/eduseek/internal/interfaces"
	"github.com/eduseek/eduseek/internal/services/supervisor"
	"github.com/eduseek/eduseek/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	DB      *badger.BadgerDB
	History interfaces.SyncHistoryStorage

	// Job supervisor (spawns sync workers)
	Supervisor *supervisor.Supervisor

	// HTTP handlers
	APIHandler    *handlers.APIHandler
	SyncHandler   *handlers.SyncHandler
	StreamHandler *handlers.StreamHandler
}

// New initializes the application. configPaths are forwarded to spawned
// workers so they load the same configuration.
func New(cfg *common.Config, logger arbor.ILogger, configPaths []string) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(configPaths); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Str("lms", cfg.LMS.BaseURL).
		Str("backend", cfg.Ingest.BackendURL).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase opens the Badger job history store
func (a *App) initDatabase() error {
	db, err := badger.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}

	a.DB = db
	a.History = badger.NewSyncHistoryStorage(db, a.Logger)
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

func (a *App) initServices(configPaths []string) error {
	supCfg := a.Config.Supervisor
	if len(supCfg.WorkerCommand) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to resolve executable: %w", err)
		}
		supCfg.WorkerCommand = []string{exe, "sync"}
		for _, path := range configPaths {
			supCfg.WorkerCommand = append(supCfg.WorkerCommand, "--config", path)
		}
	}

	a.Supervisor = supervisor.NewSupervisor(supCfg, a.History, a.Logger)
	if err := a.Supervisor.StartCleanup(); err != nil {
		return err
	}
	return nil
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.SyncHandler = handlers.NewSyncHandler(a.Supervisor, a.Logger)
	a.StreamHandler = handlers.NewStreamHandler(a.Supervisor, 0, a.Logger)
}

// Close stops running workers and closes storage
func (a *App) Close() error {
	if a.Supervisor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.Config.Supervisor.StopGracePeriod.Duration+5*time.Second)
		a.Supervisor.Close(ctx)
		cancel()
		a.Logger.Info().Msg("Sync supervisor stopped")
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}
	return nil
}
