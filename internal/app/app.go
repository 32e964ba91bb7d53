// -----------------------------------------------------------------------
// Package app wires configuration, storage, services, and handlers into
// one runnable application
// -----------------------------------------------------------------------

package app

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/runpack/internal/common"
	"github.com/ternarybob/runpack/internal/handlers"
	"github.com/ternarybob/runpack/internal/interfaces"
	"github.com/ternarybob/runpack/internal/services/freshness"
	"github.com/ternarybob/runpack/internal/services/lifecycle"
	"github.com/ternarybob/runpack/internal/services/notify"
	"github.com/ternarybob/runpack/internal/services/validation"
	"github.com/ternarybob/runpack/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager

	ValidationService *validation.Service
	FreshnessChecker  interfaces.FreshnessChecker
	NotifyService     interfaces.NotifyService
	LifecycleService  *lifecycle.Service
	Sweeper           *lifecycle.Sweeper

	JobHandler    *handlers.JobHandler
	RunnerHandler *handlers.RunnerHandler
	AdminHandler  *handlers.AdminHandler
}

// New builds the application graph: storage, services, handlers. The
// sweeper is created but not started; callers start it once the app is
// otherwise ready.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	storageManager, err := storage.NewStorageManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	validationService := validation.NewService(logger, config.Limits)
	freshnessChecker := freshness.NewChecker(logger, &config.Freshness)
	notifyService := notify.NewNotifier(logger, config)

	lifecycleService := lifecycle.NewService(
		logger, storageManager, freshnessChecker, notifyService, config.SweepThreshold())
	sweeper := lifecycle.NewSweeper(logger, lifecycleService, config.Sweeper.Interval)

	return &App{
		Config: config,
		Logger: logger,

		StorageManager: storageManager,

		ValidationService: validationService,
		FreshnessChecker:  freshnessChecker,
		NotifyService:     notifyService,
		LifecycleService:  lifecycleService,
		Sweeper:           sweeper,

		JobHandler:    handlers.NewJobHandler(lifecycleService, validationService, logger),
		RunnerHandler: handlers.NewRunnerHandler(lifecycleService, validationService, logger),
		AdminHandler:  handlers.NewAdminHandler(lifecycleService, validationService, logger),
	}, nil
}

// Start runs the startup sweep and begins the periodic sweeper.
func (a *App) Start() error {
	if err := a.Sweeper.Start(); err != nil {
		return err
	}
	return nil
}

// Close stops the sweeper and releases storage.
func (a *App) Close() error {
	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
	}
	return nil
}
