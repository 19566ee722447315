package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/agenthub/internal/common"
	"github.com/ternarybob/agenthub/internal/handlers"
	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/agenthub/internal/services/downloads"
	"github.com/ternarybob/agenthub/internal/services/events"
	"github.com/ternarybob/agenthub/internal/services/fetcher"
	"github.com/ternarybob/agenthub/internal/services/notifications"
	"github.com/ternarybob/agenthub/internal/services/progress"
	"github.com/ternarybob/agenthub/internal/services/scheduler"
	"github.com/ternarybob/agenthub/internal/services/subscriptions"
	"github.com/ternarybob/agenthub/internal/services/tasks"
	"github.com/ternarybob/agenthub/internal/services/tracker"
	"github.com/ternarybob/agenthub/internal/storage"
	"github.com/ternarybob/arbor"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Event-driven services
	EventService     interfaces.EventService
	SchedulerService *scheduler.Service

	// Domain services
	Fetcher             *fetcher.Client
	TaskEngine          *tasks.Engine
	SubscriptionPoller  *subscriptions.Poller
	TrackSearcher       *tracker.Searcher
	DownloadService     *downloads.Service
	NotificationService *notifications.Service
	ProgressNotifier    *progress.Notifier

	// HTTP handlers
	APIHandler          *handlers.APIHandler
	TaskHandler         *handlers.TaskHandler
	SubscriptionHandler *handlers.SubscriptionHandler
	TrackHandler        *handlers.TrackHandler
	DownloadHandler     *handlers.DownloadHandler
	NotificationHandler *handlers.NotificationHandler
	SchedulerHandler    *handlers.SchedulerHandler
	WSHandler           *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize database
	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize services
	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Initialize handlers
	app.initHandlers()

	// Restart work interrupted by the previous shutdown
	if err := app.resume(context.Background()); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to resume background work: %w", err)
	}

	// Start scheduler after every refresh target is registered
	if err := app.SchedulerService.Start(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	logger.Info().
		Bool("scheduler_enabled", cfg.Scheduler.Enabled).
		Str("schedule", cfg.Scheduler.Schedule).
		Bool("notifications_enabled", cfg.Notifications.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Bool("in_memory", a.Config.Storage.Badger.InMemory).
		Msg("Storage layer initialized")

	return nil
}

// initServices initializes all business services in dependency order.
// The event bus comes first so every service can publish; notifications
// subscribe before anything else can emit.
func (a *App) initServices() error {
	var err error

	a.EventService = events.NewService(a.Logger)
	if err := events.SubscribeLoggerToAllEvents(a.EventService, a.Logger); err != nil {
		return fmt.Errorf("failed to subscribe event logger: %w", err)
	}

	a.NotificationService, err = notifications.NewService(
		a.StorageManager.NotificationStorage(),
		a.EventService,
		a.Config.Notifications,
		a.Logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize notification service: %w", err)
	}

	a.Fetcher = fetcher.NewClientFromConfig(a.Config.Fetcher, a.Logger)

	a.TaskEngine = tasks.NewEngine(
		a.StorageManager.TaskStorage(),
		a.EventService,
		a.Config.Tasks,
		a.Logger,
	)

	a.SubscriptionPoller = subscriptions.NewPoller(
		a.StorageManager.SubscriptionStorage(),
		a.Fetcher,
		a.EventService,
		a.Config,
		a.Logger,
	)

	a.TrackSearcher = tracker.NewSearcher(
		a.StorageManager.TrackStorage(),
		tracker.NewDefaultRegistry(),
		a.EventService,
		a.Config.Tracker,
		a.Logger,
	)

	a.DownloadService = downloads.NewService(
		a.StorageManager.DownloadStorage(),
		a.Fetcher,
		a.EventService,
		a.Config,
		a.Logger,
	)

	a.ProgressNotifier = progress.NewNotifier(a.TaskEngine, a.Config.Progress, a.Logger)

	a.SchedulerService = scheduler.NewService(a.Config.Scheduler, a.Logger)
	targets := []interfaces.RefreshTarget{
		{
			Kind:    "subscription",
			ListDue: a.SubscriptionPoller.ListDue,
			Refresh: a.SubscriptionPoller.Refresh,
		},
		{
			Kind:    "track",
			ListDue: a.TrackSearcher.ListDue,
			Refresh: a.TrackSearcher.Refresh,
		},
	}
	for _, target := range targets {
		if err := a.SchedulerService.Register(target); err != nil {
			return fmt.Errorf("failed to register %s refresh: %w", target.Kind, err)
		}
	}

	a.Logger.Debug().Msg("Services initialized")
	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.TaskHandler = handlers.NewTaskHandler(a.TaskEngine, a.Logger)
	a.SubscriptionHandler = handlers.NewSubscriptionHandler(a.SubscriptionPoller, a.Logger)
	a.TrackHandler = handlers.NewTrackHandler(a.TrackSearcher, a.Logger)
	a.DownloadHandler = handlers.NewDownloadHandler(a.DownloadService, a.Logger)
	a.NotificationHandler = handlers.NewNotificationHandler(a.NotificationService, a.Logger)
	a.SchedulerHandler = handlers.NewSchedulerHandler(a.SchedulerService, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.ProgressNotifier, a.EventService, a.Logger, &a.Config.WebSocket)

	a.Logger.Debug().Msg("Handlers initialized")
}

// resume restarts tasks and downloads that were still running at shutdown
func (a *App) resume(ctx context.Context) error {
	if err := a.TaskEngine.Start(ctx); err != nil {
		return fmt.Errorf("tasks: %w", err)
	}
	if err := a.DownloadService.Resume(ctx); err != nil {
		return fmt.Errorf("downloads: %w", err)
	}
	return nil
}

// Close closes all application resources
func (a *App) Close() error {
	// Stop scheduler first so no new refreshes are dispatched
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	if a.WSHandler != nil {
		a.WSHandler.Close()
	}

	// Stop background workers before the event bus and storage go away
	if a.DownloadService != nil {
		a.DownloadService.Close()
	}
	if a.TrackSearcher != nil {
		a.TrackSearcher.Close()
	}
	if a.SubscriptionPoller != nil {
		a.SubscriptionPoller.Close()
	}
	if a.TaskEngine != nil {
		a.TaskEngine.Close()
	}

	if a.NotificationService != nil {
		a.NotificationService.Close()
	}

	// Close event service
	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	// Close storage
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
