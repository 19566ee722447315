package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/agenthub/internal/common"
	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db            *BadgerDB
	blobs         interfaces.BlobStorage
	tasks         *TaskStorage
	subscriptions *SubscriptionStorage
	tracks        *TrackStorage
	downloads     *DownloadStorage
	notifications *NotificationStorage
	logger        arbor.ILogger
}

// NewManager creates a new Badger storage manager and loads every collection
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	m := newManager(db, logger)
	if err := m.loadAll(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info().Msg("Badger storage manager initialized")

	return m, nil
}

func newManager(db *BadgerDB, logger arbor.ILogger) *Manager {
	blobs := NewBlobStorage(db, logger)
	return &Manager{
		db:            db,
		blobs:         blobs,
		tasks:         NewTaskStorage(blobs, logger),
		subscriptions: NewSubscriptionStorage(blobs, logger),
		tracks:        NewTrackStorage(blobs, logger),
		downloads:     NewDownloadStorage(blobs, logger),
		notifications: NewNotificationStorage(blobs, logger),
		logger:        logger,
	}
}

func (m *Manager) loadAll(ctx context.Context) error {
	loaders := map[string]func(context.Context) error{
		interfaces.CollectionTasks:         m.tasks.items.load,
		interfaces.CollectionSubscriptions: m.subscriptions.items.load,
		interfaces.CollectionTracks:        m.tracks.items.load,
		interfaces.CollectionDownloads:     m.downloads.items.load,
		interfaces.CollectionNotifications: m.notifications.items.load,
	}
	for name, load := range loaders {
		if err := load(ctx); err != nil {
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
	}
	return nil
}

// BlobStorage returns the raw snapshot storage
func (m *Manager) BlobStorage() interfaces.BlobStorage {
	return m.blobs
}

// TaskStorage returns the Task storage interface
func (m *Manager) TaskStorage() interfaces.TaskStorage {
	return m.tasks
}

// SubscriptionStorage returns the Subscription storage interface
func (m *Manager) SubscriptionStorage() interfaces.SubscriptionStorage {
	return m.subscriptions
}

// TrackStorage returns the Track storage interface
func (m *Manager) TrackStorage() interfaces.TrackStorage {
	return m.tracks
}

// DownloadStorage returns the Download storage interface
func (m *Manager) DownloadStorage() interfaces.DownloadStorage {
	return m.downloads
}

// NotificationStorage returns the Notification storage interface
func (m *Manager) NotificationStorage() interfaces.NotificationStorage {
	return m.notifications
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
