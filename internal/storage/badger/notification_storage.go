package badger

import (
	"context"

	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/agenthub/internal/models"
	"github.com/ternarybob/arbor"
)

// maxStoredNotifications bounds the notifications snapshot; older entries are dropped
const maxStoredNotifications = 500

// NotificationStorage implements the NotificationStorage interface for Badger
type NotificationStorage struct {
	items  *collection[*models.Notification]
	logger arbor.ILogger
}

// NewNotificationStorage creates a new NotificationStorage instance
func NewNotificationStorage(blobs interfaces.BlobStorage, logger arbor.ILogger) *NotificationStorage {
	return &NotificationStorage{
		items:  newCollection[*models.Notification](interfaces.CollectionNotifications, "notification", blobs, logger),
		logger: logger,
	}
}

// AddNotification stores n ahead of all existing notifications
func (s *NotificationStorage) AddNotification(ctx context.Context, n *models.Notification) error {
	if err := s.items.prepend(ctx, n); err != nil {
		return err
	}
	return s.prune(ctx)
}

func (s *NotificationStorage) ListNotifications(ctx context.Context, limit int) ([]*models.Notification, error) {
	return s.items.list(ctx, limit)
}

func (s *NotificationStorage) UpdateNotification(ctx context.Context, id string, fn func(n *models.Notification) error) (*models.Notification, error) {
	return s.items.update(ctx, id, fn)
}

func (s *NotificationStorage) prune(ctx context.Context) error {
	all, err := s.items.list(ctx, 0)
	if err != nil || len(all) <= maxStoredNotifications {
		return err
	}
	for _, n := range all[maxStoredNotifications:] {
		if err := s.items.remove(ctx, n.ID); err != nil {
			return err
		}
	}
	s.logger.Debug().Int("removed", len(all)-maxStoredNotifications).Msg("Pruned old notifications")
	return nil
}
