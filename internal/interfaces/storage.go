// -----------------------------------------------------------------------
// Storage - collection persistence contracts
// -----------------------------------------------------------------------

package interfaces

import (
	"context"

	"github.com/ternarybob/agenthub/internal/models"
)

// Collection names. Each collection is persisted as one blob.
const (
	CollectionTasks         = "tasks"
	CollectionSubscriptions = "subscriptions"
	CollectionTracks        = "tracks"
	CollectionDownloads     = "downloads"
	CollectionNotifications = "notifications"
)

// BlobStorage persists whole-collection snapshots by name.
// LoadBlob returns an error matching common.ErrNotFound when nothing was saved yet.
type BlobStorage interface {
	LoadBlob(ctx context.Context, name string) ([]byte, error)
	SaveBlob(ctx context.Context, name string, data []byte) error
	DeleteBlob(ctx context.Context, name string) error
}

// TaskStorage - interface for task persistence.
// Update applies fn to the stored task under the collection lock and persists the result;
// returning an error from fn aborts the write.
type TaskStorage interface {
	SaveTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context) ([]*models.Task, error)
	UpdateTask(ctx context.Context, id string, fn func(task *models.Task) error) (*models.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// SubscriptionStorage - interface for subscription persistence
type SubscriptionStorage interface {
	SaveSubscription(ctx context.Context, sub *models.Subscription) error
	GetSubscription(ctx context.Context, id string) (*models.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]*models.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, fn func(sub *models.Subscription) error) (*models.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error
}

// TrackStorage - interface for tracked topic persistence
type TrackStorage interface {
	SaveTrack(ctx context.Context, track *models.Track) error
	GetTrack(ctx context.Context, id string) (*models.Track, error)
	ListTracks(ctx context.Context) ([]*models.Track, error)
	UpdateTrack(ctx context.Context, id string, fn func(track *models.Track) error) (*models.Track, error)
	DeleteTrack(ctx context.Context, id string) error
}

// DownloadStorage - interface for simulated download persistence
type DownloadStorage interface {
	SaveDownload(ctx context.Context, download *models.Download) error
	GetDownload(ctx context.Context, id string) (*models.Download, error)
	ListDownloads(ctx context.Context) ([]*models.Download, error)
	UpdateDownload(ctx context.Context, id string, fn func(download *models.Download) error) (*models.Download, error)
}

// NotificationStorage - interface for notification persistence.
// Notifications are kept newest first.
type NotificationStorage interface {
	AddNotification(ctx context.Context, notification *models.Notification) error
	ListNotifications(ctx context.Context, limit int) ([]*models.Notification, error)
	UpdateNotification(ctx context.Context, id string, fn func(n *models.Notification) error) (*models.Notification, error)
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	BlobStorage() BlobStorage
	TaskStorage() TaskStorage
	SubscriptionStorage() SubscriptionStorage
	TrackStorage() TrackStorage
	DownloadStorage() DownloadStorage
	NotificationStorage() NotificationStorage
	Close() error
}
