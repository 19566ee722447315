package interfaces

import (
	"context"

	"github.com/ternarybob/agenthub/internal/models"
)

// Fetcher retrieves a page and extracts the elements matching selector.
// Failures are returned as *common.UpstreamError.
type Fetcher interface {
	FetchItems(ctx context.Context, url, selector string) ([]models.FetchedItem, error)
}

// Platform searches one trending source for a keyword
type Platform interface {
	Name() string
	Search(ctx context.Context, keyword string) ([]models.TrackItem, error)
}

// TaskService drives simulated tasks
type TaskService interface {
	Create(ctx context.Context, req models.CreateTaskRequest) (*models.Task, error)
	Get(ctx context.Context, id string) (*models.Task, error)
	List(ctx context.Context) ([]*models.Task, error)
	Cancel(ctx context.Context, id string) (*models.Task, error)
}

// SubscriptionService manages watched pages
type SubscriptionService interface {
	Create(ctx context.Context, req models.CreateSubscriptionRequest) (*models.Subscription, error)
	Get(ctx context.Context, id string) (*models.Subscription, error)
	List(ctx context.Context) ([]*models.Subscription, error)
	Delete(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) (*models.Subscription, error)
	Refresh(ctx context.Context, id string) error
}

// TrackService manages tracked keywords
type TrackService interface {
	Create(ctx context.Context, req models.CreateTrackRequest) (*models.Track, error)
	Get(ctx context.Context, id string) (*models.Track, error)
	List(ctx context.Context) ([]*models.Track, error)
	Delete(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) (*models.Track, error)
	Refresh(ctx context.Context, id string) error
}

// DownloadService simulates downloads and analyses pages for downloadable links
type DownloadService interface {
	Analyze(ctx context.Context, url string) ([]models.DownloadCandidate, error)
	Start(ctx context.Context, req models.StartDownloadRequest) (*models.Download, error)
	List(ctx context.Context) ([]*models.Download, error)
}

// NotificationService lists and acknowledges notifications
type NotificationService interface {
	List(ctx context.Context) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id string) error
}

// ProgressSink receives task snapshots pushed by a progress watcher
type ProgressSink func(task *models.Task) error

// ProgressService streams task progress to a subscriber
type ProgressService interface {
	Watch(ctx context.Context, taskID string, sink ProgressSink) error
}
