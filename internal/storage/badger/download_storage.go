package badger

import (
	"context"

	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/agenthub/internal/models"
	"github.com/ternarybob/arbor"
)

// DownloadStorage implements the DownloadStorage interface for Badger
type DownloadStorage struct {
	items  *collection[*models.Download]
	logger arbor.ILogger
}

// NewDownloadStorage creates a new DownloadStorage instance
func NewDownloadStorage(blobs interfaces.BlobStorage, logger arbor.ILogger) *DownloadStorage {
	return &DownloadStorage{
		items:  newCollection[*models.Download](interfaces.CollectionDownloads, "download", blobs, logger),
		logger: logger,
	}
}

func (s *DownloadStorage) SaveDownload(ctx context.Context, download *models.Download) error {
	return s.items.put(ctx, download)
}

func (s *DownloadStorage) GetDownload(ctx context.Context, id string) (*models.Download, error) {
	return s.items.get(ctx, id)
}

func (s *DownloadStorage) ListDownloads(ctx context.Context) ([]*models.Download, error) {
	return s.items.list(ctx, 0)
}

func (s *DownloadStorage) UpdateDownload(ctx context.Context, id string, fn func(download *models.Download) error) (*models.Download, error) {
	return s.items.update(ctx, id, fn)
}
