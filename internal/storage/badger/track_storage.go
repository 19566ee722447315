package badger

import (
	"context"

	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/agenthub/internal/models"
	"github.com/ternarybob/arbor"
)

// TrackStorage implements the TrackStorage interface for Badger
type TrackStorage struct {
	items  *collection[*models.Track]
	logger arbor.ILogger
}

// NewTrackStorage creates a new TrackStorage instance
func NewTrackStorage(blobs interfaces.BlobStorage, logger arbor.ILogger) *TrackStorage {
	return &TrackStorage{
		items:  newCollection[*models.Track](interfaces.CollectionTracks, "track", blobs, logger),
		logger: logger,
	}
}

func (s *TrackStorage) SaveTrack(ctx context.Context, track *models.Track) error {
	return s.items.put(ctx, track)
}

func (s *TrackStorage) GetTrack(ctx context.Context, id string) (*models.Track, error) {
	return s.items.get(ctx, id)
}

func (s *TrackStorage) ListTracks(ctx context.Context) ([]*models.Track, error) {
	return s.items.list(ctx, 0)
}

func (s *TrackStorage) UpdateTrack(ctx context.Context, id string, fn func(track *models.Track) error) (*models.Track, error) {
	return s.items.update(ctx, id, fn)
}

// DeleteTrack removes the track. Deleting an unknown id is not an error.
func (s *TrackStorage) DeleteTrack(ctx context.Context, id string) error {
	return s.items.remove(ctx, id)
}
