package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/agenthub/internal/common"
	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// BlobRecord holds the serialized snapshot of one collection
type BlobRecord struct {
	Name      string
	Data      []byte
	Version   int64
	UpdatedAt time.Time
}

// BlobStorage implements interfaces.BlobStorage for Badger.
// Callers serialize writes per name; Version increments on every save.
type BlobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewBlobStorage creates a new BlobStorage instance
func NewBlobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.BlobStorage {
	return &BlobStorage{
		db:     db,
		logger: logger,
	}
}

// LoadBlob returns the last saved snapshot for name
func (s *BlobStorage) LoadBlob(ctx context.Context, name string) ([]byte, error) {
	var record BlobRecord
	err := s.db.Store().Get(name, &record)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, common.NotFoundError("blob", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load blob %s: %w", name, err)
	}
	return record.Data, nil
}

// SaveBlob replaces the snapshot for name
func (s *BlobStorage) SaveBlob(ctx context.Context, name string, data []byte) error {
	var existing BlobRecord
	version := int64(1)
	err := s.db.Store().Get(name, &existing)
	switch {
	case err == nil:
		version = existing.Version + 1
	case !errors.Is(err, badgerhold.ErrNotFound):
		return fmt.Errorf("failed to read blob %s: %w", name, err)
	}

	record := &BlobRecord{
		Name:      name,
		Data:      data,
		Version:   version,
		UpdatedAt: time.Now(),
	}
	if err := s.db.Store().Upsert(name, record); err != nil {
		return fmt.Errorf("failed to save blob %s: %w", name, err)
	}

	s.logger.Trace().Str("collection", name).Int64("version", version).Int("bytes", len(data)).Msg("Collection snapshot saved")
	return nil
}

// DeleteBlob removes the snapshot for name. Missing names are ignored.
func (s *BlobStorage) DeleteBlob(ctx context.Context, name string) error {
	err := s.db.Store().Delete(name, &BlobRecord{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete blob %s: %w", name, err)
	}
	return nil
}
