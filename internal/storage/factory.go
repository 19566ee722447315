package storage

import (
	"fmt"

	"github.com/ternarybob/agenthub/internal/common"
	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/agenthub/internal/storage/badger"
	"github.com/ternarybob/arbor"
)

// NewStorageManager opens the collections store named by storage.type.
// An empty type selects badger.
func NewStorageManager(logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	switch config.Storage.Type {
	case "", "badger":
		manager, err := badger.NewManager(logger, &config.Storage.Badger)
		if err != nil {
			return nil, fmt.Errorf("badger storage: %w", err)
		}
		return manager, nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", config.Storage.Type)
	}
}
