package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/agenthub/internal/common"
	"github.com/ternarybob/arbor"
)

func TestNewStorageManager(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Storage.Type = ""
	cfg.Storage.Badger.InMemory = true

	manager, err := NewStorageManager(arbor.NewLogger(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, manager.TaskStorage())
	assert.NoError(t, manager.Close())

	cfg.Storage.Type = "sqlite"
	_, err = NewStorageManager(arbor.NewLogger(), cfg)
	assert.ErrorContains(t, err, `unsupported storage type "sqlite"`)
}
