package badger

import (
	"context"

	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/agenthub/internal/models"
	"github.com/ternarybob/arbor"
)

// TaskStorage implements the TaskStorage interface for Badger
type TaskStorage struct {
	items  *collection[*models.Task]
	logger arbor.ILogger
}

// NewTaskStorage creates a new TaskStorage instance
func NewTaskStorage(blobs interfaces.BlobStorage, logger arbor.ILogger) *TaskStorage {
	return &TaskStorage{
		items:  newCollection[*models.Task](interfaces.CollectionTasks, "task", blobs, logger),
		logger: logger,
	}
}

func (s *TaskStorage) SaveTask(ctx context.Context, task *models.Task) error {
	return s.items.put(ctx, task)
}

func (s *TaskStorage) GetTask(ctx context.Context, id string) (*models.Task, error) {
	return s.items.get(ctx, id)
}

func (s *TaskStorage) ListTasks(ctx context.Context) ([]*models.Task, error) {
	return s.items.list(ctx, 0)
}

func (s *TaskStorage) UpdateTask(ctx context.Context, id string, fn func(task *models.Task) error) (*models.Task, error) {
	return s.items.update(ctx, id, fn)
}

// DeleteTask removes the task. Deleting an unknown id is not an error.
func (s *TaskStorage) DeleteTask(ctx context.Context, id string) error {
	return s.items.remove(ctx, id)
}
