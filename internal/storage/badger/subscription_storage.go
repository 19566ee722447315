package badger

import (
	"context"

	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/agenthub/internal/models"
	"github.com/ternarybob/arbor"
)

// SubscriptionStorage implements the SubscriptionStorage interface for Badger
type SubscriptionStorage struct {
	items  *collection[*models.Subscription]
	logger arbor.ILogger
}

// NewSubscriptionStorage creates a new SubscriptionStorage instance
func NewSubscriptionStorage(blobs interfaces.BlobStorage, logger arbor.ILogger) *SubscriptionStorage {
	return &SubscriptionStorage{
		items:  newCollection[*models.Subscription](interfaces.CollectionSubscriptions, "subscription", blobs, logger),
		logger: logger,
	}
}

func (s *SubscriptionStorage) SaveSubscription(ctx context.Context, sub *models.Subscription) error {
	return s.items.put(ctx, sub)
}

func (s *SubscriptionStorage) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	return s.items.get(ctx, id)
}

func (s *SubscriptionStorage) ListSubscriptions(ctx context.Context) ([]*models.Subscription, error) {
	return s.items.list(ctx, 0)
}

func (s *SubscriptionStorage) UpdateSubscription(ctx context.Context, id string, fn func(sub *models.Subscription) error) (*models.Subscription, error) {
	return s.items.update(ctx, id, fn)
}

// DeleteSubscription removes the subscription. Deleting an unknown id is not an error.
func (s *SubscriptionStorage) DeleteSubscription(ctx context.Context, id string) error {
	return s.items.remove(ctx, id)
}
