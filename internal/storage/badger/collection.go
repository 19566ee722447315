package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ternarybob/agenthub/internal/common"
	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// record is implemented by every persisted model pointer type
type record[P any] interface {
	GetID() string
	Clone() P
}

// collection keeps one ordered entity set in memory and writes the whole set
// as a single blob after each mutation. All access goes through mu, so every
// saved snapshot is a consistent list and a failed save leaves memory unchanged.
type collection[P record[P]] struct {
	name   string
	kind   string
	blobs  interfaces.BlobStorage
	logger arbor.ILogger

	mu     sync.Mutex
	loaded bool
	order  []string
	items  map[string]P
}

func newCollection[P record[P]](name, kind string, blobs interfaces.BlobStorage, logger arbor.ILogger) *collection[P] {
	return &collection[P]{
		name:   name,
		kind:   kind,
		blobs:  blobs,
		logger: logger,
		items:  make(map[string]P),
	}
}

// ensureLoaded reads the snapshot on first use. Caller holds mu.
func (c *collection[P]) ensureLoaded(ctx context.Context) error {
	if c.loaded {
		return nil
	}

	data, err := c.blobs.LoadBlob(ctx, c.name)
	if errors.Is(err, common.ErrNotFound) {
		c.loaded = true
		return nil
	}
	if err != nil {
		return err
	}

	var list []P
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("failed to decode %s snapshot: %w", c.name, err)
	}

	for _, item := range list {
		id := item.GetID()
		if _, dup := c.items[id]; dup {
			continue
		}
		c.order = append(c.order, id)
		c.items[id] = item
	}
	c.loaded = true

	c.logger.Debug().Str("collection", c.name).Int("count", len(c.order)).Msg("Collection loaded")
	return nil
}

// commit persists the candidate state and swaps it in on success. Caller holds mu.
func (c *collection[P]) commit(ctx context.Context, order []string, items map[string]P) error {
	list := make([]P, 0, len(order))
	for _, id := range order {
		list = append(list, items[id])
	}

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s snapshot: %w", c.name, err)
	}
	if err := c.blobs.SaveBlob(ctx, c.name, data); err != nil {
		return err
	}

	c.order = order
	c.items = items
	return nil
}

func (c *collection[P]) copyState() ([]string, map[string]P) {
	order := append([]string(nil), c.order...)
	items := make(map[string]P, len(c.items))
	for k, v := range c.items {
		items[k] = v
	}
	return order, items
}

func (c *collection[P]) load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureLoaded(ctx)
}

func (c *collection[P]) get(ctx context.Context, id string) (P, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero P
	if err := c.ensureLoaded(ctx); err != nil {
		return zero, err
	}
	item, ok := c.items[id]
	if !ok {
		return zero, common.NotFoundError(c.kind, id)
	}
	return item.Clone(), nil
}

// list returns clones in insertion order, or the first limit items when limit > 0
func (c *collection[P]) list(ctx context.Context, limit int) ([]P, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	n := len(c.order)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]P, 0, n)
	for _, id := range c.order[:n] {
		out = append(out, c.items[id].Clone())
	}
	return out, nil
}

// put inserts item at the end, or replaces it in place when the id exists
func (c *collection[P]) put(ctx context.Context, item P) error {
	return c.insert(ctx, item, false)
}

// prepend inserts item at the front, or replaces it in place when the id exists
func (c *collection[P]) prepend(ctx context.Context, item P) error {
	return c.insert(ctx, item, true)
}

func (c *collection[P]) insert(ctx context.Context, item P, front bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoaded(ctx); err != nil {
		return err
	}

	id := item.GetID()
	if id == "" {
		return common.NewValidationError("id", "is required")
	}

	order, items := c.copyState()
	if _, exists := items[id]; !exists {
		if front {
			order = append([]string{id}, order...)
		} else {
			order = append(order, id)
		}
	}
	items[id] = item.Clone()

	return c.commit(ctx, order, items)
}

// update applies fn to a copy of the stored item and persists the result.
// An error from fn aborts the write and is returned unchanged.
func (c *collection[P]) update(ctx context.Context, id string, fn func(P) error) (P, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero P
	if err := c.ensureLoaded(ctx); err != nil {
		return zero, err
	}

	current, ok := c.items[id]
	if !ok {
		return zero, common.NotFoundError(c.kind, id)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return zero, err
	}

	order, items := c.copyState()
	items[id] = next
	if err := c.commit(ctx, order, items); err != nil {
		return zero, err
	}
	return next.Clone(), nil
}

// remove deletes id. Removing a missing id succeeds without writing.
func (c *collection[P]) remove(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoaded(ctx); err != nil {
		return err
	}
	if _, ok := c.items[id]; !ok {
		return nil
	}

	order, items := c.copyState()
	delete(items, id)
	for i, existing := range order {
		if existing == id {
			order = append(order[:i], order[i+1:]...)
			break
		}
	}

	return c.commit(ctx, order, items)
}
