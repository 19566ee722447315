// -----------------------------------------------------------------------
// Subscription Poller - watched pages refreshed by fetch + selector
// -----------------------------------------------------------------------

package subscriptions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ternarybob/agenthub/internal/common"
	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/agenthub/internal/models"
	"github.com/ternarybob/agenthub/internal/services/fetcher"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/singleflight"
)

// Poller owns subscription entities and refreshes them through a Fetcher.
//
// Concurrent refreshes of one id share a single fetch. The write-back and
// Delete hold the same per-id lock, and the write-back re-reads the entity,
// so a refresh that finishes after a delete never recreates the subscription.
type Poller struct {
	storage         interfaces.SubscriptionStorage
	fetcher         interfaces.Fetcher
	events          interfaces.EventService
	logger          arbor.ILogger
	retry           *common.RetryPolicy
	fetchTimeout    time.Duration
	maxItems        int
	deactivateAfter int
	honorIntervals  bool

	locks      *common.KeyedMutex
	flights    singleflight.Group
	background *common.Background
	now        func() time.Time
}

// NewPoller creates a subscription poller. events may be nil.
func NewPoller(storage interfaces.SubscriptionStorage, fetch interfaces.Fetcher, events interfaces.EventService, config *common.Config, logger arbor.ILogger) *Poller {
	maxItems := config.Fetcher.MaxItems
	if maxItems <= 0 || maxItems > models.MaxSubscriptionItems {
		maxItems = models.MaxSubscriptionItems
	}

	return &Poller{
		storage:         storage,
		fetcher:         fetch,
		events:          events,
		logger:          logger,
		retry:           common.NewRetryPolicy(config.Retry),
		fetchTimeout:    common.ParseDurationOr(config.Fetcher.Timeout, fetcher.DefaultTimeout),
		maxItems:        maxItems,
		deactivateAfter: config.Retry.DeactivateAfter,
		honorIntervals:  config.Scheduler.HonorIntervals,
		locks:           common.NewKeyedMutex(),
		background:      common.NewBackground(context.Background(), logger),
		now:             time.Now,
	}
}

// Create validates and stores a new active subscription, then refreshes it in the background
func (p *Poller) Create(ctx context.Context, req models.CreateSubscriptionRequest) (*models.Subscription, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.URL = strings.TrimSpace(req.URL)
	req.Selector = strings.TrimSpace(req.Selector)
	req.Interval = strings.TrimSpace(req.Interval)

	if err := common.ValidateStruct(req); err != nil {
		return nil, err
	}
	if err := common.ValidateHTTPURL("url", req.URL); err != nil {
		return nil, err
	}
	if err := fetcher.ValidateSelector(req.Selector); err != nil {
		return nil, err
	}
	if req.Interval == "" {
		req.Interval = common.DefaultInterval
	}
	if _, err := common.ParseInterval(req.Interval); err != nil {
		return nil, common.NewValidationError("interval", err.Error())
	}

	sub := &models.Subscription{
		ID:        common.NewID(),
		Name:      req.Name,
		URL:       req.URL,
		Selector:  req.Selector,
		Interval:  req.Interval,
		Items:     []models.SubscriptionItem{},
		Active:    true,
		CreatedAt: p.now(),
	}

	if err := p.storage.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("subscription_id", sub.ID).
		Str("name", sub.Name).
		Str("url", sub.URL).
		Str("interval", sub.Interval).
		Msg("Subscription created")

	id := sub.ID
	p.background.Go("subscription:"+id, func(ctx context.Context) {
		_ = p.Refresh(ctx, id)
	})

	return sub.Clone(), nil
}

// Get returns a snapshot of the subscription
func (p *Poller) Get(ctx context.Context, id string) (*models.Subscription, error) {
	return p.storage.GetSubscription(ctx, id)
}

// List returns all subscriptions in creation order
func (p *Poller) List(ctx context.Context) ([]*models.Subscription, error) {
	return p.storage.ListSubscriptions(ctx)
}

// Delete removes the subscription. Unknown ids succeed.
func (p *Poller) Delete(ctx context.Context, id string) error {
	unlock := p.locks.Lock(id)
	defer unlock()

	if err := p.storage.DeleteSubscription(ctx, id); err != nil {
		return err
	}
	p.logger.Info().Str("subscription_id", id).Msg("Subscription deleted")
	return nil
}

// SetActive pauses or resumes scheduled refreshes. Resuming clears the failure count.
func (p *Poller) SetActive(ctx context.Context, id string, active bool) (*models.Subscription, error) {
	unlock := p.locks.Lock(id)
	defer unlock()

	sub, err := p.storage.UpdateSubscription(ctx, id, func(sub *models.Subscription) error {
		sub.Active = active
		if active {
			sub.ConsecutiveFailures = 0
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info().Str("subscription_id", id).Bool("active", active).Msg("Subscription active state changed")
	return sub, nil
}

// ListDue returns the ids of active subscriptions the scheduler should refresh now
func (p *Poller) ListDue(ctx context.Context) ([]string, error) {
	subs, err := p.storage.ListSubscriptions(ctx)
	if err != nil {
		return nil, err
	}

	now := p.now()
	var ids []string
	for _, sub := range subs {
		if !sub.Active {
			continue
		}
		if p.honorIntervals {
			if due := common.CheckDue(sub.LastCheck, sub.Interval, now); !due.IsDue {
				p.logger.Trace().Str("subscription_id", sub.ID).Str("reason", due.Reason).Msg("Subscription not due")
				continue
			}
		}
		ids = append(ids, sub.ID)
	}
	return ids, nil
}

// Refresh fetches the page for id and replaces its items. Missing or inactive
// subscriptions are skipped without fetching. A fetch failure keeps the
// previous items and is returned after being recorded on the subscription.
// Concurrent calls for one id share a single fetch bounded by the fetch
// timeout. A caller whose ctx ends first gets ctx.Err(), which is never
// recorded as a failure.
func (p *Poller) Refresh(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	flight := p.flights.DoChan(id, func() (interface{}, error) {
		shared, release, err := p.background.Detach(ctx)
		if err != nil {
			return nil, err
		}
		defer release()
		return nil, p.refresh(shared, id)
	})

	select {
	case res := <-flight:
		if res.Shared {
			p.logger.Trace().Str("subscription_id", id).Msg("Refresh coalesced with in-flight fetch")
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) refresh(ctx context.Context, id string) error {
	sub, err := p.storage.GetSubscription(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !sub.Active {
		return nil
	}

	var fetched []models.FetchedItem
	fetchErr := p.retry.Do(ctx, p.logger, func(ctx context.Context) error {
		fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
		defer cancel()

		items, err := p.fetcher.FetchItems(fetchCtx, sub.URL, sub.Selector)
		if err != nil {
			if fetchCtx.Err() == context.DeadlineExceeded {
				var upstream *common.UpstreamError
				if !errors.As(err, &upstream) {
					err = &common.UpstreamError{Kind: common.UpstreamTimeout, URL: sub.URL, Err: err}
				}
			}
			return err
		}
		fetched = items
		return nil
	})

	// Shutdown mid-fetch says nothing about the page
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := p.locks.Lock(id)
	defer unlock()

	now := p.now()
	deactivated := false
	updated, err := p.storage.UpdateSubscription(context.WithoutCancel(ctx), id, func(sub *models.Subscription) error {
		if fetchErr != nil {
			sub.ConsecutiveFailures++
			sub.LastError = fetchErr.Error()
			if p.deactivateAfter > 0 && sub.ConsecutiveFailures >= p.deactivateAfter && sub.Active {
				sub.Active = false
				deactivated = true
			}
			return nil
		}

		sub.Items = p.toItems(fetched, sub.URL, now)
		if sub.LastCheck == nil || now.After(*sub.LastCheck) {
			checked := now
			sub.LastCheck = &checked
		}
		sub.ConsecutiveFailures = 0
		sub.LastError = ""
		return nil
	})
	if errors.Is(err, common.ErrNotFound) {
		p.logger.Debug().Str("subscription_id", id).Msg("Subscription deleted during refresh, result dropped")
		return nil
	}
	if err != nil {
		return err
	}

	if fetchErr != nil {
		p.logger.Warn().
			Err(fetchErr).
			Str("subscription_id", id).
			Str("url", updated.URL).
			Int("consecutive_failures", updated.ConsecutiveFailures).
			Msg("Subscription fetch failed, keeping previous items")
		p.publish(ctx, interfaces.EventSubscriptionFailed, updated)
		if deactivated {
			p.logger.Warn().Str("subscription_id", id).Int("failures", updated.ConsecutiveFailures).Msg("Subscription deactivated after repeated failures")
			p.publish(ctx, interfaces.EventSubscriptionDeactivated, updated)
		}
		return fetchErr
	}

	p.logger.Debug().Str("subscription_id", id).Int("items", len(updated.Items)).Msg("Subscription refreshed")
	p.publish(ctx, interfaces.EventSubscriptionRefreshed, updated)
	return nil
}

func (p *Poller) toItems(fetched []models.FetchedItem, pageURL string, now time.Time) []models.SubscriptionItem {
	n := len(fetched)
	if n > p.maxItems {
		n = p.maxItems
	}

	items := make([]models.SubscriptionItem, 0, n)
	for _, f := range fetched[:n] {
		link := f.Link
		if link == "" {
			link = pageURL
		}
		items = append(items, models.SubscriptionItem{Title: f.Title, Link: link, Time: now})
	}
	return items
}

func (p *Poller) publish(ctx context.Context, eventType interfaces.EventType, sub *models.Subscription) {
	if p.events == nil {
		return
	}
	if err := p.events.Publish(context.WithoutCancel(ctx), interfaces.Event{Type: eventType, Payload: sub}); err != nil {
		p.logger.Warn().Err(err).Str("subscription_id", sub.ID).Msg("Failed to publish subscription event")
	}
}

// Wait blocks until background refreshes started by Create have finished
func (p *Poller) Wait() {
	p.background.Wait()
}

// Close cancels background refreshes and waits for them
func (p *Poller) Close() {
	p.background.Close()
}
