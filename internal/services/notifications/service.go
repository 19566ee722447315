package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/agenthub/internal/common"
	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/agenthub/internal/models"
	"github.com/ternarybob/arbor"
)

const defaultListLimit = 20

// Service turns lifecycle events into stored notifications
type Service struct {
	storage   interfaces.NotificationStorage
	events    interfaces.EventService
	logger    arbor.ILogger
	listLimit int
	subs      map[interfaces.EventType]interfaces.SubscriptionID
}

// NewService creates the notification service and subscribes it to the configured
// event types. A disabled config subscribes to nothing.
func NewService(storage interfaces.NotificationStorage, events interfaces.EventService, config common.NotificationsConfig, logger arbor.ILogger) (*Service, error) {
	limit := config.ListLimit
	if limit <= 0 {
		limit = defaultListLimit
	}

	s := &Service{
		storage:   storage,
		events:    events,
		logger:    logger,
		listLimit: limit,
		subs:      make(map[interfaces.EventType]interfaces.SubscriptionID),
	}

	if !config.Enabled || events == nil {
		return s, nil
	}

	for _, name := range config.Events {
		eventType := interfaces.EventType(name)
		if _, dup := s.subs[eventType]; dup {
			continue
		}
		id, err := events.Subscribe(eventType, s.handleEvent)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", name, err)
		}
		s.subs[eventType] = id
	}

	logger.Debug().Int("event_types", len(s.subs)).Msg("Notification service subscribed")
	return s, nil
}

// List returns the newest notifications, up to the configured limit
func (s *Service) List(ctx context.Context) ([]*models.Notification, error) {
	return s.storage.ListNotifications(ctx, s.listLimit)
}

// MarkRead flags a notification as read. Unknown ids are ignored.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	_, err := s.storage.UpdateNotification(ctx, id, func(n *models.Notification) error {
		n.Read = true
		return nil
	})
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	return err
}

// Close unsubscribes from the event bus
func (s *Service) Close() {
	for eventType, id := range s.subs {
		if err := s.events.Unsubscribe(eventType, id); err != nil {
			s.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to unsubscribe notification handler")
		}
	}
	clear(s.subs)
}

func (s *Service) handleEvent(ctx context.Context, event interfaces.Event) error {
	n := describe(event)
	if n == nil {
		return nil
	}
	n.ID = common.NewID()
	n.CreatedAt = time.Now()

	if err := s.storage.AddNotification(ctx, n); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}

	s.logger.Debug().Str("notification_id", n.ID).Str("type", n.Type).Str("entity_id", n.EntityID).Msg("Notification added")
	return nil
}

// describe builds the user-facing text for an event. Unknown payloads yield nil.
func describe(event interfaces.Event) *models.Notification {
	n := &models.Notification{Type: string(event.Type)}

	switch p := event.Payload.(type) {
	case *models.Task:
		n.EntityID = p.ID
		switch event.Type {
		case interfaces.EventTaskCancelled:
			n.Title = "Task cancelled"
			n.Message = fmt.Sprintf("Task %q was cancelled at %d%%", p.Name, p.Progress)
		default:
			n.Title = "Task completed"
			n.Message = fmt.Sprintf("Task %q (%s) finished", p.Name, p.Type)
		}
	case *models.Download:
		n.EntityID = p.ID
		n.Title = "Download completed"
		n.Message = fmt.Sprintf("%s has finished downloading", p.Filename)
	case *models.Subscription:
		n.EntityID = p.ID
		switch event.Type {
		case interfaces.EventSubscriptionDeactivated:
			n.Title = "Subscription paused"
			n.Message = fmt.Sprintf("%q was deactivated after %d failed refreshes: %s", p.Name, p.ConsecutiveFailures, p.LastError)
		case interfaces.EventSubscriptionFailed:
			n.Title = "Subscription refresh failed"
			n.Message = fmt.Sprintf("%q could not be refreshed: %s", p.Name, p.LastError)
		default:
			n.Title = "Subscription updated"
			n.Message = fmt.Sprintf("%q now lists %d items", p.Name, len(p.Items))
		}
	case *models.Track:
		n.EntityID = p.ID
		n.Title = "Track updated"
		n.Message = fmt.Sprintf("%q has results from %d platforms", p.Keyword, len(p.Results))
	default:
		return nil
	}
	return n
}
