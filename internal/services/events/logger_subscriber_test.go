package events

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/agenthub/internal/models"
	"github.com/ternarybob/arbor"
)

func TestNewLoggerSubscriber(t *testing.T) {
	subscriber := NewLoggerSubscriber(arbor.NewLogger())
	ctx := context.Background()

	assert.NoError(t, subscriber(ctx, interfaces.Event{Type: interfaces.EventTaskCompleted, Payload: &models.Task{ID: "t1"}}))
	assert.NoError(t, subscriber(ctx, interfaces.Event{Type: interfaces.EventTrackRefreshed}))
	assert.NoError(t, subscriber(ctx, interfaces.Event{Type: interfaces.EventDownloadCompleted, Payload: "not an entity"}))
}

func TestSubscribeLoggerToAllEvents(t *testing.T) {
	eventService := NewService(arbor.NewLogger())
	defer eventService.Close()

	require.NoError(t, SubscribeLoggerToAllEvents(eventService, arbor.NewLogger()))

	for _, eventType := range interfaces.AllEventTypes {
		assert.NoError(t, eventService.PublishSync(context.Background(), interfaces.Event{Type: eventType}), eventType)
	}
}

func TestLoggerSubscriberDoesNotInterfere(t *testing.T) {
	eventService := NewService(arbor.NewLogger())
	defer eventService.Close()
	require.NoError(t, SubscribeLoggerToAllEvents(eventService, arbor.NewLogger()))

	var calls atomic.Int32
	_, err := eventService.Subscribe(interfaces.EventTaskCancelled, func(ctx context.Context, event interfaces.Event) error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, eventService.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventTaskCancelled,
		Payload: &models.Task{ID: "t1"},
	}))
	assert.Equal(t, int32(1), calls.Load())
}
