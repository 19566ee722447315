package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/arbor"
)

func TestPublish_DeliversToAllSubscribers(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	defer svc.Close()

	var count atomic.Int32
	handler := func(ctx context.Context, e interfaces.Event) error {
		count.Add(1)
		return nil
	}
	first, err := svc.Subscribe(interfaces.EventTaskCompleted, handler)
	require.NoError(t, err)
	second, err := svc.Subscribe(interfaces.EventTaskCompleted, func(ctx context.Context, e interfaces.Event) error {
		count.Add(10)
		return nil
	})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	require.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventTaskCompleted}))
	svc.Wait()

	assert.Equal(t, int32(11), count.Load())
}

func TestPublishSync_AggregatesErrorsAndPanics(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	defer svc.Close()

	boom := errors.New("boom")
	_, err := svc.Subscribe(interfaces.EventTrackRefreshed, func(ctx context.Context, e interfaces.Event) error {
		return boom
	})
	require.NoError(t, err)
	_, err = svc.Subscribe(interfaces.EventTrackRefreshed, func(ctx context.Context, e interfaces.Event) error {
		panic("handler bug")
	})
	require.NoError(t, err)

	err = svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventTrackRefreshed})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestPublish_NoSubscribers(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	defer svc.Close()

	assert.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventTaskCancelled}))
	assert.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventTaskCancelled}))
}

func TestSubscribe_RejectsNilHandler(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	defer svc.Close()

	_, err := svc.Subscribe(interfaces.EventTaskCompleted, nil)
	assert.Error(t, err)
}

func namedHandler(ctx context.Context, e interfaces.Event) error { return nil }

func TestUnsubscribe(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	defer svc.Close()

	id, err := svc.Subscribe(interfaces.EventTaskCompleted, namedHandler)
	require.NoError(t, err)
	require.NoError(t, svc.Unsubscribe(interfaces.EventTaskCompleted, id))
	assert.Error(t, svc.Unsubscribe(interfaces.EventTaskCompleted, id))
}

type countingReceiver struct {
	received atomic.Int32
}

func (c *countingReceiver) handle(ctx context.Context, e interfaces.Event) error {
	c.received.Add(1)
	return nil
}

func TestUnsubscribe_LeavesOtherReceiversOfSameMethod(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	defer svc.Close()

	a, b := &countingReceiver{}, &countingReceiver{}
	idA, err := svc.Subscribe(interfaces.EventTaskCompleted, a.handle)
	require.NoError(t, err)
	_, err = svc.Subscribe(interfaces.EventTaskCompleted, b.handle)
	require.NoError(t, err)

	require.NoError(t, svc.Unsubscribe(interfaces.EventTaskCompleted, idA))

	require.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventTaskCompleted}))
	assert.Equal(t, int32(0), a.received.Load())
	assert.Equal(t, int32(1), b.received.Load())
}
