package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/agenthub/internal/common"
	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/agenthub/internal/models"
	"github.com/ternarybob/agenthub/internal/services/events"
	"github.com/ternarybob/agenthub/internal/services/progress"
	"github.com/ternarybob/arbor"
)

// steppingTasks advances its single task by 25 on every Get
type steppingTasks struct {
	MockTaskService
	mu       sync.Mutex
	progress int
}

func (s *steppingTasks) Get(ctx context.Context, id string) (*models.Task, error) {
	if id != "t1" {
		return nil, common.NotFoundError("task", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &models.Task{ID: "t1", Status: models.TaskStatusRunning, Progress: s.progress}
	if s.progress >= 100 {
		task.Status = models.TaskStatusCompleted
		task.Progress = 100
	}
	s.progress += 25
	return task, nil
}

func newTestWebSocket(t *testing.T, bus interfaces.EventService) (*WebSocketHandler, string) {
	t.Helper()
	notifier := progress.NewNotifier(&steppingTasks{}, common.ProgressConfig{Interval: "5ms"}, arbor.NewLogger())
	handler := NewWebSocketHandler(notifier, bus, arbor.NewLogger(), &common.WebSocketConfig{})

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(server.Close)
	t.Cleanup(handler.Close)

	return handler, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var hello WSMessage
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, MessageConnected, hello.Type)
	require.NotEmpty(t, hello.ServerInstanceID)
	return conn
}

func TestWebSocket_StreamsUntilCompleted(t *testing.T) {
	_, wsURL := newTestWebSocket(t, nil)
	conn := dial(t, wsURL)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: MessageSubscribe, TaskID: "t1"}))

	var seen []int
	for {
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		require.Equal(t, MessageProgress, msg.Type)
		require.NotNil(t, msg.Task)
		seen = append(seen, msg.Task.Progress)
		if msg.Task.Status == models.TaskStatusCompleted {
			break
		}
	}
	assert.Equal(t, []int{0, 25, 50, 75, 100}, seen)

	// No further pushes after the terminal snapshot
	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var extra WSMessage
	assert.Error(t, conn.ReadJSON(&extra))
}

func TestWebSocket_UnknownTaskReportsError(t *testing.T) {
	_, wsURL := newTestWebSocket(t, nil)
	conn := dial(t, wsURL)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: MessageSubscribe, TaskID: "nope"}))

	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageError, msg.Type)
	assert.Equal(t, "nope", msg.TaskID)
	assert.NotEmpty(t, msg.Error)
}

func TestWebSocket_RejectsMalformedMessages(t *testing.T) {
	_, wsURL := newTestWebSocket(t, nil)
	conn := dial(t, wsURL)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{broken")))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageError, msg.Type)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: MessageSubscribe}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "taskId is required", msg.Error)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: "dance"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Contains(t, msg.Error, "unknown message type")
}

func TestWebSocket_DisconnectReleasesClient(t *testing.T) {
	handler, wsURL := newTestWebSocket(t, nil)
	conn := dial(t, wsURL)
	assert.Equal(t, 1, handler.ClientCount())

	require.NoError(t, conn.WriteJSON(WSMessage{Type: MessageSubscribe, TaskID: "t1"}))
	conn.Close()

	assert.Eventually(t, func() bool { return handler.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_RelaysLifecycleEvents(t *testing.T) {
	bus := events.NewService(arbor.NewLogger())
	t.Cleanup(func() { bus.Close() })

	_, wsURL := newTestWebSocket(t, bus)
	conn := dial(t, wsURL)

	require.NoError(t, bus.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventDownloadCompleted,
		Payload: &models.Download{ID: "d1"},
	}))

	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageEvent, msg.Type)
	assert.Equal(t, "download_completed", msg.Event)
	assert.Equal(t, "d1", msg.EntityID)
}
