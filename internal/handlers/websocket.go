package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/agenthub/internal/common"
	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/agenthub/internal/models"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	writeTimeout = 10 * time.Second

	// Inbound message budget per connection
	clientMessageRate  = 10
	clientMessageBurst = 20
)

// Message types exchanged over /ws
const (
	MessageSubscribe   = "subscribe"
	MessageUnsubscribe = "unsubscribe"
	MessageConnected   = "connected"
	MessageProgress    = "progress"
	MessageError       = "error"
	MessageEvent       = "event"
)

// broadcastEvents are relayed to every connected client
var broadcastEvents = []interfaces.EventType{
	interfaces.EventTaskCompleted,
	interfaces.EventTaskCancelled,
	interfaces.EventDownloadCompleted,
	interfaces.EventSubscriptionRefreshed,
	interfaces.EventSubscriptionDeactivated,
	interfaces.EventTrackRefreshed,
}

// WSMessage is the envelope for every frame in both directions
type WSMessage struct {
	Type             string       `json:"type"`
	TaskID           string       `json:"taskId,omitempty"`
	Task             *models.Task `json:"task,omitempty"`
	Error            string       `json:"error,omitempty"`
	Event            string       `json:"event,omitempty"`
	EntityID         string       `json:"entityId,omitempty"`
	ServerInstanceID string       `json:"serverInstanceId,omitempty"`
}

// wsClient is one connection with its serialized writer and active watchers
type wsClient struct {
	conn     *websocket.Conn
	writeMu  sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	limiter  *rate.Limiter
	mu       sync.Mutex
	watchers map[string]context.CancelFunc
	wg       sync.WaitGroup
}

func (c *wsClient) send(msg WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WebSocketHandler streams task progress and lifecycle events to browsers
type WebSocketHandler struct {
	logger           arbor.ILogger
	progress         interfaces.ProgressService
	eventService     interfaces.EventService
	upgrader         websocket.Upgrader
	clients          map[*websocket.Conn]*wsClient
	subs             map[interfaces.EventType]interfaces.SubscriptionID
	mu               sync.RWMutex
	serverInstanceID string // Clients use this to detect a server restart
}

// NewWebSocketHandler creates the handler. eventService may be nil, in which
// case lifecycle events are not relayed.
func NewWebSocketHandler(progress interfaces.ProgressService, eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	readSize, writeSize := 1024, 1024
	if config != nil {
		if config.ReadBufferSize > 0 {
			readSize = config.ReadBufferSize
		}
		if config.WriteBufferSize > 0 {
			writeSize = config.WriteBufferSize
		}
	}

	h := &WebSocketHandler{
		logger:       logger,
		progress:     progress,
		eventService: eventService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readSize,
			WriteBufferSize: writeSize,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for local development
			},
		},
		clients:          make(map[*websocket.Conn]*wsClient),
		subs:             make(map[interfaces.EventType]interfaces.SubscriptionID),
		serverInstanceID: uuid.New().String(),
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized")

	if eventService != nil {
		h.subscribeToEvents()
	}

	return h
}

// HandleWebSocket handles GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &wsClient{
		conn:     conn,
		ctx:      ctx,
		cancel:   cancel,
		limiter:  rate.NewLimiter(clientMessageRate, clientMessageBurst),
		watchers: make(map[string]context.CancelFunc),
	}

	h.mu.Lock()
	h.clients[conn] = client
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Int("clients", clientCount).Msg("WebSocket client connected")

	// Handle client disconnection
	defer func() {
		cancel()
		client.wg.Wait()

		h.mu.Lock()
		delete(h.clients, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Int("clients", remaining).Msg("WebSocket client disconnected")
	}()

	if err := client.send(WSMessage{Type: MessageConnected, ServerInstanceID: h.serverInstanceID}); err != nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}

		if !client.limiter.Allow() {
			client.send(WSMessage{Type: MessageError, Error: "too many messages"})
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			client.send(WSMessage{Type: MessageError, Error: "invalid message"})
			continue
		}

		switch msg.Type {
		case MessageSubscribe:
			if msg.TaskID == "" {
				client.send(WSMessage{Type: MessageError, Error: "taskId is required"})
				continue
			}
			h.startWatch(client, msg.TaskID)
		case MessageUnsubscribe:
			h.stopWatch(client, msg.TaskID)
		default:
			client.send(WSMessage{Type: MessageError, TaskID: msg.TaskID, Error: "unknown message type: " + msg.Type})
		}
	}
}

// startWatch streams taskID to the client until the task settles or either side stops it
func (h *WebSocketHandler) startWatch(client *wsClient, taskID string) {
	client.mu.Lock()
	if _, watching := client.watchers[taskID]; watching {
		client.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(client.ctx)
	client.watchers[taskID] = cancel
	client.wg.Add(1)
	client.mu.Unlock()

	go func() {
		defer client.wg.Done()
		defer func() {
			client.mu.Lock()
			delete(client.watchers, taskID)
			client.mu.Unlock()
			cancel()
		}()
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error().Str("task_id", taskID).Str("panic", fmt.Sprintf("%v", r)).Msg("Progress watcher panicked")
			}
		}()

		err := h.progress.Watch(ctx, taskID, func(task *models.Task) error {
			return client.send(WSMessage{Type: MessageProgress, TaskID: task.ID, Task: task})
		})

		switch {
		case err == nil, errors.Is(err, context.Canceled):
		case errors.Is(err, common.ErrNotFound):
			client.send(WSMessage{Type: MessageError, TaskID: taskID, Error: err.Error()})
		default:
			h.logger.Debug().Err(err).Str("task_id", taskID).Msg("Progress watch stopped")
		}
	}()
}

func (h *WebSocketHandler) stopWatch(client *wsClient, taskID string) {
	client.mu.Lock()
	defer client.mu.Unlock()
	if cancel, ok := client.watchers[taskID]; ok {
		cancel()
	}
}

// subscribeToEvents relays lifecycle events to every connected client
func (h *WebSocketHandler) subscribeToEvents() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, eventType := range broadcastEvents {
		id, err := h.eventService.Subscribe(eventType, h.handleEvent)
		if err != nil {
			h.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to subscribe WebSocket relay")
			continue
		}
		h.subs[eventType] = id
	}
}

func (h *WebSocketHandler) handleEvent(ctx context.Context, event interfaces.Event) error {
	msg := WSMessage{Type: MessageEvent, Event: string(event.Type)}
	if entity, ok := event.Payload.(interfaces.Identified); ok {
		msg.EntityID = entity.GetID()
	}
	h.broadcast(msg)
	return nil
}

// broadcast sends msg to all clients; failed writes are logged and skipped
func (h *WebSocketHandler) broadcast(msg WSMessage) {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.send(msg); err != nil {
			h.logger.Debug().Err(err).Str("type", msg.Type).Msg("Failed to send to WebSocket client")
		}
	}
}

// ClientCount returns the number of open connections
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close unsubscribes from events and closes every connection
func (h *WebSocketHandler) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[interfaces.EventType]interfaces.SubscriptionID)
	h.mu.Unlock()
	for eventType, id := range subs {
		_ = h.eventService.Unsubscribe(eventType, id)
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.cancel()
		client.writeMu.Lock()
		client.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(time.Second))
		client.writeMu.Unlock()
		client.conn.Close()
	}
}
