package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/smartlamp/lamplink/internal/services"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Dashboard clients only send control frames
	maxMessageSize = 512

	sendBufferSize = 256
)

// Handler fans bus events out to dashboard WebSocket clients.
type Handler struct {
	eventBus *services.EventBus
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[*Client]bool
	events  <-chan Event
	done    chan struct{}
}

// Event aliases the bus event so callers of this package need not import
// services just to read frames.
type Event = services.Event

// Client represents a connected dashboard
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	filter  map[services.EventType]bool
	handler *Handler
	logger  *zap.Logger
}

// NewHandler creates a new WebSocket handler. allowOrigin "*" accepts any
// origin, otherwise the Origin header must match exactly.
func NewHandler(eventBus *services.EventBus, allowOrigin string, logger *zap.Logger) *Handler {
	h := &Handler{
		eventBus: eventBus,
		logger:   logger.Named("dashboard-ws"),
		clients:  make(map[*Client]bool),
		done:     make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowOrigin == "*" || origin == "" || origin == allowOrigin
		},
	}
	return h
}

// HandleConnection upgrades a dashboard connection. ?events=a,b limits the
// event types the client receives.
// GET /ws
func (h *Handler) HandleConnection(c *gin.Context) {
	filter, ok := parseFilter(c.Query("events"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event type"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}

	client := &Client{
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		filter:  filter,
		handler: h,
		logger:  h.logger,
	}

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	h.logger.Info("Dashboard client connected",
		zap.String("remote_addr", conn.RemoteAddr().String()))

	go client.writePump()
	go client.readPump()
}

func parseFilter(raw string) (map[services.EventType]bool, bool) {
	if raw == "" {
		return nil, true
	}

	filter := make(map[services.EventType]bool)
	for _, name := range strings.Split(raw, ",") {
		known := false
		for _, t := range services.AllEventTypes {
			if string(t) == strings.TrimSpace(name) {
				filter[t] = true
				known = true
			}
		}
		if !known {
			return nil, false
		}
	}
	return filter, true
}

// BroadcastEvent sends an event to every client subscribed to its type.
// Clients that cannot keep up are disconnected.
func (h *Handler) BroadcastEvent(event Event) {
	message, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.filter != nil && !client.filter[event.Type] {
			continue
		}
		select {
		case client.send <- message:
		default:
			h.logger.Warn("Client send buffer full, closing connection")
			go h.unregisterClient(client)
		}
	}
}

// StartEventListener subscribes to the bus and broadcasts until Stop.
func (h *Handler) StartEventListener() {
	h.mu.Lock()
	if h.events != nil {
		h.mu.Unlock()
		return
	}
	events := h.eventBus.SubscribeAll(100)
	h.events = events
	h.mu.Unlock()

	go func() {
		for {
			select {
			case <-h.done:
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				h.BroadcastEvent(event)
			}
		}
	}()
}

// Stop detaches from the bus and disconnects every client.
func (h *Handler) Stop() {
	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		return
	default:
		close(h.done)
	}
	events := h.events
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	if events != nil {
		h.eventBus.Unsubscribe(events)
	}
	for _, client := range clients {
		h.unregisterClient(client)
	}
}

func (h *Handler) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.logger.Info("Dashboard client disconnected")
	}
}

// GetClientCount returns the number of connected clients
func (h *Handler) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump discards client frames and keeps the read deadline alive.
func (c *Client) readPump() {
	defer c.handler.unregisterClient(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("Dashboard client read error", zap.Error(err))
			}
			return
		}
		c.logger.Debug("Ignoring message from dashboard client", zap.ByteString("message", message))
	}
}

// writePump writes one event per text frame and pings idle clients.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
