package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wricardo/charles/game/engine"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Per-client queue length before the client is dropped
	clientQueue = 256

	// Hub inbox length before publishes are dropped
	hubQueue = 1024
)

// Event names sent to clients
const (
	EventRedraw  = "redraw"
	EventState   = "state"
	EventProgram = "program"
)

// ProgramEvent is the Data of an EventProgram message, sent when a program
// run ends
type ProgramEvent struct {
	StopReason string `json:"stop_reason"`
	Actions    int    `json:"actions"`
	Message    string `json:"message,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is one frame pushed to viewers of a session
type Message struct {
	SessionID string         `json:"session_id"`
	Event     string         `json:"event"`
	Region    *engine.Region `json:"region,omitempty"`

	// Cells holds the region's glyph rows, top row first
	Cells     []string         `json:"cells,omitempty"`
	Agent     *engine.Position `json:"agent,omitempty"`
	Direction string           `json:"direction,omitempty"`
	State     *engine.State    `json:"state,omitempty"`
	Data      any              `json:"data,omitempty"`
}

// Client is one websocket viewer
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
}

// Hub fans session messages out to the websocket viewers of that session.
// Only the Run goroutine changes the registry or delivers messages. Other
// goroutines may read the registry, e.g. ClientCount, under mu.
type Hub struct {
	// mu guards sessions
	mu       sync.RWMutex
	sessions map[string]map[*Client]bool

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	logger *zap.Logger
}

// NewHub creates a hub. A nil logger discards output.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions:   make(map[string]map[*Client]bool),
		broadcast:  make(chan *Message, hubQueue),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run delivers messages until ctx is done, then closes every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// ServeWS upgrades the request and attaches the connection to sessionID
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, clientQueue),
		sessionID: strings.ToLower(sessionID),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Publish queues m for delivery. It never blocks; when the hub is behind the
// message is dropped.
func (h *Hub) Publish(m *Message) {
	m.SessionID = strings.ToLower(m.SessionID)
	select {
	case h.broadcast <- m:
	default:
		h.logger.Warn("websocket hub queue full, dropping message",
			zap.String("session", m.SessionID), zap.String("event", m.Event))
	}
}

// BroadcastState sends a full state snapshot to a session's viewers
func (h *Hub) BroadcastState(sessionID string, state *engine.State) {
	h.Publish(&Message{SessionID: sessionID, Event: EventState, State: state})
}

// BroadcastEvent sends a custom event to a session's viewers
func (h *Hub) BroadcastEvent(sessionID, event string, data any) {
	h.Publish(&Message{SessionID: sessionID, Event: event, Data: data})
}

// ClientCount returns the number of viewers attached to a session
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[strings.ToLower(sessionID)])
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	if h.sessions[client.sessionID] == nil {
		h.sessions[client.sessionID] = make(map[*Client]bool)
	}
	h.sessions[client.sessionID][client] = true
	n := len(h.sessions[client.sessionID])
	h.mu.Unlock()

	h.logger.Debug("websocket client registered",
		zap.String("session", client.sessionID), zap.Int("clients", n))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	clients, ok := h.sessions[client.sessionID]
	if !ok || !clients[client] {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.sessions, client.sessionID)
	}
	n := len(clients)
	h.mu.Unlock()

	h.logger.Debug("websocket client unregistered",
		zap.String("session", client.sessionID), zap.Int("clients", n))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, clients := range h.sessions {
		for client := range clients {
			close(client.send)
		}
		delete(h.sessions, id)
	}
}

func (h *Hub) broadcastMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal websocket message", zap.Error(err))
		return
	}

	h.mu.RLock()
	var slow []*Client
	for client := range h.sessions[message.SessionID] {
		select {
		case client.send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.unregisterClient(client)
	}
}

// readPump discards client frames and keeps the read deadline moving
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket read failed", zap.String("session", c.sessionID), zap.Error(err))
			}
			return
		}
	}
}

// writePump sends one websocket text frame per queued message
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
