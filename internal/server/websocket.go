package server

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zot/turtle/internal/config"
	"github.com/zot/turtle/internal/protocol"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // renderers are served from anywhere during development
	},
}

// client is one connected renderer. Only its write pump writes to conn.
type client struct {
	id     string
	conn   *websocket.Conn
	outbox *protocol.Outbox
	wake   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (c *client) queue(msg *protocol.Message) {
	c.outbox.Queue(msg)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// WebSocketEndpoint handles renderer connections.
type WebSocketEndpoint struct {
	config  *config.Config
	svc     ChanSvc
	handler *protocol.Handler
	clients map[string]*client // connectionID -> client
	mu      sync.RWMutex
}

// NewWebSocketEndpoint creates a new WebSocket endpoint. Messages are
// handled on svc.
func NewWebSocketEndpoint(cfg *config.Config, svc ChanSvc, handler *protocol.Handler) *WebSocketEndpoint {
	return &WebSocketEndpoint{
		config:  cfg,
		svc:     svc,
		handler: handler,
		clients: make(map[string]*client),
	}
}

// Log logs a message via the config.
func (ws *WebSocketEndpoint) Log(level int, format string, args ...interface{}) {
	ws.config.Log(level, format, args...)
}

// HandleWebSocket upgrades the request and serves the connection.
func (ws *WebSocketEndpoint) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.Log(0, "WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{
		id:     "conn-" + uuid.NewString(),
		conn:   conn,
		outbox: protocol.NewOutbox(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	ws.mu.Lock()
	ws.clients[c.id] = c
	ws.mu.Unlock()

	ws.Log(1, "WebSocket connected: conn=%s", c.id)

	go ws.writePump(c)
	go ws.readPump(c)
}

// readPump reads messages from a connection and handles them in order.
func (ws *WebSocketEndpoint) readPump(c *client) {
	defer ws.onDisconnect(c)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.Log(0, "WebSocket error: %v", err)
			}
			return
		}

		SvcSync(ws.svc, func() (struct{}, error) {
			ws.processMessage(c, message)
			return struct{}{}, nil
		})
	}
}

// writePump sends whatever is queued for the client.
func (ws *WebSocketEndpoint) writePump(c *client) {
	defer c.conn.Close()
	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-c.wake:
			for _, msg := range c.outbox.Flush() {
				if err := ws.write(c, msg); err != nil {
					ws.Log(1, "WebSocket write to %s failed: %v", c.id, err)
					c.close()
					return
				}
			}
		}
	}
}

func (ws *WebSocketEndpoint) write(c *client, msg *protocol.Message) error {
	msgType := strings.ToUpper(string(msg.Type))
	if ws.config.Verbosity() >= 4 {
		ws.Log(4, "[OUT] %s: to=%s data=%s", msgType, c.id, string(msg.Data))
	} else if msg.Type != protocol.MsgFrame {
		ws.Log(2, "[OUT] %s: to=%s", msgType, c.id)
	}

	data, err := msg.Encode()
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// processMessage handles one or more messages. It runs on the service.
func (ws *WebSocketEndpoint) processMessage(c *client, message []byte) {
	// Recover from panics to prevent server crashes
	defer func() {
		if r := recover(); r != nil {
			ws.Log(0, "PANIC in processMessage: %v", r)
			c.queue(protocol.ErrorFor("internal", fmt.Errorf("internal error: %v", r)))
		}
	}()

	msgs, err := protocol.ParseMessages(message)
	if err != nil {
		ws.Log(0, "Failed to parse message: %v", err)
		c.queue(protocol.ErrorFor("bad-message", err))
		return
	}

	for _, msg := range msgs {
		resp, err := ws.handler.HandleMessage(c.id, msg)
		if err != nil {
			ws.Log(0, "Failed to handle message: %v", err)
			c.queue(protocol.ErrorFor("bad-message", err))
			continue
		}
		c.queue(resp.Message())
	}
}

// onDisconnect forgets a closed connection.
func (ws *WebSocketEndpoint) onDisconnect(c *client) {
	ws.mu.Lock()
	delete(ws.clients, c.id)
	ws.mu.Unlock()
	c.close()

	ws.Log(1, "WebSocket disconnected: conn=%s", c.id)
}

// Send queues a message for one connection.
func (ws *WebSocketEndpoint) Send(connectionID string, msg *protocol.Message) {
	ws.mu.RLock()
	c, ok := ws.clients[connectionID]
	ws.mu.RUnlock()
	if ok {
		c.queue(msg)
	}
}

// Broadcast queues a message for every connection.
func (ws *WebSocketEndpoint) Broadcast(msg *protocol.Message) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	for _, c := range ws.clients {
		c.queue(msg)
	}
}

// Connections returns the open connection IDs in sorted order.
func (ws *WebSocketEndpoint) Connections() []string {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	ids := make([]string, 0, len(ws.clients))
	for id := range ws.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsConnected checks if a connection is active.
func (ws *WebSocketEndpoint) IsConnected(connectionID string) bool {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	_, ok := ws.clients[connectionID]
	return ok
}

// CloseAll closes every connection.
func (ws *WebSocketEndpoint) CloseAll() {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	for _, c := range ws.clients {
		c.close()
	}
}
