package services

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/joaohlviana/99novo-sub001/internal/models"
	"github.com/joaohlviana/99novo-sub001/internal/search"
)

// WebSocketHub manages live search sessions. Every connection owns a
// search.Controller whose state changes are pushed to the client.
type WebSocketHub struct {
	// Registered clients
	clients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Messages for every client
	broadcast chan []byte

	stopChan chan struct{}
	stopOnce sync.Once

	newController func() *search.Controller

	logger *logrus.Logger
	mu     sync.RWMutex
}

// Client represents a WebSocket client connection
type Client struct {
	conn *websocket.Conn

	// Buffered channel of outbound messages
	send   chan []byte
	sendMu sync.Mutex
	closed bool

	clientID   string
	controller *search.Controller
	hub        *WebSocketHub

	lastPing   time.Time
	lastPingMu sync.Mutex
}

// WebSocketMessage represents a message sent over WebSocket
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// inboundMessage is a client request
type inboundMessage struct {
	Type    string               `json:"type"`
	Filters models.SearchFilters `json:"filters"`
}

const (
	// Outbound message types
	MessageTypeConnected     = "connected"
	MessageTypeSearchState   = "search_state"
	MessageTypeViewRefreshed = "view_refreshed"
	MessageTypePong          = "pong"
	MessageTypeError         = "error"

	// Inbound message types
	MessageTypeSearch = "search"
	MessageTypeClear  = "clear"
	MessageTypePing   = "ping"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewWebSocketHub creates a new WebSocket hub. newController is called once
// per connection.
func NewWebSocketHub(logger *logrus.Logger, newController func() *search.Controller) *WebSocketHub {
	return &WebSocketHub{
		clients:       make(map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		broadcast:     make(chan []byte, 256),
		stopChan:      make(chan struct{}),
		newController: newController,
		logger:        logger,
	}
}

// Start runs the WebSocket hub until Stop is called
func (h *WebSocketHub) Start() {
	h.logger.Info("Starting WebSocket hub")

	go h.cleanupRoutine()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-h.stopChan:
			h.logger.Info("WebSocket hub stopping")
			return
		}
	}
}

// Stop stops the hub and closes every connection
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopChan)

		h.mu.Lock()
		defer h.mu.Unlock()

		for client := range h.clients {
			client.controller.Close()
			client.close()
			client.conn.Close()
			delete(h.clients, client)
		}
	})
}

// HandleWebSocket upgrades the request and starts a live search session
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request, clientID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn:       conn,
		send:       make(chan []byte, 256),
		clientID:   clientID,
		controller: h.newController(),
		hub:        h,
		lastPing:   time.Now(),
	}

	select {
	case h.register <- client:
	case <-h.stopChan:
		client.controller.Close()
		conn.Close()
		return
	}

	// Subscribe before reading so no state change is missed
	updates, unsubscribe := client.controller.Subscribe()

	go client.writePump()
	go client.forwardState(updates, unsubscribe)
	go client.readPump()
}

// BroadcastViewRefreshed tells every session that the aggregate view was
// rebuilt and cached results were dropped
func (h *WebSocketHub) BroadcastViewRefreshed() {
	h.broadcastToAll(&WebSocketMessage{
		Type:      MessageTypeViewRefreshed,
		Timestamp: time.Now(),
	})
}

// registerClient registers a new client
func (h *WebSocketHub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	h.logger.Infof("WebSocket client connected: client=%s", client.clientID)

	client.enqueue(&WebSocketMessage{
		Type:      MessageTypeConnected,
		Data:      map[string]interface{}{"client_id": client.clientID},
		Timestamp: time.Now(),
	})
}

// unregisterClient unregisters a client
func (h *WebSocketHub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.close()
		h.logger.Infof("WebSocket client disconnected: client=%s", client.clientID)
	}
}

// broadcastMessage sends a message to all clients
func (h *WebSocketHub) broadcastMessage(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if !client.enqueueRaw(message) {
			h.logger.Warnf("WebSocket client %s is not keeping up, dropping message", client.clientID)
		}
	}
}

// broadcastToAll queues a message for every connected client
func (h *WebSocketHub) broadcastToAll(message *WebSocketMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("Broadcast channel full, dropping message")
	}
}

// cleanupRoutine periodically closes inactive connections
func (h *WebSocketHub) cleanupRoutine() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.cleanupInactiveClients(time.Now().Add(-5 * time.Minute))
		case <-h.stopChan:
			return
		}
	}
}

// cleanupInactiveClients closes connections that have not pinged since
// cutoff; their read loops then unregister them
func (h *WebSocketHub) cleanupInactiveClients(cutoff time.Time) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.lastSeen().Before(cutoff) {
			h.logger.Infof("Cleaning up inactive WebSocket client: client=%s", client.clientID)
			client.conn.Close()
		}
	}
}

// GetClientCount returns the number of connected clients
func (h *WebSocketHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client methods

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

func (c *Client) enqueue(message *WebSocketMessage) bool {
	data, err := json.Marshal(message)
	if err != nil {
		c.hub.logger.Errorf("Failed to marshal WebSocket message: %v", err)
		return false
	}
	return c.enqueueRaw(data)
}

// enqueueRaw queues data without blocking. It reports false when the client
// is closed or its buffer is full.
func (c *Client) enqueueRaw(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) touch() {
	c.lastPingMu.Lock()
	c.lastPing = time.Now()
	c.lastPingMu.Unlock()
}

func (c *Client) lastSeen() time.Time {
	c.lastPingMu.Lock()
	defer c.lastPingMu.Unlock()
	return c.lastPing
}

// forwardState pushes every controller state change to the client
func (c *Client) forwardState(updates <-chan search.Snapshot, unsubscribe func()) {
	defer unsubscribe()

	for snap := range updates {
		c.enqueue(&WebSocketMessage{
			Type:      MessageTypeSearchState,
			Data:      snap,
			Timestamp: time.Now(),
		})
	}
}

// readPump reads client requests until the connection fails
func (c *Client) readPump() {
	defer func() {
		c.controller.Close()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopChan:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Errorf("WebSocket error: %v", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump writes queued messages and keepalive pings to the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One JSON document per frame
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

// handleMessage dispatches one client request
func (c *Client) handleMessage(message []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.hub.logger.Warnf("Invalid WebSocket message from client %s: %v", c.clientID, err)
		c.enqueue(&WebSocketMessage{
			Type:      MessageTypeError,
			Data:      map[string]string{"error": "invalid message"},
			Timestamp: time.Now(),
		})
		return
	}

	c.touch()

	switch msg.Type {
	case MessageTypeSearch:
		c.controller.Search(msg.Filters)

	case MessageTypeClear:
		c.controller.ClearResults()

	case MessageTypePing:
		c.enqueue(&WebSocketMessage{Type: MessageTypePong, Timestamp: time.Now()})

	default:
		c.hub.logger.Debugf("Ignoring WebSocket message of type %q from client %s", msg.Type, c.clientID)
	}
}
