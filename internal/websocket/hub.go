package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

// TypeStateChanged is the only event pushed to observers. It carries no
// payload; observers re-fetch state through the HTTP API.
const TypeStateChanged = "state_changed"

const (
	sendBufSize  = 16
	writeTimeout = 10 * time.Second
)

// Message represents a WebSocket message
type Message struct {
	Type string `json:"type"`
}

// Client represents a connected observer
type Client struct {
	ID   string
	Conn *websocket.Conn
	Hub  *Hub
	Send chan []byte
}

// Hub keeps the set of connected observers and pushes change signals to
// them. Publishing never blocks: an observer whose buffer is full is
// dropped.
type Hub struct {
	mu             sync.RWMutex
	clients        map[*Client]struct{}
	jwtSecret      string
	allowedOrigins []string
	logger         zerolog.Logger
	stateChanged   []byte
}

// NewHub creates a new Hub. An empty jwtSecret accepts unauthenticated observers.
func NewHub(jwtSecret string, allowedOrigins []string, logger zerolog.Logger) *Hub {
	stateChanged, _ := json.Marshal(Message{Type: TypeStateChanged})
	return &Hub{
		clients:        make(map[*Client]struct{}),
		jwtSecret:      jwtSecret,
		allowedOrigins: allowedOrigins,
		logger:         logger.With().Str("component", "websocket").Logger(),
		stateChanged:   stateChanged,
	}
}

// Subscribe adds a client to the broadcast set
func (h *Hub) Subscribe(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug().Str("client", c.ID).Msg("WebSocket client connected")
}

// Unsubscribe removes a client and closes its send channel. Safe to call twice.
func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.Send)
		h.logger.Debug().Str("client", c.ID).Msg("WebSocket client disconnected")
	}
}

// Count returns the number of connected observers
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishChange sends {"type":"state_changed"} to every observer
func (h *Hub) PublishChange() {
	h.publish(h.stateChanged)
}

func (h *Hub) publish(msg []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !h.trySend(c, msg) {
			h.logger.Warn().Str("client", c.ID).Msg("Dropping slow WebSocket client")
			h.Unsubscribe(c)
		}
	}
}

// trySend queues msg without blocking. It reports false when the client's
// buffer is full.
func (h *Hub) trySend(c *Client, msg []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		// already unsubscribed, its channel is closed
		return true
	}
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

// Close disconnects every observer
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.Send)
	}
}

// HandleWebSocket upgrades the request and subscribes the connection
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := ""
	if h.jwtSecret != "" {
		var err error
		userID, err = h.authenticate(r)
		if err != nil {
			h.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket connection rejected")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	allowedOrigins := h.allowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"localhost:3000"}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(allowedOrigins),
	})
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	clientID := uuid.NewString()
	if userID != "" {
		clientID = "user:" + userID + ":" + clientID
	}

	client := &Client{
		ID:   clientID,
		Conn: conn,
		Hub:  h,
		Send: make(chan []byte, sendBufSize),
	}

	h.Subscribe(client)

	go client.writePump()
	client.readPump()
}

// authenticate validates the HS256 bearer token from the query string or
// Authorization header and returns its user id claim
func (h *Hub) authenticate(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		return "", fmt.Errorf("missing token")
	}

	parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		return []byte(h.jwtSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("unexpected claims type")
	}
	switch uid := claims["user_id"].(type) {
	case float64:
		return fmt.Sprintf("%d", int(uid)), nil
	case string:
		return uid, nil
	}
	return "", fmt.Errorf("token has no user_id")
}

// originPatterns strips schemes: nhooyr matches patterns against the Origin host
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		patterns = append(patterns, o)
	}
	return patterns
}

// readPump reads from the connection until it closes, then unsubscribes
func (c *Client) readPump() {
	defer func() {
		c.Hub.Unsubscribe(c)
		c.Conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := context.Background()
	c.Conn.SetReadLimit(512)
	for {
		_, message, err := c.Conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway &&
				status != websocket.StatusNoStatusRcvd {
				c.Hub.logger.Debug().Err(err).Str("client", c.ID).Msg("WebSocket read ended")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		c.handleMessage(msg)
	}
}

// writePump drains the send channel to the connection
func (c *Client) writePump() {
	for message := range c.Send {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := c.Conn.Write(ctx, websocket.MessageText, message)
		cancel()
		if err != nil {
			c.Conn.Close(websocket.StatusGoingAway, "write failed")
			return
		}
	}
	// channel closed by Unsubscribe or Close
	c.Conn.Close(websocket.StatusNormalClosure, "")
}

func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case "ping":
		response, _ := json.Marshal(Message{Type: "pong"})
		c.Hub.trySend(c, response)
	default:
		c.Hub.logger.Debug().Str("client", c.ID).Str("type", msg.Type).Msg("Unknown message type")
	}
}
