package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"expense-approval/internal/event"
	"expense-approval/internal/middleware"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one WebSocket connection of an authenticated user.
type Client struct {
	Hub    *Hub
	UserID uuid.UUID
	Conn   *websocket.Conn
	Send   chan []byte
}

type delivery struct {
	userID  uuid.UUID
	message []byte
}

// Hub routes workflow events to the connections of the users they concern.
type Hub struct {
	clients    map[uuid.UUID]map[*Client]bool
	deliver    chan delivery
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

// NewHub creates a hub. allowedOrigins empty accepts any origin.
func NewHub(logger *zap.Logger, allowedOrigins []string) *Hub {
	h := &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		deliver:    make(chan delivery, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.With(zap.String("component", "ws_hub")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// Run dispatches until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for userID, set := range h.clients {
				for client := range set {
					close(client.Send)
				}
				delete(h.clients, userID)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.UserID] == nil {
				h.clients[client.UserID] = make(map[*Client]bool)
			}
			h.clients[client.UserID][client] = true
			h.mu.Unlock()
			h.logger.Debug("client connected", zap.String("user_id", client.UserID.String()))
		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
		case d := <-h.deliver:
			h.mu.Lock()
			for client := range h.clients[d.userID] {
				select {
				case client.Send <- d.message:
				default:
					// Slow consumer; drop the connection rather than block the hub.
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove must be called with mu held.
func (h *Hub) remove(client *Client) {
	set, ok := h.clients[client.UserID]
	if !ok || !set[client] {
		return
	}
	delete(set, client)
	close(client.Send)
	if len(set) == 0 {
		delete(h.clients, client.UserID)
	}
	h.logger.Debug("client disconnected", zap.String("user_id", client.UserID.String()))
}

// Connected returns the number of open connections of userID.
func (h *Hub) Connected(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Publish queues e for every recipient. Users without a connection are skipped;
// they still get the notification row.
func (h *Hub) Publish(ctx context.Context, e event.Event) error {
	msg, err := json.Marshal(e)
	if err != nil {
		return err
	}
	for _, userID := range e.Recipients() {
		if h.Connected(userID) == 0 {
			continue
		}
		select {
		case h.deliver <- delivery{userID: userID, message: msg}:
		case <-h.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// writePump handles writing messages from the Hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump keeps the connection alive and notices when the peer goes away
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		_ = c.Conn.Close()
	}()
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
	}
}

// ServeWs upgrades an authenticated request. The JWT comes in the token query parameter
// because browsers cannot set headers on WebSocket handshakes.
func ServeWs(hub *Hub, auth *middleware.Auth, c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		hub.logger.Info("websocket rejected: missing token")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	id, err := auth.ParseToken(tokenString)
	if err != nil {
		hub.logger.Info("websocket rejected: invalid token", zap.Error(err))
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := hub.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &Client{Hub: hub, UserID: id.UserID, Conn: conn, Send: make(chan []byte, 64)}
	select {
	case hub.register <- client:
	case <-hub.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
