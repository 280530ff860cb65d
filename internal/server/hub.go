package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"codepad/internal/common/http/middleware"
	"codepad/internal/playground/model"
	"codepad/internal/playground/notify"
	"codepad/internal/playground/view"
	"codepad/pkg/utils/contextkey"
	"codepad/pkg/utils/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message types pushed over the websocket.
const (
	MessageStdout       = "stdout"
	MessageStderr       = "stderr"
	MessageStatus       = "status"
	MessageNotification = "notification"
	MessageCelebrate    = "celebrate"
)

const (
	defaultSendBuffer = 256
	writeWait         = 5 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = pongWait * 9 / 10
)

// Message is one websocket frame.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// HubConfig configures websocket delivery.
type HubConfig struct {
	// SendBuffer is the per-client queue; a client that falls this far behind is dropped.
	SendBuffer int `yaml:"sendBuffer"`
	// AllowedOrigins limits browser origins; empty accepts any.
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// Hub fans view events out to the websocket clients of each session. It also
// serves as the notification surface and the celebration hook.
type Hub struct {
	upgrader   websocket.Upgrader
	sendBuffer int

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan Message
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// NewHub creates a hub.
func NewHub(cfg HubConfig) *Hub {
	h := &Hub{
		sendBuffer: cfg.SendBuffer,
		clients:    make(map[string]map[*client]struct{}),
	}
	if h.sendBuffer <= 0 {
		h.sendBuffer = defaultSendBuffer
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

// Publish queues msg for every client of sessionID without blocking.
func (h *Hub) Publish(sessionID string, msg Message) {
	h.mu.RLock()
	var slow []*client
	for c := range h.clients[sessionID] {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		logger.Warn(context.Background(), "websocket client too slow, dropping", zap.String("session_id", sessionID))
		h.remove(sessionID, c)
	}
}

// Listener adapts view events of one session to hub messages.
func (h *Hub) Listener(sessionID string) view.Listener {
	return func(ev view.Event) {
		h.Publish(sessionID, Message{Type: string(ev.Type), Data: ev.Data})
	}
}

// Notify delivers n to the session named in ctx.
func (h *Hub) Notify(ctx context.Context, n notify.Notification) error {
	if id, ok := ctx.Value(contextkey.SessionID).(string); ok && id != "" {
		h.Publish(id, Message{Type: MessageNotification, Data: n})
	}
	return nil
}

// Celebrate tells the session's clients a run succeeded.
func (h *Hub) Celebrate(ctx context.Context, result model.ExecutionResult) {
	if id, ok := ctx.Value(contextkey.SessionID).(string); ok && id != "" {
		h.Publish(id, Message{Type: MessageCelebrate, Data: map[string]interface{}{
			"runId":      result.RunID,
			"durationMs": result.DurationMs,
		}})
	}
}

// Clients returns how many sockets are attached to sessionID.
func (h *Hub) Clients(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// CloseSession disconnects every client of sessionID.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	set := h.clients[sessionID]
	delete(h.clients, sessionID)
	h.mu.Unlock()
	for c := range set {
		c.close()
	}
}

// Serve upgrades the request and streams messages until the client leaves.
// initial, if set, is sent first so a late subscriber sees the current state.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string, initial *Message) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{conn: conn, send: make(chan Message, h.sendBuffer)}
	if initial != nil {
		c.send <- *initial
	}

	h.mu.Lock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = make(map[*client]struct{})
	}
	h.clients[sessionID][c] = struct{}{}
	h.mu.Unlock()

	ctx := context.WithValue(r.Context(), contextkey.SessionID, sessionID)
	logger.Info(ctx, "websocket connected")

	go h.writePump(c)
	h.readPump(c)
	h.remove(sessionID, c)
	logger.Info(ctx, "websocket disconnected")
	return nil
}

func (h *Hub) remove(sessionID string, c *client) {
	h.mu.Lock()
	if set, ok := h.clients[sessionID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, sessionID)
		}
	}
	h.mu.Unlock()
	c.close()
}

// readPump only watches for the peer closing; clients never send commands.
func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
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

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || middleware.OriginAllowed(origin, allowed)
	}
}
