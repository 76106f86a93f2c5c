package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/c360/semchat/chat"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxFrame   = 16 << 10
)

// Frame types
const (
	FrameSnapshot = "snapshot"
	FrameError    = "error"
	FrameSend     = "send"
	FrameDelete   = "delete"
	FrameRefresh  = "refresh"
)

// serverFrame is pushed to clients.
type serverFrame struct {
	Type     string         `json:"type"`
	Messages []chat.Message `json:"messages,omitempty"`
	Code     string         `json:"code,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// clientFrame is read from clients.
type clientFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	ID   string `json:"id,omitempty"`
}

func snapshotFrame(msgs []chat.Message) []byte {
	if msgs == nil {
		msgs = []chat.Message{}
	}
	data, _ := json.Marshal(struct {
		Type     string         `json:"type"`
		Messages []chat.Message `json:"messages"`
	}{FrameSnapshot, msgs})
	return data
}

func errorFrame(code, message string) []byte {
	data, _ := json.Marshal(serverFrame{Type: FrameError, Code: code, Message: message})
	return data
}

// client owns one connection. Snapshots replace each other in a one-slot
// queue so a slow reader only ever sees the newest list; error frames queue
// separately.
type client struct {
	conn     *websocket.Conn
	limiter  *rate.Limiter
	snapshot chan []byte
	errs     chan []byte
	done     chan struct{}
	once     sync.Once
}

func newClient(conn *websocket.Conn, limiter *rate.Limiter) *client {
	return &client{
		conn:     conn,
		limiter:  limiter,
		snapshot: make(chan []byte, 1),
		errs:     make(chan []byte, 8),
		done:     make(chan struct{}),
	}
}

func (c *client) pushSnapshot(frame []byte) {
	for {
		select {
		case c.snapshot <- frame:
			return
		default:
		}
		select {
		case <-c.snapshot:
		default:
		}
	}
}

func (c *client) pushError(frame []byte) {
	select {
	case c.errs <- frame:
	default:
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

type hub struct {
	logger  *slog.Logger
	metrics *gatewayMetrics

	mu      sync.Mutex
	clients map[*client]struct{}
}

func newHub(logger *slog.Logger, metrics *gatewayMetrics) *hub {
	return &hub{logger: logger, metrics: metrics, clients: make(map[*client]struct{})}
}

func (h *hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.wsClients.Set(float64(n))
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.wsClients.Set(float64(n))
	c.close()
}

func (h *hub) broadcast(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.pushSnapshot(frame)
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second))
		h.remove(c)
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("WebSocket upgrade failed", "error", err)
		return
	}

	c := newClient(conn, s.newWriteLimiter())
	s.hub.add(c)
	c.pushSnapshot(snapshotFrame(s.session.Snapshot()))
	s.logger.Debug("WebSocket client connected", "remote", r.RemoteAddr, "clients", s.hub.count())

	go s.writePump(c)
	s.readPump(c)
}

// readPump runs on the handler goroutine and exits when the connection does.
func (s *Server) readPump(c *client) {
	defer s.hub.remove(c)

	c.conn.SetReadLimit(maxFrame)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("WebSocket read failed", "error", err)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.pushError(errorFrame(CodeBadRequest, "frame must be JSON"))
			continue
		}
		s.handleFrame(c, frame)
	}
}

func (s *Server) handleFrame(c *client, frame clientFrame) {
	ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()

	if (frame.Type == FrameSend || frame.Type == FrameDelete) && !c.limiter.Allow() {
		c.pushError(errorFrame(CodeRateLimited, publicMessage(CodeRateLimited)))
		return
	}

	var err error
	switch frame.Type {
	case FrameSend:
		_, err = s.session.Submit(ctx, frame.Text)
	case FrameDelete:
		err = s.session.Delete(ctx, frame.ID)
	case FrameRefresh:
		err = s.session.Refresh(ctx)
		if err == nil {
			c.pushSnapshot(snapshotFrame(s.session.Snapshot()))
		}
	default:
		c.pushError(errorFrame(CodeBadRequest, "unknown frame type"))
		return
	}

	if err != nil {
		code, _ := errorCode(err)
		c.pushError(errorFrame(code, publicMessage(code)))
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	write := func(msgType int, data []byte) bool {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(msgType, data); err != nil {
			s.logger.Debug("WebSocket write failed", "error", err)
			return false
		}
		return true
	}

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.errs:
			if !write(websocket.TextMessage, frame) {
				return
			}
		case frame := <-c.snapshot:
			if !write(websocket.TextMessage, frame) {
				return
			}
		case <-ticker.C:
			if !write(websocket.PingMessage, nil) {
				return
			}
		}
	}
}
