package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quickbite/delivery-core/internal/domain/user"
	"github.com/quickbite/delivery-core/internal/metrics"
)

const (
	// writeWait bounds a single push; a timed-out write drops the connection.
	writeWait = 10 * time.Second
	// registerWait is how long a fresh connection has to announce identity.
	registerWait = 15 * time.Second
	// pongWait is the read deadline refreshed by client pongs.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// sendBuffer is the per-session outbound queue. A full queue means a slow
	// consumer; further events for that session are dropped, not queued.
	sendBuffer = 64

	maxMessageSize = 4096
)

// registerFrame is the first frame a client must send after connecting.
type registerFrame struct {
	Type   string    `json:"type"`
	UserID string    `json:"userId"`
	Role   user.Role `json:"role"`
}

// session is one live WebSocket connection with its outbound queue.
type session struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
}

// Hub owns all live WebSocket sessions and fans domain events out to them.
// It is handed to the transport layer and the notifier as an explicit
// dependency; there is no package-level singleton.
type Hub struct {
	registry *Registry
	lg       *zap.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*session
	closed   bool
}

// NewHub creates a Hub around the given registry.
func NewHub(registry *Registry, m *metrics.Metrics, lg *zap.Logger) *Hub {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Hub{
		registry: registry,
		lg:       lg,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin enforcement happens in the CORS middleware; the API is
			// consumed by mobile clients without an Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions: make(map[string]*session),
	}
}

// ServeWS upgrades the request and serves the connection until it closes.
// The first client frame must be a register message carrying user id and role;
// connections that stay silent past the deadline are dropped.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.lg.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	s := &session{
		id:   uuid.New().String(),
		ws:   ws,
		send: make(chan []byte, sendBuffer),
	}

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(registerWait))

	frame, ok := h.readRegister(s)
	if !ok {
		_ = ws.Close()
		return
	}

	h.attach(s, frame)
	go h.writePump(s)
	h.readPump(s)
}

// readRegister waits for the identity announcement. Returns false on timeout,
// close, or a malformed frame.
func (h *Hub) readRegister(s *session) (registerFrame, bool) {
	var frame registerFrame
	_, data, err := s.ws.ReadMessage()
	if err != nil {
		return frame, false
	}
	if err := json.Unmarshal(data, &frame); err != nil || frame.Type != "register" {
		h.lg.Debug("malformed register frame", zap.String("session_id", s.id))
		return frame, false
	}
	if frame.UserID == "" || !frame.Role.Valid() {
		return frame, false
	}
	return frame, true
}

func (h *Hub) attach(s *session, frame registerFrame) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = s.ws.Close()
		return
	}
	h.sessions[s.id] = s
	h.mu.Unlock()

	h.registry.Register(s.id, frame.UserID, frame.Role)
	if h.metrics != nil {
		h.metrics.SessionsActive.Inc()
	}
	h.lg.Info("session registered",
		zap.String("session_id", s.id),
		zap.String("user_id", frame.UserID),
		zap.String("role", string(frame.Role)),
	)
}

func (h *Hub) detach(s *session) {
	h.mu.Lock()
	_, present := h.sessions[s.id]
	delete(h.sessions, s.id)
	h.mu.Unlock()
	if !present {
		return
	}

	h.registry.Unregister(s.id)
	close(s.send)
	if h.metrics != nil {
		h.metrics.SessionsActive.Dec()
	}
	h.lg.Info("session closed", zap.String("session_id", s.id))
}

// readPump consumes client frames until the connection dies. A client may
// re-send a register frame to rebind the session (e.g. after an app-level
// re-login); everything else is ignored.
func (h *Hub) readPump(s *session) {
	defer func() {
		h.detach(s)
		_ = s.ws.Close()
	}()

	_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))
	s.ws.SetPongHandler(func(string) error {
		return s.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			return
		}
		var frame registerFrame
		if err := json.Unmarshal(data, &frame); err == nil &&
			frame.Type == "register" && frame.UserID != "" && frame.Role.Valid() {
			h.registry.Register(s.id, frame.UserID, frame.Role)
		}
	}
}

// writePump drains the session's send queue onto the wire and keeps the
// connection alive with pings. A write error or timeout ends the connection.
func (h *Hub) writePump(s *session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Publish encodes the event once and pushes it to every session resolved from
// the audience. Delivery is at-most-once: sessions with a full send queue are
// skipped and the drop is counted, never retried.
func (h *Hub) Publish(e Event, aud Audience) {
	data, err := Encode(e)
	if err != nil {
		h.lg.Error("encode event", zap.String("type", string(e.EventType())), zap.Error(err))
		return
	}

	targets := make(map[string]struct{})
	for _, id := range aud.UserIDs {
		for _, sid := range h.registry.SessionsFor(id) {
			targets[sid] = struct{}{}
		}
	}
	for _, role := range aud.Roles {
		for _, sid := range h.registry.SessionsForRole(role) {
			targets[sid] = struct{}{}
		}
	}

	if h.metrics != nil {
		h.metrics.EventsPublished.WithLabelValues(string(e.EventType())).Inc()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sid := range targets {
		s, ok := h.sessions[sid]
		if !ok {
			continue
		}
		select {
		case s.send <- data:
		default:
			if h.metrics != nil {
				h.metrics.FanoutDropped.Inc()
			}
			h.lg.Warn("dropping event for slow session",
				zap.String("session_id", sid),
				zap.String("type", string(e.EventType())),
			)
		}
	}
}

// Close tears down every live session. Used during graceful shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	sessions := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		h.detach(s)
		_ = s.ws.Close()
	}
}
