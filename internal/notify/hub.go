package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"ridehail/internal/types"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *session) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

func (s *session) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Hub keeps one live websocket session per driver. A newer connection
// replaces the older one.
type Hub struct {
	mu       sync.RWMutex
	sessions map[types.ID]*session
	log      logrus.FieldLogger
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{sessions: make(map[types.ID]*session), log: log}
}

// Serve upgrades the request and blocks until the connection closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, driverID types.ID) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	s := &session{conn: conn}
	h.add(driverID, s)
	defer h.remove(driverID, s)

	done := make(chan struct{})
	defer close(done)
	go h.keepAlive(s, done)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// Drivers only listen; inbound frames are drained and dropped.
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.WithError(err).WithField("driver_id", driverID).Debug("websocket closed")
			}
			return nil
		}
	}
}

func (h *Hub) Notify(_ context.Context, n Notification) error {
	h.mu.RLock()
	s, ok := h.sessions[n.DriverID]
	h.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.send(n)
}

// Connected reports whether the driver has a live session.
func (h *Hub) Connected(driverID types.ID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sessions[driverID]
	return ok
}

func (h *Hub) add(driverID types.ID, s *session) {
	h.mu.Lock()
	prev := h.sessions[driverID]
	h.sessions[driverID] = s
	h.mu.Unlock()
	if prev != nil {
		_ = prev.conn.Close()
	}
}

func (h *Hub) remove(driverID types.ID, s *session) {
	h.mu.Lock()
	if h.sessions[driverID] == s {
		delete(h.sessions, driverID)
	}
	h.mu.Unlock()
	_ = s.conn.Close()
}

func (h *Hub) keepAlive(s *session, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := s.ping(); err != nil {
				return
			}
		}
	}
}
