package websocket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tuberip/tuberip/internal/events"
	"github.com/tuberip/tuberip/internal/log"
)

// Hub is the server side of the event stream. Every accepted connection gets
// a session ID that is sent on the first frame.
type Hub struct {
	upgrader websocket.Upgrader
	logger   log.Logger

	mu    sync.Mutex
	conns map[string]*hubConn
}

type hubConn struct {
	mu sync.Mutex
	c  *websocket.Conn
}

func (h *hubConn) write(data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_ = h.c.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return h.c.WriteMessage(websocket.TextMessage, data)
}

// NewHub returns a new event stream hub.
func NewHub(logger log.Logger) *Hub {
	if logger == nil {
		logger = log.Noop
	}

	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		logger:   logger.WithValues(log.Kv{"svc": "websocket.Hub"}),
		conns:    map[string]*hubConn{},
	}
}

// ServeHTTP upgrades the request and keeps the connection until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warningf("could not upgrade connection: %s", err)
		return
	}

	sid := uuid.NewString()
	hc := &hubConn{c: c}

	h.mu.Lock()
	h.conns[sid] = hc
	h.mu.Unlock()
	h.logger.Debugf("Session %s connected", sid)

	defer func() {
		h.mu.Lock()
		delete(h.conns, sid)
		h.mu.Unlock()
		_ = c.Close()
		h.logger.Debugf("Session %s disconnected", sid)
	}()

	data, _ := json.Marshal(events.Frame{Event: events.EventConnect, SessionID: sid})
	if err := hc.write(data); err != nil {
		return
	}

	// Clients don't send anything, read only to detect the disconnection.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

// Sessions returns the connected session IDs.
func (h *Hub) Sessions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	sids := make([]string, 0, len(h.conns))
	for sid := range h.conns {
		sids = append(sids, sid)
	}
	return sids
}

// Broadcast sends an event to every connected session.
func (h *Hub) Broadcast(event string, payload any) error {
	data, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}

	h.mu.Lock()
	conns := make([]*hubConn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := c.write(data); err != nil {
			h.logger.Warningf("could not write event: %s", err)
		}
	}
	return nil
}

// Emit sends an event to a single session.
func (h *Hub) Emit(sid, event string, payload any) error {
	data, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}

	h.mu.Lock()
	c, ok := h.conns[sid]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s is not connected", sid)
	}

	return c.write(data)
}

// CloseAll drops every connected session.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.conns {
		_ = c.c.Close()
	}
}

func encodeFrame(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("could not encode payload: %w", err)
	}

	data, err := json.Marshal(events.Frame{Event: event, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("could not encode frame: %w", err)
	}
	return data, nil
}
