package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"servicelink/internal/tracking"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout   = 5 * time.Second
	wsCloseAckWindow = 2 * time.Second
	ctrlTimeout      = 5 * time.Second
	readWindow       = 60 * time.Second
	pingInterval     = 30 * time.Second
	authWindow       = 5 * time.Second
)

// envelope is the minimal framing for inbound and outbound messages:
// { "type": "<event>", "data": { ... } }.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// session is one live participant connection, bound to exactly one verified
// (role, id) pair at auth time. It implements tracking.Session.
type session struct {
	id      string
	actor   tracking.Actor
	conn    *websocket.Conn
	writeMu sync.Mutex
}

var _ tracking.Session = (*session)(nil)

func (s *session) ID() string            { return s.id }
func (s *session) Actor() tracking.Actor { return s.actor }

// Send writes a single JSON text frame under the per-connection write lock.
// Safe for concurrent use by the coordinator's broadcasts and the read loop.
func (s *session) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(envelope{Type: event, Data: data})
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

// writeClose sends a close control frame with the given code and reason.
func (s *session) writeClose(code int, reason string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(wsCloseAckWindow),
	)
}

// ping sends a ping control frame under the write lock.
func (s *session) ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(ctrlTimeout))
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctrlTimeout))
}
