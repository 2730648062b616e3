package http

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsSink adapts one gorilla websocket connection to hub.Sink. The mutex
// exists because gorilla connections allow only one concurrent writer.
type wsSink struct {
	conn *websocket.Conn
	mu   sync.Mutex
	id   string
}

func newWSSink(conn *websocket.Conn) *wsSink {
	return &wsSink{conn: conn, id: conn.RemoteAddr().String()}
}

func (s *wsSink) Send(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(5 * time.Second)
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *wsSink) Close(reason string) error {
	s.mu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	s.mu.Unlock()
	return s.conn.Close()
}

func (s *wsSink) ID() string {
	return s.id
}
