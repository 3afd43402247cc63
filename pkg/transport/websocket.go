// ABOUTME: WebSocket streaming transport
// ABOUTME: Sends the request as text and presents binary messages as a byte stream
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeGrace = time.Second

// WebSocket streams over a WebSocket connection. Each binary message is one
// fragment of the framed stream.
type WebSocket struct {
	Endpoint string            // ws:// or wss:// URL
	Dialer   *websocket.Dialer // nil uses websocket.DefaultDialer
}

// Open dials the endpoint, sends req and returns the incoming stream
func (w *WebSocket) Open(ctx context.Context, req Request) (io.ReadCloser, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	dialer := w.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, w.Endpoint, nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		te := &Error{Op: "dial", Err: err}
		if resp != nil {
			te.StatusCode = resp.StatusCode
		}
		return nil, te
	}

	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, &Error{Op: "request", Err: fmt.Errorf("failed to send request: %w", err)}
	}

	s := &wsStream{conn: conn, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	return &guardedReader{ctx: ctx, r: s, c: s}, nil
}

// wsStream reads binary messages as one continuous stream
type wsStream struct {
	conn    *websocket.Conn
	current io.Reader
	done    chan struct{}
	once    sync.Once
}

func (s *wsStream) Read(p []byte) (int, error) {
	for {
		if s.current != nil {
			n, err := s.current.Read(p)
			if errors.Is(err, io.EOF) {
				s.current = nil
				if n > 0 {
					return n, nil
				}
				continue
			}
			return n, err
		}

		msgType, r, err := s.conn.NextReader()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}
			return 0, err
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		s.current = r
	}
}

// Close sends a close frame and releases the connection
func (s *wsStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		err = s.conn.Close()
	})
	return err
}
