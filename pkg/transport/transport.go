// ABOUTME: Transport request and error types
// ABOUTME: Defines the Streamer interface shared by HTTP and WebSocket
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// DefaultPath is the stream endpoint served by the backend
	DefaultPath = "/process-audio/stream-audio"
	// DefaultWSPath is the WebSocket stream endpoint
	DefaultWSPath = "/ws"
)

// Request asks the backend to stream translated audio
type Request struct {
	SourceURL      string `json:"audioUrl"`
	TargetLanguage string `json:"targetLanguage"`
	SessionID      string `json:"docId"`
}

// Validate checks the required fields
func (r Request) Validate() error {
	if strings.TrimSpace(r.SourceURL) == "" {
		return errors.New("source url is required")
	}
	if strings.TrimSpace(r.TargetLanguage) == "" {
		return errors.New("target language is required")
	}
	return nil
}

// Streamer opens a framed byte stream
type Streamer interface {
	Open(ctx context.Context, req Request) (io.ReadCloser, error)
}

// Error is a transport failure: a refused request, a dial failure or an
// interrupted stream.
type Error struct {
	Op         string // "dial", "request" or "read"
	StatusCode int    // HTTP status when the server refused the request
	Body       string // start of the error response body
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("transport %s: status %d: %s", e.Op, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("transport %s: status %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// guardedReader maps read failures onto *Error, or onto the context error
// when cancellation caused them.
type guardedReader struct {
	ctx context.Context
	r   io.Reader
	c   io.Closer
}

func (g *guardedReader) Read(p []byte) (int, error) {
	n, err := g.r.Read(p)
	if err == nil || errors.Is(err, io.EOF) {
		return n, err
	}
	if ctxErr := g.ctx.Err(); ctxErr != nil {
		return n, ctxErr
	}
	var te *Error
	if errors.As(err, &te) {
		return n, err
	}
	return n, &Error{Op: "read", Err: err}
}

func (g *guardedReader) Close() error {
	return g.c.Close()
}
