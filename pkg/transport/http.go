// ABOUTME: HTTP streaming transport
// ABOUTME: POSTs the request and streams the chunked response body
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of a failed response is kept
const maxErrorBody = 512

// HTTP streams over a POST request with a chunked response
type HTTP struct {
	Endpoint  string
	Client    *http.Client // nil uses http.DefaultClient
	UserAgent string       // empty keeps the client default
}

// Open sends req and returns the response body. The body ends when the
// server finishes or ctx is cancelled.
func (h *HTTP) Open(ctx context.Context, req Request) (io.ReadCloser, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if h.UserAgent != "" {
		httpReq.Header.Set("User-Agent", h.UserAgent)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &Error{Op: "request", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &Error{
			Op:         "request",
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(excerpt)),
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	return &guardedReader{ctx: ctx, r: resp.Body, c: resp.Body}, nil
}
