// ABOUTME: Dev backend serving framed translated-audio streams
// ABOUTME: HTTP chunked and WebSocket endpoints, optional upstream proxy and mDNS
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dubcast/dubcast-go/internal/discovery"
	"github.com/dubcast/dubcast-go/internal/metrics"
	"github.com/dubcast/dubcast-go/internal/version"
	"github.com/dubcast/dubcast-go/pkg/audio"
	"github.com/dubcast/dubcast-go/pkg/frame"
	"github.com/dubcast/dubcast-go/pkg/transport"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSPath is the WebSocket stream endpoint
const WSPath = transport.DefaultWSPath

// maxRequestBody bounds the JSON request body
const maxRequestBody = 64 << 10

// Config holds backend configuration
type Config struct {
	Addr         string
	Name         string
	Codec        string // wav or opus
	Segment      time.Duration
	MaxChunkSize uint32
	FetchTimeout time.Duration
	Upstream     string  // base URL to proxy to; empty serves locally
	Pace         float64 // 1 sends in real time, 0 as fast as possible
	Advertise    bool
	SourceRoot   string   // confines local sources; empty allows any path
	SourceHosts  []string // allowed remote source hosts; empty allows any

	Logger  *zap.Logger
	Metrics *metrics.Backend
	Client  *http.Client // used for sources and the upstream
}

// Server is the dev backend
type Server struct {
	config   Config
	serverID string
	logger   *zap.Logger
	metrics  *metrics.Backend
	loader   *Loader
	upstream *transport.HTTP

	upgrader websocket.Upgrader
	mux      *http.ServeMux

	httpServer  *http.Server
	mdnsManager *discovery.Manager

	stopChan chan struct{}
	stopOnce sync.Once
}

// errorResponse is the body of a failed stream request
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// New creates a backend
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Metrics == nil {
		config.Metrics = metrics.NewBackendUnregistered()
	}
	if config.Codec == "" {
		config.Codec = "wav"
	}
	if config.Segment <= 0 {
		config.Segment = 2 * time.Second
	}
	if config.MaxChunkSize == 0 {
		config.MaxChunkSize = frame.DefaultMaxChunkSize
	}

	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		logger:   config.Logger,
		metrics:  config.Metrics,
		loader:   &Loader{Client: config.Client, Root: config.SourceRoot, Hosts: config.SourceHosts},
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// Trusted local networks only
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		stopChan: make(chan struct{}),
	}
	if config.Upstream != "" {
		s.upstream = &transport.HTTP{
			Endpoint:  strings.TrimRight(config.Upstream, "/") + transport.DefaultPath,
			Client:    config.Client,
			UserAgent: version.UserAgent(),
		}
	}

	s.mux.HandleFunc("POST "+transport.DefaultPath, s.handleStream)
	s.mux.HandleFunc("GET "+WSPath, s.handleWebSocket)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

// Handler returns the HTTP handler serving all endpoints
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ID returns the server instance id
func (s *Server) ID() string {
	return s.serverID
}

// Start listens on the configured address and serves until Stop is called
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}

	s.logger.Info("backend starting",
		zap.String("name", s.config.Name),
		zap.String("id", s.serverID),
		zap.String("addr", ln.Addr().String()),
		zap.String("codec", s.config.Codec),
		zap.String("upstream", s.config.Upstream))

	if s.config.Advertise {
		if s.config.SourceRoot == "" || len(s.config.SourceHosts) == 0 {
			s.logger.Warn("advertising with unrestricted sources; any LAN client can read local files or fetch URLs through this backend",
				zap.String("source_root", s.config.SourceRoot),
				zap.Strings("source_hosts", s.config.SourceHosts))
		}
		port := 0
		if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
			port = tcp.Port
		}
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        port,
			StreamPath:  transport.DefaultPath,
			WSPath:      WSPath,
			Logger:      s.logger,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			s.logger.Warn("failed to start mDNS advertisement", zap.Error(err))
		}
	}

	s.httpServer = &http.Server{Handler: s.mux, ReadHeaderTimeout: 10 * time.Second}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-s.stopChan:
		s.logger.Info("backend shutting down")
	case err := <-errChan:
		s.logger.Error("HTTP server error", zap.Error(err))
		serverErr = err
	}

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	s.logger.Info("backend stopped cleanly")
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "id": s.serverID, "version": version.UserAgent()})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var req transport.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		s.metrics.StreamErrors.WithLabelValues("request").Inc()
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		s.metrics.StreamErrors.WithLabelValues("request").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.metrics.Streams.WithLabelValues("http").Inc()
	s.metrics.ActiveConns.Inc()
	defer s.metrics.ActiveConns.Dec()

	logger := s.logger.With(
		zap.String("transport", "http"),
		zap.String("doc_id", req.SessionID),
		zap.String("language", req.TargetLanguage))

	if s.upstream != nil {
		s.proxy(w, r, req, logger)
		return
	}

	buf, seg, err := s.prepare(r.Context(), req)
	if err != nil {
		s.metrics.StreamErrors.WithLabelValues("load").Inc()
		logger.Warn("failed to prepare stream", zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, ErrSourceDenied) {
			status = http.StatusForbidden
		}
		writeError(w, status, "Backend error: "+err.Error())
		return
	}
	defer seg.Close()

	w.Header().Set("Content-Type", seg.MediaType())
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	fw := frame.NewWriter(w, frame.WithMaxChunkSize(s.config.MaxChunkSize))

	err = s.stream(r.Context(), buf, seg, func(payload []byte) error {
		if err := fw.WriteFrame(payload); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	s.finish(logger, err)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.metrics.StreamErrors.WithLabelValues("upgrade").Inc()
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var req transport.Request
	if err := conn.ReadJSON(&req); err != nil {
		s.metrics.StreamErrors.WithLabelValues("request").Inc()
		closeWith(conn, websocket.CloseUnsupportedData, "invalid request")
		return
	}
	if err := req.Validate(); err != nil {
		s.metrics.StreamErrors.WithLabelValues("request").Inc()
		closeWith(conn, websocket.ClosePolicyViolation, err.Error())
		return
	}
	// Later reads only notice the peer going away
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	s.metrics.Streams.WithLabelValues("ws").Inc()
	s.metrics.ActiveConns.Inc()
	defer s.metrics.ActiveConns.Dec()

	logger := s.logger.With(
		zap.String("transport", "ws"),
		zap.String("doc_id", req.SessionID),
		zap.String("language", req.TargetLanguage))

	if s.upstream != nil {
		body, err := s.upstream.Open(ctx, req)
		if err != nil {
			s.metrics.StreamErrors.WithLabelValues("upstream").Inc()
			logger.Warn("upstream request failed", zap.Error(err))
			closeWith(conn, websocket.CloseInternalServerErr, upstreamMessage(err))
			return
		}
		defer body.Close()

		err = relay(body, func(p []byte) error {
			return conn.WriteMessage(websocket.BinaryMessage, p)
		}, s.metrics)
		s.finish(logger, err)
		if err != nil {
			closeWith(conn, websocket.CloseInternalServerErr, "upstream stream failed")
			return
		}
		closeWith(conn, websocket.CloseNormalClosure, "")
		return
	}

	buf, seg, err := s.prepare(ctx, req)
	if err != nil {
		s.metrics.StreamErrors.WithLabelValues("load").Inc()
		logger.Warn("failed to prepare stream", zap.Error(err))
		closeWith(conn, websocket.CloseInternalServerErr, truncateReason("Backend error: "+err.Error()))
		return
	}
	defer seg.Close()

	err = s.stream(ctx, buf, seg, func(payload []byte) error {
		if uint64(len(payload)) > uint64(s.config.MaxChunkSize) {
			return &frame.ProtocolError{Length: uint64(len(payload)), Max: s.config.MaxChunkSize}
		}
		return conn.WriteMessage(websocket.BinaryMessage, frame.Encode(payload))
	})
	s.finish(logger, err)
	if err == nil {
		closeWith(conn, websocket.CloseNormalClosure, "")
	}
}

// prepare loads the source and builds a segmenter for it
func (s *Server) prepare(ctx context.Context, req transport.Request) (audio.Buffer, *Segmenter, error) {
	if s.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.FetchTimeout)
		defer cancel()
	}

	buf, err := s.loader.Load(ctx, req.SourceURL)
	if err != nil {
		return audio.Buffer{}, nil, err
	}

	seg, err := NewSegmenter(s.config.Codec, s.config.Segment, buf.Format)
	if err != nil {
		return audio.Buffer{}, nil, err
	}
	return buf, seg, nil
}

// stream emits every segment of buf, pacing them when configured
func (s *Server) stream(ctx context.Context, buf audio.Buffer, seg *Segmenter, emit func([]byte) error) error {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for segment, err := range seg.Segments(buf) {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(segment.Data); err != nil {
			return err
		}
		s.metrics.Frames.Inc()
		s.metrics.Bytes.Add(float64(len(segment.Data)))

		if s.config.Pace > 0 {
			wait := time.Duration(float64(segment.Duration) * s.config.Pace)
			if timer == nil {
				timer = time.NewTimer(wait)
			} else {
				timer.Reset(wait)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return nil
}

// proxy forwards req to the upstream and relays its body unchanged
func (s *Server) proxy(w http.ResponseWriter, r *http.Request, req transport.Request, logger *zap.Logger) {
	body, err := s.upstream.Open(r.Context(), req)
	if err != nil {
		s.metrics.StreamErrors.WithLabelValues("upstream").Inc()
		logger.Warn("upstream request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, upstreamMessage(err))
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	err = relay(body, func(p []byte) error {
		if _, err := w.Write(p); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}, s.metrics)
	s.finish(logger, err)
}

// relay copies body to write as it arrives. Frame boundaries are the
// client's business, so fragments pass through untouched.
func relay(body io.Reader, write func([]byte) error, m *metrics.Backend) error {
	chunk := make([]byte, 32<<10)
	for {
		n, err := body.Read(chunk)
		if n > 0 {
			if werr := write(chunk[:n]); werr != nil {
				return werr
			}
			m.Bytes.Add(float64(n))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// finish records how a stream ended
func (s *Server) finish(logger *zap.Logger, err error) {
	switch {
	case err == nil:
		logger.Info("stream complete")
	case errors.Is(err, context.Canceled):
		logger.Info("client went away")
	default:
		s.metrics.StreamErrors.WithLabelValues("send").Inc()
		logger.Warn("stream failed", zap.Error(err))
	}
}

// upstreamMessage renders an upstream failure for the client
func upstreamMessage(err error) string {
	var te *transport.Error
	if errors.As(err, &te) && te.StatusCode != 0 {
		return fmt.Sprintf("Backend error: %d - %s", te.StatusCode, te.Body)
	}
	return "Backend error: " + err.Error()
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Success: false, Error: msg})
}

// maxCloseReason is the control frame payload limit minus the status code
const maxCloseReason = 123

func truncateReason(reason string) string {
	if len(reason) > maxCloseReason {
		return reason[:maxCloseReason]
	}
	return reason
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, truncateReason(reason))
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
