// ABOUTME: Streaming session with synchronous stop and language switch
// ABOUTME: Runs transport, demultiplexer and scheduler on one goroutine
package dubcast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dubcast/dubcast-go/pkg/audio/decode"
	"github.com/dubcast/dubcast-go/pkg/audio/output"
	"github.com/dubcast/dubcast-go/pkg/frame"
	"github.com/dubcast/dubcast-go/pkg/playback"
	"github.com/dubcast/dubcast-go/pkg/transport"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrCancelled reports a stream that was stopped on purpose.
var ErrCancelled = errors.New("dubcast: session cancelled")

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("dubcast: session closed")

// State is the coarse session state shown to users
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateError   State = "error"
)

// Config holds session configuration
type Config struct {
	// Streamer opens the framed byte stream
	Streamer transport.Streamer

	// Clock is the audio timeline voices are scheduled on
	Clock output.Clock

	// Decoder decodes each chunk (default: sniffing decoder)
	Decoder decode.Decoder

	// SafetyMargin is the lead used after the scheduler falls behind
	SafetyMargin time.Duration

	// MaxChunkSize bounds one frame payload (default 16 MiB)
	MaxChunkSize uint32

	// DocumentID is sent with every request. Empty generates one per start.
	DocumentID string

	Logger *zap.Logger

	// OnStatus is called on every state transition, from the session
	// goroutine or from the caller of Start and Stop. It must not call
	// Start or Stop.
	OnStatus func(Status)
}

// Stats counts what one stream delivered
type Stats struct {
	Chunks       int64
	Bytes        int64
	Scheduled    int64
	Skipped      int64
	DecodeErrors int64
	Resyncs      int64
	Truncated    int64 // leftover bytes of an incomplete final frame
}

// Status is a snapshot of the session
type Status struct {
	State     State
	Language  string
	SessionID string
	Err       error
	Stats     Stats
}

// Session plays one stream at a time
type Session struct {
	config Config
	logger *zap.Logger

	// ctl serialises Start, Stop and Close
	ctl sync.Mutex

	mu     sync.Mutex
	status Status
	run    *run
	last   *run
	closed bool
}

// run is the state of one stream from Start to teardown
type run struct {
	req       transport.Request
	cancel    context.CancelCauseFunc
	done      chan struct{}
	scheduler *playback.Scheduler

	mu         sync.Mutex
	body       io.Closer
	bodyClosed bool

	chunks    atomic.Int64
	bytes     atomic.Int64
	truncated atomic.Int64
}

// New creates an idle session
func New(config Config) *Session {
	if config.Decoder == nil {
		config.Decoder = decode.NewAuto(nil)
	}
	if config.MaxChunkSize == 0 {
		config.MaxChunkSize = frame.DefaultMaxChunkSize
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Session{
		config: config,
		logger: config.Logger,
		status: Status{State: StateIdle},
	}
}

// Start stops any current stream and begins streaming sourceURL translated
// to language. It returns once the new stream's goroutine is running.
func (s *Session) Start(sourceURL, language string) error {
	sessionID := s.config.DocumentID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	req := transport.Request{
		SourceURL:      sourceURL,
		TargetLanguage: language,
		SessionID:      sessionID,
	}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	s.stopLocked()

	ctx, cancel := context.WithCancelCause(context.Background())
	r := &run{
		req:    req,
		cancel: cancel,
		done:   make(chan struct{}),
		scheduler: playback.NewScheduler(playback.Config{
			Clock:        s.config.Clock,
			Decoder:      s.config.Decoder,
			SafetyMargin: s.config.SafetyMargin,
			Logger:       s.logger.With(zap.String("session_id", sessionID)),
		}),
	}

	s.mu.Lock()
	s.run = r
	s.last = r
	s.mu.Unlock()

	s.logger.Info("starting stream",
		zap.String("session_id", sessionID),
		zap.String("language", language))
	s.setStatus(r, Status{State: StateLoading})

	go s.execute(ctx, r)
	return nil
}

// Stop aborts the stream, silences every voice and rewinds the playback
// cursor. All of it has happened when Stop returns.
func (s *Session) Stop() {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.stopLocked()
}

func (s *Session) stopLocked() {
	s.mu.Lock()
	r := s.run
	s.run = nil
	s.mu.Unlock()

	if r == nil {
		return
	}

	r.cancel(ErrCancelled)
	r.closeBody()
	<-r.done

	stopped := r.scheduler.StopAll()
	r.scheduler.Reset()

	s.logger.Info("stream stopped",
		zap.String("session_id", r.req.SessionID),
		zap.Int("voices_stopped", stopped))

	s.mu.Lock()
	s.status = Status{State: StateIdle, Language: r.req.TargetLanguage, SessionID: r.req.SessionID}
	st := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(st)
}

// Close stops the session for good and releases the decoder
func (s *Session) Close() error {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.stopLocked()

	s.mu.Lock()
	wasClosed := s.closed
	s.closed = true
	s.mu.Unlock()

	if wasClosed {
		return nil
	}
	return s.config.Decoder.Close()
}

// Status returns the current state with live counters
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Done is closed when the current stream's goroutine exits. With no stream
// it is already closed.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.run.done
}

// Active returns how many voices are still pending or sounding. Voices keep
// playing after a stream ends cleanly.
func (s *Session) Active() int {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last == nil {
		return 0
	}
	return last.scheduler.Active()
}

// Queued returns how much scheduled audio remains ahead of the clock
func (s *Session) Queued() time.Duration {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last == nil {
		return 0
	}
	return last.scheduler.Queued()
}

func (s *Session) execute(ctx context.Context, r *run) {
	defer close(r.done)

	err := s.stream(ctx, r)
	if cause := context.Cause(ctx); cause != nil {
		// Stop owns the teardown and the final status.
		s.logger.Debug("stream goroutine exiting",
			zap.String("session_id", r.req.SessionID),
			zap.NamedError("cause", cause))
		return
	}

	if err != nil {
		stopped := r.scheduler.StopAll()
		s.logger.Error("stream failed",
			zap.String("session_id", r.req.SessionID),
			zap.Int("voices_stopped", stopped),
			zap.Error(err))
		s.setStatus(r, Status{State: StateError, Err: err})
		return
	}

	s.logger.Info("stream finished",
		zap.String("session_id", r.req.SessionID),
		zap.Int64("chunks", r.chunks.Load()),
		zap.Int64("bytes", r.bytes.Load()))
	s.setStatus(r, Status{State: StateIdle})
}

func (s *Session) stream(ctx context.Context, r *run) error {
	body, err := s.config.Streamer.Open(ctx, r.req)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	if !r.setBody(body) {
		body.Close()
		return ErrCancelled
	}
	defer r.closeBody()

	demux := frame.NewDemuxer(body, frame.WithMaxChunkSize(s.config.MaxChunkSize))
	for {
		chunk, err := demux.Next()
		if errors.Is(err, io.EOF) {
			if n := demux.Truncated(); n > 0 {
				r.truncated.Store(int64(n))
				s.logger.Warn("stream ended inside a frame",
					zap.String("session_id", r.req.SessionID),
					zap.Int("leftover_bytes", n))
			}
			return nil
		}
		if err != nil {
			return err
		}

		r.chunks.Add(1)
		r.bytes.Add(int64(chunk.Len()))

		if err := r.scheduler.Schedule(ctx, chunk); err != nil {
			return err
		}
	}
}

// setStatus applies st if r is still the current run
func (s *Session) setStatus(r *run, st Status) {
	s.mu.Lock()
	if s.run != r {
		s.mu.Unlock()
		return
	}
	st.Language = r.req.TargetLanguage
	st.SessionID = r.req.SessionID
	s.status = st
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

func (s *Session) snapshotLocked() Status {
	st := s.status
	if r := s.last; r != nil {
		sched := r.scheduler.Stats()
		st.Stats = Stats{
			Chunks:       r.chunks.Load(),
			Bytes:        r.bytes.Load(),
			Scheduled:    sched.Scheduled,
			Skipped:      sched.Skipped,
			DecodeErrors: sched.DecodeErrors,
			Resyncs:      sched.Resyncs,
			Truncated:    r.truncated.Load(),
		}
	}
	return st
}

func (s *Session) notify(st Status) {
	if s.config.OnStatus != nil {
		s.config.OnStatus(st)
	}
}

// setBody records the open stream unless the run is already torn down
func (r *run) setBody(body io.Closer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bodyClosed {
		return false
	}
	r.body = body
	return true
}

// closeBody closes the stream once; later calls are no-ops
func (r *run) closeBody() {
	r.mu.Lock()
	body := r.body
	r.body = nil
	r.bodyClosed = true
	r.mu.Unlock()

	if body != nil {
		body.Close()
	}
}
