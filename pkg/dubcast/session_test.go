// ABOUTME: Tests for the streaming session
// ABOUTME: Drives sessions with in-memory streams and the software mixer
package dubcast

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/dubcast/dubcast-go/pkg/audio"
	"github.com/dubcast/dubcast-go/pkg/audio/encode"
	"github.com/dubcast/dubcast-go/pkg/audio/output"
	"github.com/dubcast/dubcast-go/pkg/frame"
	"github.com/dubcast/dubcast-go/pkg/transport"
	"github.com/google/uuid"
)

type fakeStreamer struct {
	mu   sync.Mutex
	reqs []transport.Request
	open func(req transport.Request) (io.ReadCloser, error)
}

func (f *fakeStreamer) Open(ctx context.Context, req transport.Request) (io.ReadCloser, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	open := f.open
	f.mu.Unlock()
	return open(req)
}

func (f *fakeStreamer) requests() []transport.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.Request(nil), f.reqs...)
}

func segment(t *testing.T, ms int) []byte {
	t.Helper()
	enc, err := encode.NewWAV(audio.Format{Codec: "wav", SampleRate: 8000, Channels: 1, BitDepth: 16})
	if err != nil {
		t.Fatalf("failed to create encoder: %v", err)
	}
	data, err := enc.Encode(make([]int32, 8*ms))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	return data
}

func staticStream(data []byte) func(transport.Request) (io.ReadCloser, error) {
	return func(transport.Request) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}

func newTestSession(streamer transport.Streamer, onStatus func(Status)) (*Session, *output.Mixer) {
	mixer := output.NewMixer(8000, 1, nil)
	return New(Config{Streamer: streamer, Clock: mixer, OnStatus: onStatus}), mixer
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream to finish")
	}
}

func TestSessionPlaysWholeStream(t *testing.T) {
	var mu sync.Mutex
	var states []State
	streamer := &fakeStreamer{open: staticStream(frame.Encode(segment(t, 100), nil, segment(t, 50)))}
	s, _ := newTestSession(streamer, func(st Status) {
		mu.Lock()
		states = append(states, st.State)
		mu.Unlock()
	})

	if err := s.Start("https://cdn.example/talk.wav", "hindi"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitDone(t, s)

	st := s.Status()
	if st.State != StateIdle || st.Err != nil {
		t.Fatalf("expected clean idle, got %s (%v)", st.State, st.Err)
	}
	if st.Language != "hindi" {
		t.Errorf("expected language hindi, got %s", st.Language)
	}
	if st.Stats.Chunks != 3 || st.Stats.Scheduled != 2 || st.Stats.Skipped != 1 {
		t.Errorf("unexpected stats %+v", st.Stats)
	}

	// The mixer is never read, so both voices are still pending.
	if s.Active() != 2 {
		t.Errorf("expected 2 active voices, got %d", s.Active())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(states) != 2 || states[0] != StateLoading || states[1] != StateIdle {
		t.Errorf("expected [loading idle], got %v", states)
	}
}

func TestSessionStopIsSynchronous(t *testing.T) {
	pr, pw := io.Pipe()
	streamer := &fakeStreamer{open: func(transport.Request) (io.ReadCloser, error) { return pr, nil }}
	s, _ := newTestSession(streamer, nil)

	if err := s.Start("https://cdn.example/talk.wav", "english"); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	w := frame.NewWriter(pw)
	if err := w.WriteFrame(segment(t, 200)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	waitFor(t, "first voice", func() bool { return s.Active() == 1 })

	s.Stop()

	if s.Active() != 0 {
		t.Errorf("expected no active voices after stop, got %d", s.Active())
	}
	st := s.Status()
	if st.State != StateIdle || st.Err != nil {
		t.Errorf("expected idle without error, got %s (%v)", st.State, st.Err)
	}

	// Bytes sent after stop have nowhere to go.
	if err := w.WriteFrame(segment(t, 200)); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("expected closed pipe, got %v", err)
	}
	if s.Status().Stats.Scheduled != 1 {
		t.Errorf("expected 1 scheduled chunk, got %d", s.Status().Stats.Scheduled)
	}
}

func TestSessionSwitchLanguage(t *testing.T) {
	writers := make(chan *io.PipeWriter, 2)
	streamer := &fakeStreamer{open: func(transport.Request) (io.ReadCloser, error) {
		pr, pw := io.Pipe()
		writers <- pw
		return pr, nil
	}}
	s, _ := newTestSession(streamer, nil)

	s.Start("https://cdn.example/talk.wav", "english")
	first := <-writers
	frame.NewWriter(first).WriteFrame(segment(t, 200))
	waitFor(t, "first voice", func() bool { return s.Active() == 1 })

	if err := s.Start("https://cdn.example/talk.wav", "hinglish"); err != nil {
		t.Fatalf("switch failed: %v", err)
	}
	<-writers

	reqs := streamer.requests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	if reqs[1].TargetLanguage != "hinglish" {
		t.Errorf("expected hinglish, got %s", reqs[1].TargetLanguage)
	}
	if reqs[0].SessionID == reqs[1].SessionID {
		t.Error("expected a fresh session id per start")
	}
	if s.Active() != 0 {
		t.Errorf("expected old voices stopped, got %d", s.Active())
	}
	if _, err := first.Write([]byte{0}); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("expected old stream closed, got %v", err)
	}
	if s.Status().Language != "hinglish" {
		t.Errorf("expected status language hinglish, got %s", s.Status().Language)
	}

	s.Stop()
}

func TestSessionTransportError(t *testing.T) {
	refused := &transport.Error{Op: "request", StatusCode: 502, Body: "Failed to process audio"}
	streamer := &fakeStreamer{open: func(transport.Request) (io.ReadCloser, error) { return nil, refused }}
	s, _ := newTestSession(streamer, nil)

	s.Start("https://cdn.example/talk.wav", "hindi")
	waitDone(t, s)

	st := s.Status()
	if st.State != StateError {
		t.Fatalf("expected error state, got %s", st.State)
	}
	var te *transport.Error
	if !errors.As(st.Err, &te) || te.StatusCode != 502 {
		t.Errorf("expected transport error, got %v", st.Err)
	}

	// Stop clears the error.
	s.Stop()
	if s.Status().Err != nil {
		t.Errorf("expected error cleared, got %v", s.Status().Err)
	}
}

func TestSessionProtocolErrorStopsVoices(t *testing.T) {
	data := frame.Encode(segment(t, 100))
	data = append(data, 0x7F, 0xFF, 0xFF, 0xFF)
	streamer := &fakeStreamer{open: staticStream(data)}
	s, _ := newTestSession(streamer, nil)

	s.Start("https://cdn.example/talk.wav", "hindi")
	waitDone(t, s)

	st := s.Status()
	var pe *frame.ProtocolError
	if !errors.As(st.Err, &pe) {
		t.Fatalf("expected protocol error, got %v", st.Err)
	}
	if st.State != StateError {
		t.Errorf("expected error state, got %s", st.State)
	}
	if s.Active() != 0 {
		t.Errorf("expected voices stopped, got %d", s.Active())
	}
}

func TestSessionTruncatedStream(t *testing.T) {
	data := frame.Encode(segment(t, 100), segment(t, 100))
	data = data[:len(data)-10]
	streamer := &fakeStreamer{open: staticStream(data)}
	s, _ := newTestSession(streamer, nil)

	s.Start("https://cdn.example/talk.wav", "hindi")
	waitDone(t, s)

	st := s.Status()
	if st.State != StateIdle || st.Err != nil {
		t.Fatalf("expected clean idle, got %s (%v)", st.State, st.Err)
	}
	if st.Stats.Chunks != 1 {
		t.Errorf("expected 1 chunk, got %d", st.Stats.Chunks)
	}
	if st.Stats.Truncated == 0 {
		t.Error("expected truncated bytes to be reported")
	}
}

func TestSessionMalformedChunkIsSkipped(t *testing.T) {
	streamer := &fakeStreamer{open: staticStream(frame.Encode(segment(t, 100), []byte("not audio"), segment(t, 100)))}
	s, _ := newTestSession(streamer, nil)

	s.Start("https://cdn.example/talk.wav", "hindi")
	waitDone(t, s)

	st := s.Status()
	if st.State != StateIdle {
		t.Fatalf("expected idle, got %s (%v)", st.State, st.Err)
	}
	if st.Stats.DecodeErrors != 1 || st.Stats.Scheduled != 2 {
		t.Errorf("unexpected stats %+v", st.Stats)
	}
}

func TestSessionIDs(t *testing.T) {
	streamer := &fakeStreamer{open: staticStream(nil)}

	s, _ := newTestSession(streamer, nil)
	s.Start("https://cdn.example/a.wav", "hindi")
	waitDone(t, s)
	if _, err := uuid.Parse(streamer.requests()[0].SessionID); err != nil {
		t.Errorf("expected generated uuid, got %q", streamer.requests()[0].SessionID)
	}

	fixed := New(Config{Streamer: streamer, Clock: output.NewMixer(8000, 1, nil), DocumentID: "doc-42"})
	fixed.Start("https://cdn.example/a.wav", "hindi")
	waitDone(t, fixed)
	if got := streamer.requests()[1].SessionID; got != "doc-42" {
		t.Errorf("expected doc-42, got %q", got)
	}
}

func TestSessionStartValidation(t *testing.T) {
	s, _ := newTestSession(&fakeStreamer{open: staticStream(nil)}, nil)

	if err := s.Start("", "hindi"); err == nil {
		t.Error("expected error for empty source")
	}
	if err := s.Start("https://cdn.example/a.wav", ""); err == nil {
		t.Error("expected error for empty language")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := s.Start("https://cdn.example/a.wav", "hindi"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestSessionStopWhenIdle(t *testing.T) {
	s, _ := newTestSession(&fakeStreamer{open: staticStream(nil)}, nil)
	s.Stop()
	s.Stop()

	select {
	case <-s.Done():
	default:
		t.Error("expected Done to be closed with no stream")
	}
}
