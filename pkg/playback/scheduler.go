// ABOUTME: Gapless scheduler over an audio clock
// ABOUTME: Decodes chunks, tracks the playback cursor and the active voices
package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dubcast/dubcast-go/pkg/audio/decode"
	"github.com/dubcast/dubcast-go/pkg/audio/output"
	"github.com/dubcast/dubcast-go/pkg/frame"
	"go.uber.org/zap"
)

// DefaultSafetyMargin is the lead given to a chunk that arrives after the
// cursor has already passed.
const DefaultSafetyMargin = 50 * time.Millisecond

// Config holds scheduler dependencies
type Config struct {
	Clock        output.Clock
	Decoder      decode.Decoder
	SafetyMargin time.Duration
	Logger       *zap.Logger
}

// Stats tracks scheduler metrics
type Stats struct {
	Scheduled    int64
	Skipped      int64 // empty or silent-length chunks
	DecodeErrors int64
	Resyncs      int64
}

// Scheduler places decoded chunks end to end on the clock.
type Scheduler struct {
	clock   output.Clock
	decoder decode.Decoder
	margin  time.Duration
	logger  *zap.Logger

	mu        sync.Mutex
	nextStart time.Duration
	active    map[uint64]output.Voice
	nextID    uint64
	stats     Stats
}

// NewScheduler creates a scheduler with its cursor at the clock's current
// position. Clock and Decoder are required.
func NewScheduler(config Config) *Scheduler {
	if config.SafetyMargin <= 0 {
		config.SafetyMargin = DefaultSafetyMargin
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Scheduler{
		clock:     config.Clock,
		decoder:   config.Decoder,
		margin:    config.SafetyMargin,
		logger:    config.Logger,
		nextStart: config.Clock.Now(),
		active:    make(map[uint64]output.Voice),
	}
}

// Schedule decodes chunk and queues it at the cursor. Decode failures are
// logged and skipped; only cancellation or a clock failure returns an error.
func (s *Scheduler) Schedule(ctx context.Context, chunk frame.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if chunk.Empty() {
		s.count(func(st *Stats) { st.Skipped++ })
		return nil
	}

	buf, err := s.decoder.Decode(chunk.Data)
	if err != nil {
		s.count(func(st *Stats) { st.DecodeErrors++ })
		s.logger.Warn("skipping undecodable chunk",
			zap.Uint64("seq", chunk.Seq),
			zap.Int("bytes", chunk.Len()),
			zap.Error(err))
		return nil
	}

	duration := buf.Duration()
	if duration <= 0 {
		s.count(func(st *Stats) { st.Skipped++ })
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A stop may have landed while decoding.
	if err := ctx.Err(); err != nil {
		return err
	}

	now := s.clock.Now()
	if s.nextStart < now {
		s.stats.Resyncs++
		s.logger.Debug("playback fell behind, resyncing",
			zap.Uint64("seq", chunk.Seq),
			zap.Duration("behind", now-s.nextStart))
		s.nextStart = now + s.margin
	}

	id := s.nextID
	s.nextID++

	voice, err := s.clock.ScheduleStart(buf, s.nextStart, func() { s.ended(id) })
	if err != nil {
		return fmt.Errorf("schedule chunk %d: %w", chunk.Seq, err)
	}
	s.active[id] = voice

	s.logger.Debug("chunk scheduled",
		zap.Uint64("seq", chunk.Seq),
		zap.Duration("start", s.nextStart),
		zap.Duration("duration", duration),
		zap.Stringer("format", buf.Format))

	s.nextStart += duration
	s.stats.Scheduled++
	return nil
}

func (s *Scheduler) ended(id uint64) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

func (s *Scheduler) count(fn func(*Stats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

// StopAll silences every active voice and empties the registry. It returns
// the number of voices stopped.
func (s *Scheduler) StopAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopAllLocked()
}

func (s *Scheduler) stopAllLocked() int {
	n := len(s.active)
	for id, voice := range s.active {
		voice.Stop()
		delete(s.active, id)
	}
	return n
}

// Reset stops all voices and rewinds the cursor so the next chunk starts
// a fresh timeline.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopAllLocked()
	s.nextStart = s.clock.Now()
}

// Active returns the number of voices still pending or sounding
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStart returns where the next chunk will be placed
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// Stats returns scheduler statistics
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Queued returns how much scheduled audio is still ahead of the clock
func (s *Scheduler) Queued() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ahead := s.nextStart - s.clock.Now(); ahead > 0 && len(s.active) > 0 {
		return ahead
	}
	return 0
}
