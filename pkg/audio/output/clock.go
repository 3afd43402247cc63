// ABOUTME: Audio clock interface definition
// ABOUTME: Timeline and voice handles shared by the mixer and the scheduler
package output

import (
	"time"

	"github.com/dubcast/dubcast-go/pkg/audio"
)

// Clock is a monotonic audio timeline that can start buffers at precise
// positions on it.
type Clock interface {
	// Now returns the current playback position
	Now() time.Duration

	// ScheduleStart queues buf to begin at position at. A position already
	// in the past starts as soon as possible. onEnded, when non-nil, runs
	// once after the buffer plays out; it does not run for stopped voices.
	ScheduleStart(buf audio.Buffer, at time.Duration, onEnded func()) (Voice, error)
}

// Voice is one scheduled playback of one buffer
type Voice interface {
	// Stop silences the voice. Stopping twice is a no-op.
	Stop()
}
