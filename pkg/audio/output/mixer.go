// ABOUTME: Software mixer that doubles as the audio clock
// ABOUTME: Renders scheduled voices into 16-bit little-endian PCM
package output

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/dubcast/dubcast-go/pkg/audio"
	"github.com/dubcast/dubcast-go/pkg/audio/resample"
	"go.uber.org/zap"
)

// Mixer sums voices onto a frame-indexed timeline. Read advances the clock.
type Mixer struct {
	mu       sync.Mutex
	rate     int
	channels int
	position int64 // frames rendered so far
	voices   []*mixVoice
	mix      []int64
	volume   int
	muted    bool
	logger   *zap.Logger
}

type mixVoice struct {
	mixer   *Mixer
	start   int64
	samples []int32 // device layout
	onEnded func()
	done    bool
}

// NewMixer creates a mixer producing interleaved PCM at the given layout
func NewMixer(sampleRate, channels int, logger *zap.Logger) *Mixer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mixer{
		rate:     sampleRate,
		channels: channels,
		volume:   100,
		logger:   logger,
	}
}

// Format returns the device layout the mixer renders.
func (m *Mixer) Format() audio.Format {
	return audio.Format{Codec: "pcm", SampleRate: m.rate, Channels: m.channels, BitDepth: 16}
}

// Now returns the position of the next frame to be rendered
func (m *Mixer) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return audio.FramesToDuration(m.position, m.rate)
}

// maxVoice bounds the device-time length of one voice
const maxVoice = 10 * time.Minute

// ScheduleStart places buf on the timeline at position at. The voice spans
// the device frames from at to at+buf.Duration(), so buffers placed end to
// end tile the timeline whatever their own sample rate.
func (m *Mixer) ScheduleStart(buf audio.Buffer, at time.Duration, onEnded func()) (Voice, error) {
	if err := buf.Format.Validate(); err != nil {
		return nil, fmt.Errorf("schedule voice: %w", err)
	}
	if at < 0 {
		at = 0
	}

	d := buf.Duration()
	if d > maxVoice {
		return nil, fmt.Errorf("schedule voice: %v of audio exceeds %v", d, maxVoice)
	}
	start := audio.DurationToFrames(at, m.rate)
	frames := int(audio.DurationToFrames(at+d, m.rate) - start)

	samples := remapChannels(buf.Samples, buf.Format.Channels, m.channels)
	if buf.Format.SampleRate != m.rate {
		samples = resample.Convert(samples, buf.Format.SampleRate, m.rate, m.channels)
	}
	samples = fitFrames(samples, frames, m.channels)

	v := &mixVoice{
		mixer:   m,
		start:   start,
		samples: samples,
		onEnded: onEnded,
	}

	m.mu.Lock()
	if v.start < m.position {
		m.logger.Debug("voice scheduled in the past",
			zap.Duration("at", at),
			zap.Duration("now", audio.FramesToDuration(m.position, m.rate)))
		v.start = m.position
	}
	m.voices = append(m.voices, v)
	m.mu.Unlock()

	return v, nil
}

// Stop removes the voice from the mix
func (v *mixVoice) Stop() {
	m := v.mixer
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.done {
		return
	}
	v.done = true
	for i, other := range m.voices {
		if other == v {
			m.voices = append(m.voices[:i], m.voices[i+1:]...)
			break
		}
	}
}

// Voices returns the number of voices waiting or sounding
func (m *Mixer) Voices() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// SetVolume sets the volume (0-100)
func (m *Mixer) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	m.mu.Lock()
	m.volume = volume
	m.mu.Unlock()
}

// SetMuted sets mute state
func (m *Mixer) SetMuted(muted bool) {
	m.mu.Lock()
	m.muted = muted
	m.mu.Unlock()
}

// Read renders whole frames into p as signed 16-bit little-endian samples
// and advances the clock by the frames rendered.
func (m *Mixer) Read(p []byte) (int, error) {
	frameBytes := 2 * m.channels
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}

	ended := m.render(p[:frames*frameBytes], frames)
	for _, fn := range ended {
		fn()
	}
	return frames * frameBytes, nil
}

// render fills dst and returns the end callbacks of voices that finished.
// Callbacks run after the lock is released.
func (m *Mixer) render(dst []byte, frames int) []func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := frames * m.channels
	if cap(m.mix) < n {
		m.mix = make([]int64, n)
	}
	mix := m.mix[:n]
	for i := range mix {
		mix[i] = 0
	}

	windowStart := m.position
	windowEnd := windowStart + int64(frames)

	var ended []func()
	kept := m.voices[:0]
	for _, v := range m.voices {
		voiceFrames := int64(len(v.samples) / m.channels)
		voiceEnd := v.start + voiceFrames

		from := max(v.start, windowStart)
		to := min(voiceEnd, windowEnd)
		for f := from; f < to; f++ {
			src := v.samples[(f-v.start)*int64(m.channels):]
			dstOff := (f - windowStart) * int64(m.channels)
			for ch := 0; ch < m.channels; ch++ {
				mix[dstOff+int64(ch)] += int64(src[ch])
			}
		}

		if voiceEnd <= windowEnd {
			v.done = true
			if v.onEnded != nil {
				ended = append(ended, v.onEnded)
			}
			continue
		}
		kept = append(kept, v)
	}
	for i := len(kept); i < len(m.voices); i++ {
		m.voices[i] = nil
	}
	m.voices = kept
	m.position = windowEnd

	gain := 0.0
	if !m.muted {
		gain = float64(m.volume) / 100.0
	}
	for i, s := range mix {
		v := audio.Clamp24(int64(float64(s) * gain))
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(audio.SampleToInt16(v)))
	}

	return ended
}

// fitFrames trims or pads samples to exactly frames frames. Padding
// repeats the last frame.
func fitFrames(samples []int32, frames, channels int) []int32 {
	want := frames * channels
	switch {
	case len(samples) == want:
		return samples
	case len(samples) > want:
		return samples[:want]
	}

	out := make([]int32, want)
	n := copy(out, samples)
	if n >= channels {
		last := samples[n-channels : n]
		for i := n; i < want; i += channels {
			copy(out[i:i+channels], last)
		}
	}
	return out
}

// remapChannels converts interleaved samples between channel counts.
// Downmixing to mono averages; other mappings repeat source channels.
func remapChannels(samples []int32, from, to int) []int32 {
	if from == to {
		return samples
	}

	frames := len(samples) / from
	out := make([]int32, frames*to)
	for f := 0; f < frames; f++ {
		src := samples[f*from : f*from+from]
		if to == 1 {
			var sum int64
			for _, s := range src {
				sum += int64(s)
			}
			out[f] = int32(sum / int64(from))
			continue
		}
		for ch := 0; ch < to; ch++ {
			out[f*to+ch] = src[ch%from]
		}
	}
	return out
}
