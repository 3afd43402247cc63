// ABOUTME: Test tone generator for the dev backend
// ABOUTME: Synthesises a sine wave as 24-bit interleaved samples
package backend

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dubcast/dubcast-go/pkg/audio"
)

const (
	// DefaultToneFrequency is the A4 note
	DefaultToneFrequency = 440.0
	// DefaultToneDuration is used when a tone source names no length
	DefaultToneDuration = 10 * time.Second

	tonePrefix    = "tone:"
	toneAmplitude = 0.5 // 50% volume
)

// ToneSource generates a sine wave
type ToneSource struct {
	sampleIndex uint64
	frequency   float64
	sampleRate  int
	channels    int
}

// NewToneSource creates a new test tone generator
func NewToneSource(frequency float64, sampleRate, channels int) *ToneSource {
	return &ToneSource{
		frequency:  frequency,
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// Read fills samples with whole interleaved frames and returns the number
// of samples written.
func (s *ToneSource) Read(samples []int32) int {
	frames := len(samples) / s.channels

	for i := 0; i < frames; i++ {
		t := float64(s.sampleIndex+uint64(i)) / float64(s.sampleRate)
		value := int32(math.Sin(2*math.Pi*s.frequency*t) * audio.Max24Bit * toneAmplitude)

		for ch := 0; ch < s.channels; ch++ {
			samples[i*s.channels+ch] = value
		}
	}

	s.sampleIndex += uint64(frames)
	return frames * s.channels
}

// Format returns the PCM layout of generated samples
func (s *ToneSource) Format() audio.Format {
	return audio.Format{Codec: "pcm", SampleRate: s.sampleRate, Channels: s.channels, BitDepth: 24}
}

// Buffer renders d worth of tone
func (s *ToneSource) Buffer(d time.Duration) audio.Buffer {
	samples := make([]int32, audio.DurationToFrames(d, s.sampleRate)*int64(s.channels))
	s.Read(samples)
	return audio.Buffer{Samples: samples, Format: s.Format()}
}

// parseTone reads "tone:<hz>[:<duration>]". Both parts are optional.
func parseTone(src string, sampleRate int) (frequency float64, d time.Duration, err error) {
	frequency, d = DefaultToneFrequency, DefaultToneDuration

	spec := strings.TrimPrefix(src, tonePrefix)
	freqPart, durPart, hasDur := strings.Cut(spec, ":")

	if freqPart != "" {
		frequency, err = strconv.ParseFloat(freqPart, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid tone frequency %q: %w", freqPart, err)
		}
	}
	if frequency <= 0 || frequency >= float64(sampleRate)/2 {
		return 0, 0, fmt.Errorf("tone frequency %v must be between 0 and %d Hz", frequency, sampleRate/2)
	}

	if hasDur {
		d, err = time.ParseDuration(durPart)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid tone duration %q: %w", durPart, err)
		}
		if d <= 0 {
			return 0, 0, fmt.Errorf("tone duration must be positive, got %v", d)
		}
	}

	return frequency, d, nil
}
