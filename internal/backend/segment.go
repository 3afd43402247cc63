// ABOUTME: Cuts decoded PCM into self-contained encoded segments
// ABOUTME: One segment becomes one frame on the wire
package backend

import (
	"fmt"
	"iter"
	"time"

	"github.com/dubcast/dubcast-go/pkg/audio"
	"github.com/dubcast/dubcast-go/pkg/audio/encode"
	"github.com/dubcast/dubcast-go/pkg/audio/resample"
)

// opusRate is the rate Opus segments are encoded at
const opusRate = 48000

// Segment is one encoded payload and the audio time it covers
type Segment struct {
	Data     []byte
	Duration time.Duration
}

// Segmenter encodes PCM into segments of a fixed duration
type Segmenter struct {
	codec   string
	format  audio.Format
	encoder encode.Encoder

	// frames per segment
	frames int
}

// NewSegmenter prepares a segmenter for audio in src. WAV segments last
// length; Opus segments are 20ms packets at 48kHz regardless of length.
func NewSegmenter(codec string, length time.Duration, src audio.Format) (*Segmenter, error) {
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("invalid source format: %w", err)
	}

	s := &Segmenter{codec: codec}

	switch codec {
	case "wav":
		bitDepth := 16
		if src.BitDepth > 16 {
			bitDepth = 24
		}
		s.format = audio.Format{Codec: "wav", SampleRate: src.SampleRate, Channels: src.Channels, BitDepth: bitDepth}
		s.frames = int(audio.DurationToFrames(length, src.SampleRate))
	case "opus":
		if src.Channels > 2 {
			return nil, fmt.Errorf("opus segments support at most 2 channels, got %d", src.Channels)
		}
		s.format = audio.Format{Codec: "opus", SampleRate: opusRate, Channels: src.Channels, BitDepth: 16}
		s.frames = opusRate / 50
	default:
		return nil, fmt.Errorf("unsupported codec: %s", codec)
	}

	if s.frames <= 0 {
		return nil, fmt.Errorf("segment length %v is too short", length)
	}

	encoder, err := encode.New(s.format)
	if err != nil {
		return nil, err
	}
	s.encoder = encoder
	return s, nil
}

// Format returns the encoded format
func (s *Segmenter) Format() audio.Format {
	return s.format
}

// MediaType returns the Content-Type for a stream of these segments
func (s *Segmenter) MediaType() string {
	if s.codec == "opus" {
		return "audio/opus"
	}
	return "audio/wav"
}

// Segments yields buf as encoded segments in order. It stops at the first
// encode error.
func (s *Segmenter) Segments(buf audio.Buffer) iter.Seq2[Segment, error] {
	samples := buf.Samples
	if buf.Format.SampleRate != s.format.SampleRate {
		samples = resample.Convert(samples, buf.Format.SampleRate, s.format.SampleRate, s.format.Channels)
	}

	step := s.frames * s.format.Channels
	return func(yield func(Segment, error) bool) {
		for off := 0; off < len(samples); off += step {
			end := min(off+step, len(samples))
			chunk := samples[off:end]

			// Opus packets are fixed size; pad the tail with silence
			if s.codec == "opus" && len(chunk) < step {
				padded := make([]int32, step)
				copy(padded, chunk)
				chunk = padded
			}

			data, err := s.encoder.Encode(chunk)
			if err != nil {
				yield(Segment{}, fmt.Errorf("encode segment at %d: %w", off/s.format.Channels, err))
				return
			}

			d := audio.FramesToDuration(int64(len(chunk)/s.format.Channels), s.format.SampleRate)
			if !yield(Segment{Data: data, Duration: d}, nil) {
				return
			}
		}
	}
}

// Close releases the encoder
func (s *Segmenter) Close() error {
	return s.encoder.Close()
}
