// ABOUTME: Decoder interface definition
// ABOUTME: Common interface, error type and factory for segment decoders
package decode

import (
	"errors"
	"fmt"

	"github.com/dubcast/dubcast-go/pkg/audio"
)

// ErrUnknownFormat is returned when no decoder recognises a segment.
var ErrUnknownFormat = errors.New("unrecognised audio payload")

// Bounds on what a segment header may declare. Values outside them come
// from corrupt or hostile payloads and are rejected before allocating.
const (
	MinSampleRate = 8000
	MaxSampleRate = 192000

	// MaxSamples caps the interleaved samples one segment decodes to
	// (about three minutes of 96kHz stereo).
	MaxSamples = 1 << 25
)

// checkRate rejects sample rates no real segment uses
func checkRate(rate int) error {
	if rate < MinSampleRate || rate > MaxSampleRate {
		return fmt.Errorf("sample rate %dHz outside %d-%dHz", rate, MinSampleRate, MaxSampleRate)
	}
	return nil
}

// Decoder decodes one independent segment to PCM
type Decoder interface {
	// Decode converts an encoded segment to PCM. data is not retained.
	Decode(data []byte) (audio.Buffer, error)

	// Close releases decoder resources
	Close() error
}

// Error reports a malformed segment.
type Error struct {
	Codec string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Codec, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func decodeErr(codec string, err error) error {
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Codec: codec, Err: err}
}

// New creates a decoder for format.Codec. "auto" sniffs each segment.
func New(format audio.Format) (Decoder, error) {
	switch format.Codec {
	case "auto", "":
		return NewAuto(nil), nil
	case "wav":
		return NewWAV(), nil
	case "mp3":
		return NewMP3(), nil
	case "flac":
		return NewFLAC(), nil
	case "pcm":
		d, err := NewPCM(format)
		if err != nil {
			return nil, err
		}
		return d, nil
	case "opus":
		d, err := NewOpus(format)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported codec: %s", format.Codec)
	}
}

// interleaved16 converts little-endian int16 bytes to 24-bit range samples
func interleaved16(data []byte) []int32 {
	samples := make([]int32, len(data)/2)
	for i := range samples {
		samples[i] = audio.SampleFromInt16(int16(uint16(data[i*2]) | uint16(data[i*2+1])<<8))
	}
	return samples
}
