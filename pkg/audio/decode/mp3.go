// ABOUTME: MP3 segment decoder
// ABOUTME: Decodes a complete MP3 blob to int32 samples with go-mp3
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/dubcast/dubcast-go/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

// MP3Decoder decodes MP3 segments. go-mp3 always produces 16-bit stereo.
type MP3Decoder struct {
	// MaxSamples caps the decoded size; zero means the package MaxSamples.
	MaxSamples int
}

// NewMP3 creates a new MP3 decoder
func NewMP3() *MP3Decoder {
	return &MP3Decoder{}
}

// Decode converts MP3 bytes to int32 samples
func (d *MP3Decoder) Decode(data []byte) (audio.Buffer, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return audio.Buffer{}, &Error{Codec: "mp3", Err: fmt.Errorf("failed to create mp3 decoder: %w", err)}
	}

	if err := checkRate(dec.SampleRate()); err != nil {
		return audio.Buffer{}, &Error{Codec: "mp3", Err: err}
	}

	limit := d.MaxSamples
	if limit <= 0 {
		limit = MaxSamples
	}

	pcm, err := io.ReadAll(io.LimitReader(dec, 2*int64(limit)+1))
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return audio.Buffer{}, &Error{Codec: "mp3", Err: fmt.Errorf("mp3 decode error: %w", err)}
	}
	if len(pcm) > 2*limit {
		return audio.Buffer{}, &Error{Codec: "mp3", Err: fmt.Errorf("segment decodes to more than %d samples", limit)}
	}
	// Drop any trailing partial frame from a short final read.
	pcm = pcm[:len(pcm)-len(pcm)%4]
	if len(pcm) == 0 {
		return audio.Buffer{}, &Error{Codec: "mp3", Err: errors.New("no audio frames")}
	}

	return audio.Buffer{
		Samples: interleaved16(pcm),
		Format: audio.Format{
			Codec:      "mp3",
			SampleRate: dec.SampleRate(),
			Channels:   2,
			BitDepth:   16,
		},
	}, nil
}

// Close releases decoder resources
func (d *MP3Decoder) Close() error {
	return nil
}
