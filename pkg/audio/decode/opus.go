// ABOUTME: Opus packet decoder
// ABOUTME: Decodes one Opus packet per segment to int32 samples
package decode

import (
	"fmt"

	"github.com/dubcast/dubcast-go/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// maxOpusFrame is 120ms at 48kHz, the longest packet Opus allows
const maxOpusFrame = 5760

// OpusDecoder decodes Opus packets. Packets carry no container, so the
// format must be known up front; decoder state spans packets.
type OpusDecoder struct {
	decoder *opus.Decoder
	format  audio.Format
}

// NewOpus creates a new Opus decoder
func NewOpus(format audio.Format) (*OpusDecoder, error) {
	if format.Codec != "opus" {
		return nil, fmt.Errorf("invalid codec for Opus decoder: %s", format.Codec)
	}

	dec, err := opus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	return &OpusDecoder{
		decoder: dec,
		format:  format,
	}, nil
}

// Decode converts an Opus packet to int32 samples
func (d *OpusDecoder) Decode(data []byte) (audio.Buffer, error) {
	pcm16 := make([]int16, maxOpusFrame*d.format.Channels)

	n, err := d.decoder.Decode(data, pcm16)
	if err != nil {
		return audio.Buffer{}, &Error{Codec: "opus", Err: fmt.Errorf("opus decode failed: %w", err)}
	}

	actual := n * d.format.Channels
	pcm32 := make([]int32, actual)
	for i := 0; i < actual; i++ {
		pcm32[i] = audio.SampleFromInt16(pcm16[i])
	}

	format := d.format
	format.BitDepth = 16
	return audio.Buffer{Samples: pcm32, Format: format}, nil
}

// Close releases decoder resources
func (d *OpusDecoder) Close() error {
	return nil
}
