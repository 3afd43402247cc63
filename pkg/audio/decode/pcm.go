// ABOUTME: PCM audio decoder
// ABOUTME: Decodes headerless 16-bit and 24-bit PCM segments
package decode

import (
	"errors"
	"fmt"

	"github.com/dubcast/dubcast-go/pkg/audio"
)

// PCMDecoder decodes raw PCM with a fixed, externally agreed format
type PCMDecoder struct {
	format audio.Format
}

// NewPCM creates a new PCM decoder
func NewPCM(format audio.Format) (*PCMDecoder, error) {
	if format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM decoder: %s", format.Codec)
	}
	if format.BitDepth != 16 && format.BitDepth != 24 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24)", format.BitDepth)
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	return &PCMDecoder{format: format}, nil
}

// Decode converts PCM bytes to int32 samples
func (d *PCMDecoder) Decode(data []byte) (audio.Buffer, error) {
	width := d.format.BitDepth / 8
	if len(data)%(width*d.format.Channels) != 0 {
		return audio.Buffer{}, &Error{Codec: "pcm", Err: errors.New("payload is not a whole number of frames")}
	}

	var samples []int32
	if d.format.BitDepth == 24 {
		samples = make([]int32, len(data)/3)
		for i := range samples {
			samples[i] = audio.SampleFrom24Bit([3]byte{data[i*3], data[i*3+1], data[i*3+2]})
		}
	} else {
		samples = interleaved16(data)
	}

	return audio.Buffer{Samples: samples, Format: d.format}, nil
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
