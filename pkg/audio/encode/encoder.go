// ABOUTME: Encoder interface definition
// ABOUTME: Common interface and factory for segment encoders
package encode

import (
	"fmt"

	"github.com/dubcast/dubcast-go/pkg/audio"
)

// Encoder encodes PCM int32 samples into one segment
type Encoder interface {
	// Encode converts PCM samples to a self-contained segment
	Encode(samples []int32) ([]byte, error)

	// Close releases encoder resources
	Close() error
}

// New creates an encoder for format.Codec
func New(format audio.Format) (Encoder, error) {
	switch format.Codec {
	case "wav":
		return NewWAV(format)
	case "opus":
		return NewOpus(format)
	default:
		return nil, fmt.Errorf("unsupported codec: %s", format.Codec)
	}
}
