// ABOUTME: WAV segment encoder
// ABOUTME: Wraps int32 samples in a canonical 44-byte RIFF/WAVE header
package encode

import (
	"encoding/binary"
	"fmt"

	"github.com/dubcast/dubcast-go/pkg/audio"
)

const wavHeaderSize = 44

// WAVEncoder encodes PCM into standalone WAV files
type WAVEncoder struct {
	format audio.Format
}

// NewWAV creates a new WAV encoder
func NewWAV(format audio.Format) (Encoder, error) {
	if format.Codec != "wav" {
		return nil, fmt.Errorf("invalid codec for WAV encoder: %s", format.Codec)
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if format.BitDepth != 16 && format.BitDepth != 24 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24)", format.BitDepth)
	}

	return &WAVEncoder{format: format}, nil
}

// Encode converts int32 samples to a WAV file
func (e *WAVEncoder) Encode(samples []int32) ([]byte, error) {
	if len(samples)%e.format.Channels != 0 {
		return nil, fmt.Errorf("sample count %d is not a multiple of %d channels", len(samples), e.format.Channels)
	}

	bytesPerSample := e.format.BitDepth / 8
	blockAlign := e.format.Channels * bytesPerSample
	dataSize := len(samples) * bytesPerSample

	out := make([]byte, wavHeaderSize, wavHeaderSize+dataSize)
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataSize))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(e.format.Channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(e.format.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(e.format.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], uint16(e.format.BitDepth))
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))

	if e.format.BitDepth == 24 {
		for _, s := range samples {
			b := audio.SampleTo24Bit(s)
			out = append(out, b[0], b[1], b[2])
		}
	} else {
		for _, s := range samples {
			out = binary.LittleEndian.AppendUint16(out, uint16(audio.SampleToInt16(s)))
		}
	}

	return out, nil
}

// Close releases resources
func (e *WAVEncoder) Close() error {
	return nil
}
