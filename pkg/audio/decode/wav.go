// ABOUTME: WAV segment decoder
// ABOUTME: Walks RIFF chunks and decodes integer or float PCM payloads
package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/dubcast/dubcast-go/pkg/audio"
)

const (
	wavFormatPCM        = 0x0001
	wavFormatFloat      = 0x0003
	wavFormatExtensible = 0xFFFE
)

// WAVDecoder decodes RIFF/WAVE segments
type WAVDecoder struct{}

// NewWAV creates a new WAV decoder
func NewWAV() *WAVDecoder {
	return &WAVDecoder{}
}

type wavFormat struct {
	tag           uint16
	channels      int
	sampleRate    int
	blockAlign    int
	bitsPerSample int
}

// Decode converts a WAV file to int32 samples
func (d *WAVDecoder) Decode(data []byte) (audio.Buffer, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return audio.Buffer{}, &Error{Codec: "wav", Err: errors.New("missing RIFF/WAVE header")}
	}

	var (
		fmtChunk *wavFormat
		payload  []byte
		found    bool
	)

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := data[pos+8:]
		// Streaming writers may leave the size unset; take what arrived.
		if size < 0 || size > len(body) {
			size = len(body)
		}
		body = body[:size]

		switch id {
		case "fmt ":
			f, err := parseWAVFormat(body)
			if err != nil {
				return audio.Buffer{}, &Error{Codec: "wav", Err: err}
			}
			fmtChunk = f
		case "data":
			payload = body
			found = true
		}
		if found && fmtChunk != nil {
			break
		}

		pos += 8 + size + size%2
	}

	if fmtChunk == nil {
		return audio.Buffer{}, &Error{Codec: "wav", Err: errors.New("missing fmt chunk")}
	}
	if !found {
		return audio.Buffer{}, &Error{Codec: "wav", Err: errors.New("missing data chunk")}
	}

	samples, err := fmtChunk.decode(payload)
	if err != nil {
		return audio.Buffer{}, &Error{Codec: "wav", Err: err}
	}

	return audio.Buffer{
		Samples: samples,
		Format: audio.Format{
			Codec:      "wav",
			SampleRate: fmtChunk.sampleRate,
			Channels:   fmtChunk.channels,
			BitDepth:   fmtChunk.bitsPerSample,
		},
	}, nil
}

// Close releases resources
func (d *WAVDecoder) Close() error {
	return nil
}

func parseWAVFormat(b []byte) (*wavFormat, error) {
	if len(b) < 16 {
		return nil, fmt.Errorf("fmt chunk too short: %d bytes", len(b))
	}

	f := &wavFormat{
		tag:           binary.LittleEndian.Uint16(b[0:2]),
		channels:      int(binary.LittleEndian.Uint16(b[2:4])),
		sampleRate:    int(binary.LittleEndian.Uint32(b[4:8])),
		blockAlign:    int(binary.LittleEndian.Uint16(b[12:14])),
		bitsPerSample: int(binary.LittleEndian.Uint16(b[14:16])),
	}

	if f.tag == wavFormatExtensible {
		if len(b) < 26 {
			return nil, errors.New("extensible fmt chunk too short")
		}
		// First two bytes of the sub-format GUID carry the real tag.
		f.tag = binary.LittleEndian.Uint16(b[24:26])
	}

	if f.channels <= 0 {
		return nil, fmt.Errorf("invalid layout: %d channels", f.channels)
	}
	if err := checkRate(f.sampleRate); err != nil {
		return nil, err
	}

	switch {
	case f.tag == wavFormatPCM && (f.bitsPerSample == 8 || f.bitsPerSample == 16 || f.bitsPerSample == 24 || f.bitsPerSample == 32):
	case f.tag == wavFormatFloat && f.bitsPerSample == 32:
	default:
		return nil, fmt.Errorf("unsupported encoding: tag=0x%04x bits=%d", f.tag, f.bitsPerSample)
	}

	if want := f.channels * f.bitsPerSample / 8; f.blockAlign != want {
		f.blockAlign = want
	}

	return f, nil
}

func (f *wavFormat) decode(payload []byte) ([]int32, error) {
	frames := len(payload) / f.blockAlign
	width := f.bitsPerSample / 8
	samples := make([]int32, frames*f.channels)

	for i := range samples {
		b := payload[i*width : (i+1)*width]
		switch {
		case f.tag == wavFormatFloat:
			v := math.Float32frombits(binary.LittleEndian.Uint32(b))
			samples[i] = audio.Clamp24(int64(float64(v) * audio.Max24Bit))
		case width == 1:
			samples[i] = (int32(b[0]) - 128) << 16
		case width == 2:
			samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(b)))
		case width == 3:
			samples[i] = audio.SampleFrom24Bit([3]byte{b[0], b[1], b[2]})
		case width == 4:
			samples[i] = int32(binary.LittleEndian.Uint32(b)) >> 8
		default:
			return nil, fmt.Errorf("unsupported sample width %d", width)
		}
	}

	return samples, nil
}
