// ABOUTME: Tests for WAV decoder
// ABOUTME: Round-trips encoder output and exercises malformed containers
package decode

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/dubcast/dubcast-go/pkg/audio"
	"github.com/dubcast/dubcast-go/pkg/audio/encode"
)

func encodeWAV(t *testing.T, format audio.Format, samples []int32) []byte {
	t.Helper()
	enc, err := encode.NewWAV(format)
	if err != nil {
		t.Fatalf("failed to create encoder: %v", err)
	}
	data, err := enc.Encode(samples)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	return data
}

func TestWAVRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		bitDepth int
	}{
		{"16-bit", 16},
		{"24-bit", 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			format := audio.Format{Codec: "wav", SampleRate: 24000, Channels: 2, BitDepth: tt.bitDepth}
			samples := make([]int32, 2*2400)
			for i := range samples {
				samples[i] = int32((i%200)-100) << 8
			}

			buf, err := NewWAV().Decode(encodeWAV(t, format, samples))
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}

			if buf.Format.SampleRate != 24000 || buf.Format.Channels != 2 || buf.Format.BitDepth != tt.bitDepth {
				t.Errorf("unexpected format %s", buf.Format)
			}
			if buf.Duration() != 100*time.Millisecond {
				t.Errorf("expected 100ms, got %v", buf.Duration())
			}
			for i := range samples {
				if buf.Samples[i] != samples[i] {
					t.Fatalf("sample %d: expected %d, got %d", i, samples[i], buf.Samples[i])
				}
			}
		})
	}
}

// buildWAV assembles a RIFF file from raw chunks
func buildWAV(chunks ...[]byte) []byte {
	out := []byte("RIFF\x00\x00\x00\x00WAVE")
	for _, c := range chunks {
		out = append(out, c...)
	}
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)-8))
	return out
}

func chunk(id string, body []byte) []byte {
	out := make([]byte, 8, 8+len(body)+1)
	copy(out, id)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(body)))
	out = append(out, body...)
	if len(body)%2 == 1 {
		out = append(out, 0)
	}
	return out
}

func fmtBody(tag uint16, channels, rate, bits int) []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint16(b[0:2], tag)
	binary.LittleEndian.PutUint16(b[2:4], uint16(channels))
	binary.LittleEndian.PutUint32(b[4:8], uint32(rate))
	binary.LittleEndian.PutUint32(b[8:12], uint32(rate*channels*bits/8))
	binary.LittleEndian.PutUint16(b[12:14], uint16(channels*bits/8))
	binary.LittleEndian.PutUint16(b[14:16], uint16(bits))
	return b
}

func TestWAVSkipsUnknownOddChunks(t *testing.T) {
	data := buildWAV(
		chunk("LIST", []byte{1, 2, 3}),
		chunk("fmt ", fmtBody(wavFormatPCM, 1, 8000, 8)),
		chunk("data", []byte{128, 255, 0}),
	)

	buf, err := NewWAV().Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	expected := []int32{0, 127 << 16, -128 << 16}
	if len(buf.Samples) != len(expected) {
		t.Fatalf("expected %d samples, got %d", len(expected), len(buf.Samples))
	}
	for i := range expected {
		if buf.Samples[i] != expected[i] {
			t.Errorf("sample %d: expected %d, got %d", i, expected[i], buf.Samples[i])
		}
	}
}

func TestWAVFloat(t *testing.T) {
	body := make([]byte, 8)
	binary.LittleEndian.PutUint32(body[0:4], math.Float32bits(1.0))
	binary.LittleEndian.PutUint32(body[4:8], math.Float32bits(-2.0))

	data := buildWAV(chunk("fmt ", fmtBody(wavFormatFloat, 1, 48000, 32)), chunk("data", body))

	buf, err := NewWAV().Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if buf.Samples[0] != audio.Max24Bit {
		t.Errorf("expected %d, got %d", audio.Max24Bit, buf.Samples[0])
	}
	if buf.Samples[1] != audio.Min24Bit {
		t.Errorf("expected clamped %d, got %d", audio.Min24Bit, buf.Samples[1])
	}
}

func TestWAVTruncatedDataChunk(t *testing.T) {
	data := buildWAV(chunk("fmt ", fmtBody(wavFormatPCM, 1, 8000, 16)))
	// Header claims 1000 bytes but only 5 arrive.
	hdr := []byte("data\xe8\x03\x00\x00")
	data = append(data, hdr...)
	data = append(data, 0x01, 0x00, 0x02, 0x00, 0x03)

	buf, err := NewWAV().Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if buf.Frames() != 2 {
		t.Errorf("expected 2 frames, got %d", buf.Frames())
	}
}

func TestWAVMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not riff", []byte("OggS\x00\x00\x00\x00WAVE")},
		{"no fmt", buildWAV(chunk("data", []byte{0, 0}))},
		{"no data", buildWAV(chunk("fmt ", fmtBody(wavFormatPCM, 1, 8000, 16)))},
		{"short fmt", buildWAV(chunk("fmt ", []byte{1, 0, 1, 0}), chunk("data", []byte{0, 0}))},
		{"adpcm", buildWAV(chunk("fmt ", fmtBody(0x0002, 1, 8000, 4)), chunk("data", []byte{0, 0}))},
		{"zero rate", buildWAV(chunk("fmt ", fmtBody(wavFormatPCM, 1, 0, 16)), chunk("data", []byte{0, 0}))},
		{"one hertz", buildWAV(chunk("fmt ", fmtBody(wavFormatPCM, 1, 1, 8)), chunk("data", make([]byte, 1024)))},
		{"below minimum rate", buildWAV(chunk("fmt ", fmtBody(wavFormatPCM, 1, MinSampleRate-1, 16)), chunk("data", []byte{0, 0}))},
		{"above maximum rate", buildWAV(chunk("fmt ", fmtBody(wavFormatPCM, 2, 2*MaxSampleRate, 16)), chunk("data", []byte{0, 0, 0, 0}))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWAV().Decode(tt.data)
			var de *Error
			if !errors.As(err, &de) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if de.Codec != "wav" {
				t.Errorf("expected codec wav, got %s", de.Codec)
			}
		})
	}
}
