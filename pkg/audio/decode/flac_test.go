// ABOUTME: Tests for FLAC decoder
// ABOUTME: Builds minimal streams by hand, including headers that lie
package decode

import (
	"encoding/binary"
	"errors"
	"testing"
)

// flacStream builds "fLaC" plus a single STREAMINFO block
func flacStream(rate, channels, bits int, nsamples uint64) []byte {
	info := make([]byte, 34)
	binary.BigEndian.PutUint16(info[0:2], 192)
	binary.BigEndian.PutUint16(info[2:4], 192)
	packed := uint64(rate)<<44 | uint64(channels-1)<<41 | uint64(bits-1)<<36 | nsamples&(1<<36-1)
	binary.BigEndian.PutUint64(info[10:18], packed)

	out := []byte("fLaC")
	out = append(out, 0x80, 0, 0, byte(len(info)))
	return append(out, info...)
}

// flacFrame builds a 192-sample frame of constant subframes. channelCode
// and bitsCode are the raw header fields.
func flacFrame(channelCode, bitsCode byte, subframes, bits int, value uint16) []byte {
	hdr := []byte{0xFF, 0xF8, 0x10, channelCode<<4 | bitsCode<<1, 0x00}
	out := append(hdr, flacCRC8(hdr))
	for i := 0; i < subframes; i++ {
		out = append(out, 0x00)
		if bits == 8 {
			out = append(out, byte(value))
		} else {
			out = binary.BigEndian.AppendUint16(out, value)
		}
	}
	return binary.BigEndian.AppendUint16(out, flacCRC16(out))
}

func flacCRC8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x07
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func flacCRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x8005
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func TestFLACDecodesConstantFrame(t *testing.T) {
	data := append(flacStream(16000, 1, 16, 192), flacFrame(0x0, 0x4, 1, 16, 256)...)

	buf, err := NewFLAC().Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if buf.Format.SampleRate != 16000 || buf.Format.Channels != 1 || buf.Format.BitDepth != 16 {
		t.Errorf("unexpected format %s", buf.Format)
	}
	if len(buf.Samples) != 192 {
		t.Fatalf("expected 192 samples, got %d", len(buf.Samples))
	}
	if buf.Samples[0] != 256<<8 || buf.Samples[191] != 256<<8 {
		t.Errorf("expected samples of %d, got %d and %d", 256<<8, buf.Samples[0], buf.Samples[191])
	}
}

func TestFLACRejectsLyingHeaders(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"huge sample count", flacStream(44100, 8, 16, 1<<36-1)},
		{"one hertz", append(flacStream(1, 1, 16, 192), flacFrame(0x0, 0x4, 1, 16, 1)...)},
		{"frame has fewer channels", append(flacStream(16000, 2, 16, 192), flacFrame(0x0, 0x4, 1, 16, 1)...)},
		{"frame has other bit depth", append(flacStream(16000, 1, 16, 192), flacFrame(0x0, 0x1, 1, 8, 1)...)},
		{"no frames", flacStream(16000, 1, 16, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, dec := range []Decoder{NewFLAC(), NewAuto(nil)} {
				_, err := dec.Decode(tt.data)
				var de *Error
				if !errors.As(err, &de) {
					t.Fatalf("expected *Error, got %v", err)
				}
				if de.Codec != "flac" {
					t.Errorf("expected codec flac, got %s", de.Codec)
				}
			}
		})
	}
}

func TestFLACSampleLimit(t *testing.T) {
	data := append(flacStream(16000, 1, 16, 0), flacFrame(0x0, 0x4, 1, 16, 1)...)
	data = append(data, flacFrame(0x0, 0x4, 1, 16, 1)...)

	dec := &FLACDecoder{MaxSamples: 200}
	if _, err := dec.Decode(data); err == nil {
		t.Fatal("expected error past the sample limit")
	}

	dec.MaxSamples = 384
	buf, err := dec.Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(buf.Samples) != 384 {
		t.Errorf("expected 384 samples, got %d", len(buf.Samples))
	}
}
