// ABOUTME: Tests for the sniffing decoder
// ABOUTME: Verifies container detection and fallback dispatch
package decode

import (
	"errors"
	"testing"

	"github.com/dubcast/dubcast-go/pkg/audio"
)

func TestSniff(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{"wav", []byte("RIFF\x24\x00\x00\x00WAVEfmt "), ContainerWAV},
		{"flac", []byte("fLaC\x00\x00\x00\x22"), ContainerFLAC},
		{"id3", []byte("ID3\x04\x00"), ContainerMP3},
		{"mpeg sync", []byte{0xFF, 0xFB, 0x90, 0x00}, ContainerMP3},
		{"riff not wave", []byte("RIFF\x24\x00\x00\x00AVI "), ContainerUnknown},
		{"garbage", []byte{0x01, 0x02, 0x03}, ContainerUnknown},
		{"empty", nil, ContainerUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sniff(tt.data); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestAutoDecodesWAV(t *testing.T) {
	format := audio.Format{Codec: "wav", SampleRate: 16000, Channels: 1, BitDepth: 16}
	data := encodeWAV(t, format, make([]int32, 1600))

	buf, err := NewAuto(nil).Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if buf.Frames() != 1600 {
		t.Errorf("expected 1600 frames, got %d", buf.Frames())
	}
}

func TestAutoUnknownWithoutFallback(t *testing.T) {
	_, err := NewAuto(nil).Decode([]byte{0x01, 0x02, 0x03, 0x04, 0x05})
	if !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
	var de *Error
	if !errors.As(err, &de) {
		t.Fatalf("expected *Error, got %T", err)
	}
}

func TestAutoFallback(t *testing.T) {
	pcm, err := NewPCM(audio.Format{Codec: "pcm", SampleRate: 8000, Channels: 1, BitDepth: 16})
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	buf, err := NewAuto(pcm).Decode([]byte{0x01, 0x00, 0x02, 0x00})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(buf.Samples) != 2 || buf.Samples[1] != 2<<8 {
		t.Errorf("unexpected samples %v", buf.Samples)
	}

	// Odd length is a partial frame for mono 16-bit.
	_, err = NewAuto(pcm).Decode([]byte{0x01, 0x00, 0x02})
	var de *Error
	if !errors.As(err, &de) || de.Codec != "pcm" {
		t.Fatalf("expected pcm *Error, got %v", err)
	}
}

func TestAutoMalformedContainer(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		codec string
	}{
		{"flac", []byte("fLaC\x00\x00"), "flac"},
		{"mp3", []byte("ID3\x00"), "mp3"},
		{"wav", []byte("RIFF\x04\x00\x00\x00WAVE"), "wav"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAuto(nil).Decode(tt.data)
			var de *Error
			if !errors.As(err, &de) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if de.Codec != tt.codec {
				t.Errorf("expected codec %s, got %s", tt.codec, de.Codec)
			}
		})
	}
}
