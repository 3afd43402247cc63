// ABOUTME: Tests for Opus decoder
// ABOUTME: Round-trips one packet through the Opus encoder
package decode

import (
	"errors"
	"testing"

	"github.com/dubcast/dubcast-go/pkg/audio"
	"github.com/dubcast/dubcast-go/pkg/audio/encode"
)

func TestNewOpusWrongCodec(t *testing.T) {
	if _, err := NewOpus(audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2}); err == nil {
		t.Fatal("expected error for wrong codec")
	}
}

func TestOpusRoundTrip(t *testing.T) {
	format := audio.Format{Codec: "opus", SampleRate: 48000, Channels: 2, BitDepth: 16}

	enc, err := encode.NewOpus(format)
	if err != nil {
		t.Fatalf("failed to create encoder: %v", err)
	}
	frameSize := enc.(*encode.OpusEncoder).FrameSize

	packet, err := enc.Encode(make([]int32, frameSize*2))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	dec, err := NewOpus(format)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	buf, err := dec.Decode(packet)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if buf.Frames() != frameSize {
		t.Errorf("expected %d frames, got %d", frameSize, buf.Frames())
	}
}

func TestOpusGarbage(t *testing.T) {
	dec, err := NewOpus(audio.Format{Codec: "opus", SampleRate: 48000, Channels: 2})
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	_, err = dec.Decode(nil)
	var de *Error
	if !errors.As(err, &de) {
		t.Fatalf("expected *Error, got %v", err)
	}
}
