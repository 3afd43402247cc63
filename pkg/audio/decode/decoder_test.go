// ABOUTME: Tests for the decoder factory
// ABOUTME: Verifies codec dispatch and error wrapping
package decode

import (
	"errors"
	"io"
	"testing"

	"github.com/dubcast/dubcast-go/pkg/audio"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		format  audio.Format
		wantErr bool
	}{
		{"auto", audio.Format{Codec: "auto"}, false},
		{"empty codec", audio.Format{}, false},
		{"wav", audio.Format{Codec: "wav"}, false},
		{"mp3", audio.Format{Codec: "mp3"}, false},
		{"flac", audio.Format{Codec: "flac"}, false},
		{"pcm", audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16}, false},
		{"pcm bad depth", audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 8}, true},
		{"aac", audio.Format{Codec: "aac"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec, err := New(tt.format)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if dec != nil {
					t.Errorf("expected nil decoder, got %T", dec)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := dec.Close(); err != nil {
				t.Errorf("close failed: %v", err)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	err := &Error{Codec: "mp3", Err: io.ErrUnexpectedEOF}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("expected wrapped error to match")
	}
	if err.Error() != "decode mp3: unexpected EOF" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
