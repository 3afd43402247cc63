// ABOUTME: Tests for player command wiring
// ABOUTME: Covers endpoint derivation, flag overrides and decoder selection
package main

import (
	"testing"

	"github.com/dubcast/dubcast-go/internal/config"
	"github.com/dubcast/dubcast-go/pkg/audio/decode"
)

func TestEndpoints(t *testing.T) {
	tests := []struct {
		base     string
		wantHTTP string
		wantWS   string
	}{
		{"http://localhost:8927", "http://localhost:8927/process-audio/stream-audio", "ws://localhost:8927/ws"},
		{"http://localhost:8927/", "http://localhost:8927/process-audio/stream-audio", "ws://localhost:8927/ws"},
		{"https://dub.example.com/api", "https://dub.example.com/api/process-audio/stream-audio", "wss://dub.example.com/api/ws"},
	}

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			httpURL, wsURL, err := endpoints(tt.base)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if httpURL != tt.wantHTTP {
				t.Errorf("expected %s, got %s", tt.wantHTTP, httpURL)
			}
			if wsURL != tt.wantWS {
				t.Errorf("expected %s, got %s", tt.wantWS, wsURL)
			}
		})
	}
}

func TestEndpointsErrors(t *testing.T) {
	for _, base := range []string{"localhost", "ftp://host/x", "::"} {
		t.Run(base, func(t *testing.T) {
			if _, _, err := endpoints(base); err == nil {
				t.Errorf("expected error for %q", base)
			}
		})
	}
}

func TestApplyFlags(t *testing.T) {
	cmd := rootCmd
	if err := cmd.Flags().Parse([]string{"--lang", "tamil", "--transport", "ws", "--volume", "40"}); err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cfg := config.Default()
	if err := applyFlags(cmd, cfg); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if cfg.Player.DefaultLanguage != "tamil" || !cfg.Player.HasLanguage("tamil") {
		t.Errorf("expected tamil to be offered and default, got %v / %s", cfg.Player.Languages, cfg.Player.DefaultLanguage)
	}
	if cfg.Player.Transport != "ws" {
		t.Errorf("expected ws transport, got %s", cfg.Player.Transport)
	}
	if cfg.Player.Volume != 40 {
		t.Errorf("expected volume 40, got %d", cfg.Player.Volume)
	}
	if cfg.Player.Backend != config.Default().Player.Backend {
		t.Errorf("expected default backend to survive, got %s", cfg.Player.Backend)
	}
}

func TestNewDecoder(t *testing.T) {
	cfg := config.Default().Player

	dec, err := newDecoder(cfg)
	if err != nil {
		t.Fatalf("auto decoder failed: %v", err)
	}
	if _, ok := dec.(*decode.AutoDecoder); !ok {
		t.Errorf("expected *decode.AutoDecoder, got %T", dec)
	}

	cfg.Decoder = "opus"
	dec, err = newDecoder(cfg)
	if err != nil {
		t.Fatalf("opus decoder failed: %v", err)
	}
	if _, ok := dec.(*decode.OpusDecoder); !ok {
		t.Errorf("expected *decode.OpusDecoder, got %T", dec)
	}
}
