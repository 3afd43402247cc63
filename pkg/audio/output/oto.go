// ABOUTME: Oto-based audio device
// ABOUTME: Streams the mixer into the sound card with oto
package output

import (
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"
)

// deviceBuffer bounds how far the mixer clock runs ahead of the speaker
const deviceBuffer = 100 * time.Millisecond

// Device plays a Mixer through the system audio output.
type Device struct {
	otoCtx *oto.Context
	player *oto.Player
	mixer  *Mixer
	logger *zap.Logger
}

// OpenDevice initializes oto and starts pulling from a new mixer.
// oto allows one context per process, so open a single Device.
func OpenDevice(sampleRate, channels int, logger *zap.Logger) (*Device, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   deviceBuffer,
	}

	otoCtx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	mixer := NewMixer(sampleRate, channels, logger)
	player := otoCtx.NewPlayer(mixer)
	player.Play()

	logger.Info("audio output initialized",
		zap.Int("sample_rate", sampleRate),
		zap.Int("channels", channels))

	return &Device{
		otoCtx: otoCtx,
		player: player,
		mixer:  mixer,
		logger: logger,
	}, nil
}

// Mixer returns the clock driven by this device
func (d *Device) Mixer() *Mixer {
	return d.mixer
}

// Close stops playback and suspends the device
func (d *Device) Close() error {
	if d.player != nil {
		if err := d.player.Close(); err != nil {
			d.logger.Warn("failed to close player", zap.Error(err))
		}
		d.player = nil
	}
	if d.otoCtx != nil {
		if err := d.otoCtx.Suspend(); err != nil {
			return fmt.Errorf("suspend audio: %w", err)
		}
	}
	return nil
}
