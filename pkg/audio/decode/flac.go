// ABOUTME: FLAC segment decoder
// ABOUTME: Decodes a complete FLAC stream to interleaved int32 samples
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/dubcast/dubcast-go/pkg/audio"
	"github.com/mewkiz/flac"
)

// FLACDecoder decodes FLAC segments
type FLACDecoder struct {
	// MaxSamples caps the decoded size; zero means the package MaxSamples.
	MaxSamples int
}

// NewFLAC creates a new FLAC decoder
func NewFLAC() *FLACDecoder {
	return &FLACDecoder{}
}

// Decode converts FLAC bytes to int32 samples
func (d *FLACDecoder) Decode(data []byte) (audio.Buffer, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return audio.Buffer{}, &Error{Codec: "flac", Err: fmt.Errorf("failed to parse stream: %w", err)}
	}
	defer stream.Close()

	limit := d.MaxSamples
	if limit <= 0 {
		limit = MaxSamples
	}

	info := stream.Info
	channels := int(info.NChannels)
	bitDepth := int(info.BitsPerSample)
	rate := int(info.SampleRate)

	if err := checkRate(rate); err != nil {
		return audio.Buffer{}, &Error{Codec: "flac", Err: err}
	}
	// NSamples is zero when the encoder did not know the length.
	declared := info.NSamples * uint64(channels)
	if declared > uint64(limit) {
		return audio.Buffer{}, &Error{Codec: "flac", Err: fmt.Errorf("stream declares %d samples, limit %d", declared, limit)}
	}

	// The header is only a hint; it never sizes more than the payload can fill.
	samples := make([]int32, 0, min(int(declared), 2*len(data)))
	for {
		f, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return audio.Buffer{}, &Error{Codec: "flac", Err: fmt.Errorf("frame decode failed: %w", err)}
		}

		// Frame headers carry their own layout and the parser does not hold
		// them to STREAMINFO.
		if len(f.Subframes) != channels || int(f.BitsPerSample) != bitDepth {
			return audio.Buffer{}, &Error{Codec: "flac", Err: fmt.Errorf(
				"frame %d has %d channels at %d bits, stream declares %d at %d",
				f.Num, len(f.Subframes), f.BitsPerSample, channels, bitDepth)}
		}
		block := int(f.BlockSize)
		for _, sub := range f.Subframes {
			if len(sub.Samples) < block {
				return audio.Buffer{}, &Error{Codec: "flac", Err: fmt.Errorf("frame %d subframe holds %d of %d samples", f.Num, len(sub.Samples), block)}
			}
		}
		if len(samples)+block*channels > limit {
			return audio.Buffer{}, &Error{Codec: "flac", Err: fmt.Errorf("segment decodes to more than %d samples", limit)}
		}

		for i := 0; i < block; i++ {
			for ch := 0; ch < channels; ch++ {
				samples = append(samples, audio.ScaleTo24Bit(f.Subframes[ch].Samples[i], bitDepth))
			}
		}
	}

	if len(samples) == 0 {
		return audio.Buffer{}, &Error{Codec: "flac", Err: errors.New("no audio frames")}
	}

	return audio.Buffer{
		Samples: samples,
		Format: audio.Format{
			Codec:      "flac",
			SampleRate: rate,
			Channels:   channels,
			BitDepth:   bitDepth,
		},
	}, nil
}

// Close releases decoder resources
func (d *FLACDecoder) Close() error {
	return nil
}
