// ABOUTME: Sniffing decoder that dispatches on container magic bytes
// ABOUTME: Lets one stream carry WAV, FLAC and MP3 segments
package decode

import (
	"bytes"
	"fmt"

	"github.com/dubcast/dubcast-go/pkg/audio"
)

// Container names returned by Sniff
const (
	ContainerWAV     = "wav"
	ContainerFLAC    = "flac"
	ContainerMP3     = "mp3"
	ContainerUnknown = ""
)

// Sniff identifies a segment by its leading bytes.
func Sniff(data []byte) string {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return ContainerWAV
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte("fLaC")):
		return ContainerFLAC
	case len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")):
		return ContainerMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return ContainerMP3
	}
	return ContainerUnknown
}

// AutoDecoder picks a container decoder per segment
type AutoDecoder struct {
	wav      *WAVDecoder
	flac     *FLACDecoder
	mp3      *MP3Decoder
	fallback Decoder
}

// NewAuto creates a sniffing decoder. Segments with no recognised magic go
// to fallback, or fail with ErrUnknownFormat when fallback is nil.
func NewAuto(fallback Decoder) *AutoDecoder {
	return &AutoDecoder{
		wav:      NewWAV(),
		flac:     NewFLAC(),
		mp3:      NewMP3(),
		fallback: fallback,
	}
}

// WithMaxSamples raises or lowers the decoded-size cap of the compressed
// formats. WAV is bounded by its payload size already.
func (d *AutoDecoder) WithMaxSamples(n int) *AutoDecoder {
	d.flac.MaxSamples = n
	d.mp3.MaxSamples = n
	return d
}

// Decode dispatches to the matching decoder
func (d *AutoDecoder) Decode(data []byte) (audio.Buffer, error) {
	switch Sniff(data) {
	case ContainerWAV:
		return d.wav.Decode(data)
	case ContainerFLAC:
		return d.flac.Decode(data)
	case ContainerMP3:
		return d.mp3.Decode(data)
	}

	if d.fallback != nil {
		buf, err := d.fallback.Decode(data)
		if err != nil {
			return audio.Buffer{}, decodeErr("auto", err)
		}
		return buf, nil
	}

	head := data
	if len(head) > 4 {
		head = head[:4]
	}
	return audio.Buffer{}, &Error{Codec: "auto", Err: fmt.Errorf("%w (leading bytes %x)", ErrUnknownFormat, head)}
}

// Close releases the fallback decoder
func (d *AutoDecoder) Close() error {
	if d.fallback != nil {
		return d.fallback.Close()
	}
	return nil
}
