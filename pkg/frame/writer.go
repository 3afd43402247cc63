// ABOUTME: Frame writer for producing length-prefixed streams
// ABOUTME: Used by the dev backend and by tests to build fixtures
package frame

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Writer writes frames to an underlying writer.
type Writer struct {
	w        io.Writer
	maxChunk uint32
	frames   uint64
}

// NewWriter creates a frame writer. Only WithMaxChunkSize applies.
func NewWriter(w io.Writer, opts ...Option) *Writer {
	o := buildOptions(opts)
	return &Writer{w: w, maxChunk: o.maxChunk}
}

// WriteFrame writes one length-prefixed payload.
func (w *Writer) WriteFrame(payload []byte) error {
	if uint64(len(payload)) > uint64(w.maxChunk) {
		return &ProtocolError{Length: uint64(len(payload)), Max: w.maxChunk}
	}

	var hdr [HeaderSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.w.Write(hdr[:]); err != nil {
		return fmt.Errorf("frame: write header: %w", err)
	}
	if _, err := w.w.Write(payload); err != nil {
		return fmt.Errorf("frame: write payload: %w", err)
	}

	w.frames++
	return nil
}

// Frames returns the number of frames written.
func (w *Writer) Frames() uint64 {
	return w.frames
}

// Encode returns the framed form of the given payloads.
func Encode(payloads ...[]byte) []byte {
	size := 0
	for _, p := range payloads {
		size += HeaderSize + len(p)
	}
	out := make([]byte, 0, size)
	for _, p := range payloads {
		out = binary.BigEndian.AppendUint32(out, uint32(len(p)))
		out = append(out, p...)
	}
	return out
}
