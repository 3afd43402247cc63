// ABOUTME: Push-based frame assembler over a rolling byte buffer
// ABOUTME: Accepts arbitrary fragments and pops whole chunks in order
package frame

import (
	"encoding/binary"
	"math"
)

const (
	// HeaderSize is the size of the big-endian length prefix.
	HeaderSize = 4

	// DefaultMaxChunkSize bounds a single payload unless overridden.
	DefaultMaxChunkSize uint32 = 16 << 20

	// MaxChunkLimit is the largest length the header can express.
	MaxChunkLimit uint32 = math.MaxUint32
)

// Chunk is one framed payload. Data is owned by the receiver; the assembler
// keeps no reference to it.
type Chunk struct {
	Seq  uint64 // zero-based position in the stream
	Data []byte
}

// Len returns the payload length.
func (c Chunk) Len() int { return len(c.Data) }

// Empty reports whether the frame declared a zero length.
func (c Chunk) Empty() bool { return len(c.Data) == 0 }

// Assembler reassembles frames from fragments. It is not safe for concurrent
// use; one stream owns one assembler.
type Assembler struct {
	buf      []byte
	off      int // start of unconsumed bytes in buf
	maxChunk uint32
	seq      uint64
	err      error
}

// NewAssembler creates an assembler that rejects payloads above maxChunk.
// A zero maxChunk selects DefaultMaxChunkSize.
func NewAssembler(maxChunk uint32) *Assembler {
	if maxChunk == 0 {
		maxChunk = DefaultMaxChunkSize
	}
	return &Assembler{maxChunk: maxChunk}
}

// Append adds a fragment to the end of the buffer. The fragment is copied.
func (a *Assembler) Append(fragment []byte) {
	if len(fragment) == 0 {
		return
	}
	a.compact()
	a.buf = append(a.buf, fragment...)
}

// Pop returns the next complete chunk. ok is false when more bytes are
// needed. Once a protocol error is returned it is returned forever.
func (a *Assembler) Pop() (chunk Chunk, ok bool, err error) {
	if a.err != nil {
		return Chunk{}, false, a.err
	}

	pending := a.buf[a.off:]
	if len(pending) < HeaderSize {
		return Chunk{}, false, nil
	}

	length := binary.BigEndian.Uint32(pending[:HeaderSize])
	if length > a.maxChunk {
		a.err = &ProtocolError{Length: uint64(length), Max: a.maxChunk}
		return Chunk{}, false, a.err
	}

	total := uint64(HeaderSize) + uint64(length)
	if uint64(len(pending)) < total {
		return Chunk{}, false, nil
	}

	data := make([]byte, length)
	copy(data, pending[HeaderSize:total])
	a.off += int(total)

	chunk = Chunk{Seq: a.seq, Data: data}
	a.seq++
	return chunk, true, nil
}

// Buffered returns the number of received bytes not yet part of a popped chunk.
func (a *Assembler) Buffered() int {
	return len(a.buf) - a.off
}

// Popped returns how many chunks have been produced.
func (a *Assembler) Popped() uint64 {
	return a.seq
}

// Reset drops all buffered bytes and any sticky error.
func (a *Assembler) Reset() {
	a.buf = a.buf[:0]
	a.off = 0
	a.seq = 0
	a.err = nil
}

// compact discards the consumed prefix once it dominates the buffer.
func (a *Assembler) compact() {
	if a.off == 0 {
		return
	}
	if a.off == len(a.buf) {
		a.buf = a.buf[:0]
		a.off = 0
		return
	}
	if a.off >= len(a.buf)/2 {
		n := copy(a.buf, a.buf[a.off:])
		a.buf = a.buf[:n]
		a.off = 0
	}
}
