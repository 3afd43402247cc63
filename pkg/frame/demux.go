// ABOUTME: Pull-based demultiplexer reading frames from an io.Reader
// ABOUTME: Yields chunks lazily and ends quietly on truncated streams
package frame

import (
	"errors"
	"fmt"
	"io"
	"iter"
)

const defaultReadSize = 32 * 1024

type options struct {
	maxChunk uint32
	readSize int
}

// Option configures a Demuxer or Writer.
type Option func(*options)

// WithMaxChunkSize sets the largest accepted payload.
func WithMaxChunkSize(n uint32) Option {
	return func(o *options) { o.maxChunk = n }
}

// WithReadSize sets the size of each read from the source.
func WithReadSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.readSize = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{maxChunk: DefaultMaxChunkSize, readSize: defaultReadSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxChunk == 0 {
		o.maxChunk = DefaultMaxChunkSize
	}
	return o
}

// Demuxer turns a byte stream into a sequence of chunks. Iteration is
// one-shot: once Next returns an error the sequence is over.
type Demuxer struct {
	r       io.Reader
	asm     *Assembler
	scratch []byte
	err     error
}

// NewDemuxer reads frames from r.
func NewDemuxer(r io.Reader, opts ...Option) *Demuxer {
	o := buildOptions(opts)
	return &Demuxer{
		r:       r,
		asm:     NewAssembler(o.maxChunk),
		scratch: make([]byte, o.readSize),
	}
}

// Next returns the next chunk. It returns io.EOF when the source ends,
// whether or not a partial frame was left behind. Read failures are
// returned wrapped; a *ProtocolError is returned for oversized headers.
func (d *Demuxer) Next() (Chunk, error) {
	for {
		chunk, ok, err := d.asm.Pop()
		if err != nil {
			return Chunk{}, err
		}
		if ok {
			return chunk, nil
		}
		if d.err != nil {
			return Chunk{}, d.err
		}

		n, err := d.r.Read(d.scratch)
		if n > 0 {
			d.asm.Append(d.scratch[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.err = io.EOF
			} else {
				d.err = fmt.Errorf("frame: read stream: %w", err)
			}
		}
	}
}

// All returns the remaining chunks as an iterator. A clean end of stream
// terminates the loop without yielding an error.
func (d *Demuxer) All() iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		for {
			chunk, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Chunk{}, err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// Truncated returns the number of bytes left over after the source ended.
// It is zero while the stream is open or when it ended on a frame boundary.
func (d *Demuxer) Truncated() int {
	if !errors.Is(d.err, io.EOF) {
		return 0
	}
	return d.asm.Buffered()
}

// Chunks returns how many chunks have been produced so far.
func (d *Demuxer) Chunks() uint64 {
	return d.asm.Popped()
}
