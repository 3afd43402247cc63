// ABOUTME: Audio decoder package for self-contained segments
// ABOUTME: Provides Decoder interface and WAV, MP3, FLAC, Opus, PCM implementations
// Package decode turns one encoded segment into PCM.
//
// Supports: WAV, MP3, FLAC, Opus packets, raw PCM (16-bit and 24-bit).
//
// All decoders implement the Decoder interface and output int32 samples in
// 24-bit range with the Format the segment was encoded at. Failures are
// reported as *Error so callers can treat them as segment-local.
//
// NewAuto sniffs each segment's magic bytes, so a stream may mix containers.
//
// Example:
//
//	dec := decode.NewAuto(nil)
//	buf, err := dec.Decode(segment)
//	log.Printf("decoded %v of %s", buf.Duration(), buf.Format)
package decode
