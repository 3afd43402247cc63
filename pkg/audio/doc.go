// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Buffer types and sample conversion functions
// Package audio provides the PCM types shared by decoders, the mixer and
// the playback scheduler.
//
// Samples are int32 values in 24-bit range regardless of the source bit
// depth, so 16-bit sources are left-justified with SampleFromInt16.
//
// Example:
//
//	buf := audio.Buffer{
//	    Samples: samples,
//	    Format:  audio.Format{Codec: "pcm", SampleRate: 24000, Channels: 1, BitDepth: 16},
//	}
//	log.Printf("segment lasts %v", buf.Duration())
package audio
