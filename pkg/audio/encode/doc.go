// ABOUTME: Audio encoder package for producing self-contained segments
// ABOUTME: Provides Encoder interface and WAV, Opus implementations
// Package encode turns PCM into independently decodable segments.
//
// Supports: WAV (16-bit and 24-bit PCM), Opus packets.
//
// Every call to Encode produces one complete segment; encoders never carry
// a container across calls, so each output can be framed on its own.
//
// Example:
//
//	enc, err := encode.NewWAV(audio.Format{Codec: "wav", SampleRate: 24000, Channels: 1, BitDepth: 16})
//	segment, err := enc.Encode(samples)
package encode
