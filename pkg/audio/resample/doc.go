// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts audio between different sample rates
// Package resample provides audio sample rate conversion.
//
// Uses linear interpolation. Handles both upsampling and downsampling.
//
// Example:
//
//	out := resample.Convert(buf.Samples, 22050, 48000, 2)
package resample
