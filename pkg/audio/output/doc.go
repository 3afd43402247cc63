// ABOUTME: Audio output package for scheduled playback
// ABOUTME: Provides the audio clock, a software mixer and an oto device
// Package output plays decoded buffers at exact positions on an audio clock.
//
// Mixer is the clock: its position is the number of sample frames it has
// rendered. Buffers are placed on that timeline with ScheduleStart and are
// summed sample-accurately, so back-to-back voices join with no gap.
// Device drives a Mixer from the sound card through oto.
//
// Example:
//
//	dev, err := output.OpenDevice(48000, 2, logger)
//	clock := dev.Mixer()
//	voice, err := clock.ScheduleStart(buf, clock.Now()+50*time.Millisecond, nil)
//	voice.Stop()
package output
