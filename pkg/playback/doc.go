// ABOUTME: Gapless playback scheduler package
// ABOUTME: Queues decoded chunks back to back on an audio clock
// Package playback decodes framed chunks and places each one exactly where
// the previous one ends, so consecutive segments play without gaps.
//
// When decoding falls behind the clock, the next chunk is pushed to a short
// safety margin after now instead of being started in the past. All sounding
// and pending voices can be silenced at once with StopAll.
//
// Example:
//
//	s := playback.NewScheduler(playback.Config{
//		Clock:   mixer,
//		Decoder: decode.NewAuto(nil),
//	})
//	for chunk, err := range demux.All() {
//		if err != nil {
//			break
//		}
//		s.Schedule(ctx, chunk)
//	}
package playback
