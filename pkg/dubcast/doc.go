// ABOUTME: High-level dubcast session API
// ABOUTME: Streams translated audio and plays it gapless with stop and switch
// Package dubcast provides the session that ties the pieces together.
//
// A Session owns one stream at a time: the transport request, the frame
// demultiplexer and the playback scheduler. Start tears down any previous
// stream before opening a new one, so switching language never mixes audio
// from two streams.
//
// For lower-level control, see the frame, playback, transport and audio
// packages.
//
// Example:
//
//	dev, err := output.OpenDevice(48000, 2, logger)
//	session := dubcast.New(dubcast.Config{
//	    Streamer: &transport.HTTP{Endpoint: "http://localhost:8927/process-audio/stream-audio"},
//	    Clock:    dev.Mixer(),
//	    OnStatus: func(st dubcast.Status) { log.Println(st.State) },
//	})
//	err = session.Start("https://cdn.example/talk.wav", "hindi")
//	...
//	session.Stop()
package dubcast
