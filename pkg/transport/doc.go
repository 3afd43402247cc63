// ABOUTME: Stream transport package
// ABOUTME: Opens cancellable framed byte streams over HTTP or WebSocket
// Package transport opens the byte stream that carries framed audio.
//
// Both transports send the same JSON request and return an io.ReadCloser of
// raw stream bytes. Fragment boundaries carry no meaning. Cancelling the
// context ends the stream promptly; read failures surface as *Error unless
// the context was the cause.
//
// Example:
//
//	s := &transport.HTTP{Endpoint: "http://localhost:8927/process-audio/stream-audio"}
//	body, err := s.Open(ctx, transport.Request{SourceURL: src, TargetLanguage: "hindi"})
//	defer body.Close()
//	demux := frame.NewDemuxer(body)
package transport
