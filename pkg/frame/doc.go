// ABOUTME: Length-prefixed frame codec for segmented audio streams
// ABOUTME: Splits an arbitrary byte stream into independently decodable chunks
// Package frame implements the framing used by the streaming endpoint.
//
// A stream is a concatenation of frames:
//
//	frame := length(4 bytes, big-endian, unsigned) || payload(length bytes)
//
// There is no end marker and no checksum. The stream ends when the transport
// closes. Fragment boundaries on the wire carry no meaning; the Assembler
// buffers bytes until a whole frame is present.
//
// Example:
//
//	d := frame.NewDemuxer(resp.Body)
//	for chunk, err := range d.All() {
//	    if err != nil {
//	        return err
//	    }
//	    handle(chunk.Data)
//	}
//	if n := d.Truncated(); n > 0 {
//	    log.Printf("stream ended with %d unframed bytes", n)
//	}
package frame
