// ABOUTME: Error types for the frame codec
// ABOUTME: ProtocolError reports implausible length headers
package frame

import "fmt"

// ProtocolError is returned when a length header declares more bytes than
// the configured cap. The stream cannot be resynchronised after this.
type ProtocolError struct {
	Length uint64
	Max    uint32
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("frame: declared length %d exceeds limit %d", e.Length, e.Max)
}
