// Package wire implements the length-prefixed framing spoken over the
// client TCP connection.
//
// A request is a 4-byte big-endian length followed by that many bytes of a
// UTF-8 command string. A response is a big-endian int32 status code,
// optionally followed by an int32 payload length and the payload itself.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFrame bounds request frames when no explicit limit is configured.
const DefaultMaxFrame = 64 * 1024

var (
	// ErrEmptyFrame is returned for a zero length prefix.
	ErrEmptyFrame = errors.New("wire: empty frame")
	// ErrFrameTooLarge is returned when the prefix exceeds the configured limit.
	ErrFrameTooLarge = errors.New("wire: frame too large")
	// ErrShortFrame is returned when fewer bytes than declared arrive before the
	// reader fails (deadline, EOF). Partial frames cannot be resumed.
	ErrShortFrame = errors.New("wire: short frame")
)

// ReadFrame reads one request frame from r. Every error is connection-fatal.
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	if max <= 0 {
		max = DefaultMaxFrame
	}

	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: length prefix: %v", ErrShortFrame, err)
		}
		return nil, err
	}

	n := binary.BigEndian.Uint32(prefix[:])
	if n == 0 {
		return nil, ErrEmptyFrame
	}
	if n > uint32(max) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, max)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("%w: want %d bytes: %v", ErrShortFrame, n, err)
	}
	return body, nil
}

// AppendFrame appends a length-prefixed payload to dst.
func AppendFrame(dst, payload []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

// WriteFrame writes payload as one length-prefixed frame.
func WriteFrame(w io.Writer, payload []byte) error {
	_, err := w.Write(AppendFrame(make([]byte, 0, 4+len(payload)), payload))
	return err
}
