package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxMessageSize bounds a single payload on the wire.
const MaxMessageSize = 16 << 20

const lengthPrefixSize = 4

// WriteFrame writes payload preceded by its length as a 4-byte big-endian
// unsigned integer. It issues a single Write so concurrent writers that
// serialise calls never interleave a prefix with another payload.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxMessageSize {
		return &ProtocolError{Op: "write", Err: ErrTooLarge}
	}
	buf := make([]byte, lengthPrefixSize, lengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed payload. A clean end of stream
// before the prefix returns io.EOF; a stream that ends inside a message
// returns a ProtocolError wrapping ErrTruncated. limit <= 0 means
// MaxMessageSize.
func ReadFrame(r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 || limit > MaxMessageSize {
		limit = MaxMessageSize
	}
	var prefix [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &ProtocolError{Op: "read", Err: ErrTruncated}
		}
		return nil, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if uint64(n) > uint64(limit) {
		return nil, &ProtocolError{Op: "read", Err: fmt.Errorf("%w: %d bytes", ErrTooLarge, n)}
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &ProtocolError{Op: "read", Err: ErrTruncated}
		}
		return nil, err
	}
	return payload, nil
}
