package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrTruncated   = errors.New("truncated message")
	ErrUnknownType = errors.New("unknown message type")
	ErrTooLarge    = errors.New("message exceeds size limit")
	ErrMalformed   = errors.New("malformed message")
)

// ProtocolError reports a message that could not be decoded or framed. It
// is fatal to the connection that produced it and nothing else.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func decodeError(err error) error {
	return &ProtocolError{Op: "decode", Err: err}
}

// IsProtocolError reports whether err is or wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
