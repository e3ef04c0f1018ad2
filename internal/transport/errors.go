package transport

import (
	"errors"
	"fmt"
)

var (
	ErrClosed         = errors.New("channel closed")
	ErrConnectTimeout = errors.New("connect timed out")
	ErrBadScheme      = errors.New("unsupported endpoint scheme")
)

// ConnectError reports that a channel could not be established. Nothing
// is retried.
type ConnectError struct {
	Endpoint string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// RemoteError is an Error message sent by the server.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return "server: " + e.Message }
