package session

import (
	"errors"
	"fmt"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrIdle          = errors.New("session idle past grace period")
	ErrInvalidSize   = errors.New("invalid terminal size")
)

// SpawnError reports that the shell could not be started. No session
// exists afterwards.
type SpawnError struct {
	Shell string
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Shell, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// PtyIoError reports a failed read, write or resize on the pseudo-terminal.
// The session terminates when one occurs on read or write.
type PtyIoError struct {
	Op  string
	Err error
}

func (e *PtyIoError) Error() string {
	return fmt.Sprintf("pty %s: %v", e.Op, e.Err)
}

func (e *PtyIoError) Unwrap() error { return e.Err }
