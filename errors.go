package itla

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by SendCommand when the link is not
	// Connected. No write is attempted.
	ErrNotConnected = errors.New("itla: not connected")
	// ErrBusy is returned by Connect while the link already holds a handle.
	ErrBusy = errors.New("itla: link busy")
	// ErrInvalidCommand is returned by SendCommand for commands that cannot be
	// encoded.
	ErrInvalidCommand = errors.New("itla: invalid command")
)

// OpenError reports that the transport for Port could not be opened.
// Open failures are reported once and never retried.
type OpenError struct {
	Port string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("itla: open %s: %v", e.Port, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// ReadError is a fatal transport read failure. It ends the current handle.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("itla: link read failed: %v", e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError is a failed command write. A broken write channel means a broken
// link, so it ends the current handle like a ReadError.
type WriteError struct {
	Command string
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("itla: write %q failed: %v", e.Command, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// DecodeError is the cause attached to a Malformed event.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("itla: malformed telemetry %q: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
