package protocol

import (
	"errors"
	"fmt"
)

// ErrHandshake is wrapped by the error Run returns when the peer cannot be
// served at all.
var ErrHandshake = errors.New("filter protocol handshake failed")

// Error is a protocol violation. Fatal errors end the session; the others
// only fail the file being transferred.
type Error struct {
	Fatal  bool
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return "protocol error: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

func handshakeError(format string, args ...interface{}) *Error {
	return &Error{Fatal: true, Reason: fmt.Sprintf(format, args...), Err: ErrHandshake}
}
