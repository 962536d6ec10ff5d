package monitor

import (
	"errors"
	"fmt"
)

// Sentinel errors for monitor sessions.
var (
	ErrVersionMismatch = errors.New("monitor: no compatible version")
	ErrDuplicateRun    = errors.New("monitor: run already attached")
	ErrUnexpectedMsg   = errors.New("monitor: unexpected message")
	ErrMessageTooLarge = errors.New("monitor: message too large")
	ErrRejected        = errors.New("monitor: session rejected")
)

// ParseError indicates a failure to parse one field of a monitor message.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("monitor: parse %s: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
