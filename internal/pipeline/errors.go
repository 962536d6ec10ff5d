package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoStreams is wrapped by the InitError returned when no stream of a
// requested type can be decoded.
var ErrNoStreams = errors.New("no playable stream")

// InitError reports a failure while building a pipeline. Nothing was started.
type InitError struct {
	Op  string
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("pipeline init: %s: %v", e.Op, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// ShutdownTimeoutError lists the stages that had not exited when the
// shutdown budget ran out.
type ShutdownTimeoutError struct {
	Stages []string
	Budget time.Duration
}

func (e *ShutdownTimeoutError) Error() string {
	return fmt.Sprintf("pipeline shutdown: stages %s still running after %s", strings.Join(e.Stages, ", "), e.Budget)
}
