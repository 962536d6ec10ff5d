package queue

import (
	"sync"
	"sync/atomic"
)

// State is the lifecycle of a pipeline run as seen by its stages.
type State int32

// Run states. A flag only ever moves forward.
const (
	Running State = iota
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Flag is the cooperative cancellation flag shared by every stage and queue
// of one pipeline run. Stages poll Stopping at safe points; queues also select
// on Done so a blocked wait ends as soon as the flag is raised.
type Flag struct {
	state atomic.Int32
	once  sync.Once
	done  chan struct{}
}

// NewFlag returns a flag in the Running state.
func NewFlag() *Flag {
	return &Flag{done: make(chan struct{})}
}

// Stop moves the flag from Running to Stopping. It reports whether this call
// performed the transition.
func (f *Flag) Stop() bool {
	stopped := false
	f.once.Do(func() {
		f.state.CompareAndSwap(int32(Running), int32(Stopping))
		close(f.done)
		stopped = true
	})
	return stopped
}

// MarkStopped records that every stage has exited.
func (f *Flag) MarkStopped() {
	f.Stop()
	f.state.Store(int32(Stopped))
}

// State returns the current run state.
func (f *Flag) State() State {
	return State(f.state.Load())
}

// Stopping reports whether shutdown has been requested.
func (f *Flag) Stopping() bool {
	return f.State() != Running
}

// Done returns a channel closed when the flag leaves Running.
func (f *Flag) Done() <-chan struct{} {
	return f.done
}
