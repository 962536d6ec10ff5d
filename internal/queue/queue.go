// Package queue provides the bounded handoff buffer that connects pipeline
// stages. A Queue applies backpressure to writers when full, lets readers
// either poll or block when empty, and can be cancelled so that every
// goroutine parked on it wakes up during shutdown.
package queue

import (
	"errors"
	"sync"
	"time"
)

// ErrCancelled is returned by Write when the queue was cancelled, or the run
// was stopped, while the writer waited for room. The item was not committed.
var ErrCancelled = errors.New("queue cancelled")

// DefaultPollInterval bounds every wait so that waiters re-check the
// cancellation state even if a wake signal is missed.
const DefaultPollInterval = 100 * time.Millisecond

// ReadMode selects how Read behaves on an empty queue.
type ReadMode int

const (
	// Polling reads return immediately with ok=false when the queue is empty.
	Polling ReadMode = iota
	// Blocking reads wait until an item arrives or the queue is cancelled.
	Blocking
)

func (m ReadMode) String() string {
	if m == Blocking {
		return "blocking"
	}
	return "polling"
}

// Observer receives queue activity. Implementations must be cheap and must
// not call back into the queue; they are invoked outside the queue lock.
type Observer interface {
	QueueWrite(name string, depth int)
	QueueRead(name string, depth int)
	QueueBlocked(name string)
}

// Option configures a Queue.
type Option func(*options)

type options struct {
	name string
	mode ReadMode
	poll time.Duration
	flag *Flag
	obs  Observer
}

// WithName labels the queue for logs and metrics.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithMode sets the empty-queue read behavior. The default is Polling.
func WithMode(m ReadMode) Option {
	return func(o *options) { o.mode = m }
}

// WithPollInterval sets the upper bound of a single wait.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.poll = d
		}
	}
}

// WithFlag ties the queue to a run's cancellation flag. Once the flag is
// raised, waits on the queue end as if the queue had been cancelled.
func WithFlag(f *Flag) Option {
	return func(o *options) { o.flag = f }
}

// WithObserver attaches an activity observer.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.obs = obs }
}

// Queue is a fixed-capacity FIFO safe for any number of producers and
// consumers. All state lives under one lock. The "not full" and "not empty"
// conditions are broadcast channels that are closed and replaced on every
// signal, which allows waits with a deadline.
type Queue[T any] struct {
	name string
	mode ReadMode
	poll time.Duration
	flag *Flag
	obs  Observer

	mu        sync.Mutex
	buf       []T
	head      int
	size      int
	cancelled bool
	notFull   chan struct{}
	notEmpty  chan struct{}
}

// New returns an empty queue holding at most capacity items. A capacity
// below one is raised to one.
func New[T any](capacity int, opts ...Option) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	o := options{poll: DefaultPollInterval}
	for _, opt := range opts {
		opt(&o)
	}
	return &Queue[T]{
		name:     o.name,
		mode:     o.mode,
		poll:     o.poll,
		flag:     o.flag,
		obs:      o.obs,
		buf:      make([]T, capacity),
		notFull:  make(chan struct{}),
		notEmpty: make(chan struct{}),
	}
}

// Name returns the queue label.
func (q *Queue[T]) Name() string { return q.name }

// Mode returns the configured read mode.
func (q *Queue[T]) Mode() ReadMode { return q.mode }

// Cap returns the fixed capacity.
func (q *Queue[T]) Cap() int { return len(q.buf) }

// Len returns the number of items currently buffered.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Write appends item at the tail, waiting while the queue is full. If the
// queue is cancelled or the run stopped during that wait, Write gives up and
// returns ErrCancelled. A write that finds room always commits.
func (q *Queue[T]) Write(item T) error {
	q.mu.Lock()
	blocked := false
	for q.size == len(q.buf) {
		if q.stoppedLocked() {
			q.mu.Unlock()
			return ErrCancelled
		}
		if !blocked {
			blocked = true
			if q.obs != nil {
				q.obs.QueueBlocked(q.name)
			}
		}
		ch := q.notFull
		q.mu.Unlock()
		q.wait(ch, q.poll)
		q.mu.Lock()
	}

	q.buf[(q.head+q.size)%len(q.buf)] = item
	q.size++
	depth := q.size
	q.signalLocked(&q.notEmpty)
	q.mu.Unlock()

	if q.obs != nil {
		q.obs.QueueWrite(q.name, depth)
	}
	return nil
}

// Read removes and returns the head item. On an empty queue a Polling queue
// returns ok=false at once; a Blocking queue waits until an item arrives and
// returns ok=false only once it is cancelled with nothing left to hand out.
func (q *Queue[T]) Read() (item T, ok bool) {
	q.mu.Lock()
	for q.size == 0 {
		if q.mode == Polling || q.stoppedLocked() {
			q.mu.Unlock()
			return item, false
		}
		ch := q.notEmpty
		q.mu.Unlock()
		q.wait(ch, q.poll)
		q.mu.Lock()
	}

	var zero T
	item = q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	depth := q.size
	q.signalLocked(&q.notFull)
	q.mu.Unlock()

	if q.obs != nil {
		q.obs.QueueRead(q.name, depth)
	}
	return item, true
}

// Await parks the caller until something is written, the queue is cancelled,
// or d elapses. It reports whether an item is available. Polling consumers
// use it instead of sleeping between empty reads.
func (q *Queue[T]) Await(d time.Duration) bool {
	q.mu.Lock()
	if q.size > 0 {
		q.mu.Unlock()
		return true
	}
	if q.stoppedLocked() {
		q.mu.Unlock()
		return false
	}
	ch := q.notEmpty
	q.mu.Unlock()

	q.wait(ch, d)
	return q.Len() > 0
}

// Cancel makes every current and future wait on the queue return. Items
// already buffered stay readable.
func (q *Queue[T]) Cancel() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancelled {
		return
	}
	q.cancelled = true
	q.signalLocked(&q.notFull)
	q.signalLocked(&q.notEmpty)
}

// Resume clears a previous Cancel so that writers block again when full.
func (q *Queue[T]) Resume() {
	q.mu.Lock()
	q.cancelled = false
	q.mu.Unlock()
}

// Cancelled reports whether Cancel is in effect.
func (q *Queue[T]) Cancelled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancelled
}

func (q *Queue[T]) stoppedLocked() bool {
	return q.cancelled || (q.flag != nil && q.flag.Stopping())
}

func (q *Queue[T]) signalLocked(ch *chan struct{}) {
	close(*ch)
	*ch = make(chan struct{})
}

func (q *Queue[T]) wait(ch <-chan struct{}, d time.Duration) {
	var stop <-chan struct{}
	if q.flag != nil {
		stop = q.flag.Done()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ch:
	case <-stop:
	case <-t.C:
	}
}
