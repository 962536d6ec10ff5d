// Package input opens the byte stream a run plays: a file, standard input,
// or an SRT connection. Every input counts what it delivers so that the
// player can report source health.
package input

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Kind identifies where a stream's bytes come from.
type Kind int

// Input kinds.
const (
	KindFile Kind = iota
	KindStdin
	KindSRT
)

func (k Kind) String() string {
	switch k {
	case KindStdin:
		return "stdin"
	case KindSRT:
		return "srt"
	default:
		return "file"
	}
}

// Stats captures read-side counters of an input.
type Stats struct {
	BytesRead  int64  `json:"bytesRead"`
	ReadCount  int64  `json:"readCount"`
	OpenedAt   int64  `json:"openedAt"`
	UptimeMs   int64  `json:"uptimeMs"`
	RemoteAddr string `json:"remoteAddr,omitempty"`
}

// Stream is an open input. It is an io.ReadCloser; Close may be called from
// any goroutine to interrupt a blocked Read.
type Stream struct {
	Name      string
	Kind      Kind
	StartedAt time.Time

	r         io.Reader
	closer    io.Closer
	closeOnce sync.Once
	closeErr  error
	stop      func() bool

	bytesRead  atomic.Int64
	readCount  atomic.Int64
	remoteAddr atomic.Value
}

func newStream(name string, kind Kind, r io.Reader, c io.Closer) *Stream {
	return &Stream{Name: name, Kind: kind, StartedAt: time.Now(), r: r, closer: c}
}

func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 {
		s.RecordRead(n)
	}
	return n, err
}

// RecordRead adds one read of n bytes to the counters.
func (s *Stream) RecordRead(n int) {
	s.bytesRead.Add(int64(n))
	s.readCount.Add(1)
}

// SetRemoteAddr records the peer of a network input.
func (s *Stream) SetRemoteAddr(addr string) {
	s.remoteAddr.Store(addr)
}

// Stats returns a snapshot of the counters.
func (s *Stream) Stats() Stats {
	addr, _ := s.remoteAddr.Load().(string)
	return Stats{
		BytesRead:  s.bytesRead.Load(),
		ReadCount:  s.readCount.Load(),
		OpenedAt:   s.StartedAt.UnixMilli(),
		UptimeMs:   time.Since(s.StartedAt).Milliseconds(),
		RemoteAddr: addr,
	}
}

// Close releases the input. It is safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		if s.closer != nil {
			s.closeErr = s.closer.Close()
		}
	})
	return s.closeErr
}

// Options configures Open.
type Options struct {
	DialTimeout time.Duration
	Log         *slog.Logger
	Stdin       io.Reader // defaults to os.Stdin
}

// ErrEmptyName is returned by Open for an empty input name.
var ErrEmptyName = errors.New("input: no input given")

// Open opens name. "-" is standard input; srt://host:port is an SRT
// caller connection and srt://:port?mode=listener waits for one publisher;
// anything else is a file path. Cancelling ctx closes a network input.
func Open(ctx context.Context, name string, opts Options) (*Stream, error) {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	log := opts.Log.With("component", "input")

	switch {
	case name == "":
		return nil, ErrEmptyName
	case name == "-":
		in := opts.Stdin
		if in == nil {
			in = os.Stdin
		}
		return newStream("stdin", KindStdin, in, nil), nil
	case strings.HasPrefix(name, "srt://"):
		return openSRT(ctx, name, opts.DialTimeout, log)
	}

	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	log.Debug("opened file", "path", name)
	return newStream(name, KindFile, f, f), nil
}
