package present

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/zsiec/reel/internal/media"
)

// LogSink writes a log line per picture and per caption. It is the sink of
// a headless run.
type LogSink struct {
	log      *slog.Logger
	pictures atomic.Int64
	audio    atomic.Int64
}

// NewLogSink returns a LogSink. If log is nil, slog.Default() is used.
func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log.With("component", "log-sink")}
}

func (s *LogSink) Picture(p *Picture) error {
	n := s.pictures.Add(1)
	s.log.Debug("picture", "n", n, "pts", p.PTS, "width", p.Width, "height", p.Height, "key", p.Keyframe)
	for _, text := range p.Captions {
		s.log.Info("caption", "pts", p.PTS, "text", text)
	}
	return nil
}

func (s *LogSink) Audio(f *media.Frame) error {
	s.audio.Add(1)
	return nil
}

func (s *LogSink) Close() error {
	s.log.Info("presentation finished", "pictures", s.pictures.Load(), "audio_frames", s.audio.Load())
	return nil
}

// Counts returns the number of pictures and audio frames received.
func (s *LogSink) Counts() (pictures, audio int64) {
	return s.pictures.Load(), s.audio.Load()
}

// MultiSink fans out to several sinks. Every sink sees every call; the
// errors are joined.
type MultiSink []Sink

func (m MultiSink) Picture(p *Picture) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Picture(p))
	}
	return errors.Join(errs...)
}

func (m MultiSink) Audio(f *media.Frame) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Audio(f))
	}
	return errors.Join(errs...)
}

func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
