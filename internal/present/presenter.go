package present

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/queue"
)

// Config controls the presenter's frame clock.
type Config struct {
	InitialDelay time.Duration // delay used until two frames have been seen
	MinDelay     time.Duration // floor of every refresh delay
	IdleDelay    time.Duration // retry interval when no frame is ready
}

// DefaultConfig returns the frame clock defaults.
func DefaultConfig() Config {
	return Config{
		InitialDelay: DefaultInitialDelay,
		MinDelay:     DefaultMinDelay,
		IdleDelay:    DefaultIdleDelay,
	}
}

// Option configures a Presenter.
type Option func(*Presenter)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(p *Presenter) {
		if log != nil {
			p.log = log
		}
	}
}

// WithObserver reports every presented picture to obs.
func WithObserver(obs Observer) Option {
	return func(p *Presenter) { p.obs = obs }
}

// Presenter is the video refresh loop. It polls its frame queue, so it never
// holds the queue while it waits out a frame delay.
type Presenter struct {
	frames *queue.Queue[*media.Frame]
	done   <-chan struct{}
	scaler Scaler
	sink   Sink
	cfg    Config
	log    *slog.Logger
	obs    Observer
	clock  *frameClock

	presented atomic.Int64
	captions  atomic.Int64
}

// NewPresenter returns a presenter for frames. done is closed when no more
// frames will be written, usually the pipeline's Done channel; the presenter
// returns once it is closed and the queue is empty.
func NewPresenter(frames *queue.Queue[*media.Frame], done <-chan struct{}, scaler Scaler, sink Sink, cfg Config, opts ...Option) *Presenter {
	if cfg.IdleDelay <= 0 {
		cfg.IdleDelay = DefaultIdleDelay
	}
	p := &Presenter{
		frames: frames,
		done:   done,
		scaler: scaler,
		sink:   sink,
		cfg:    cfg,
		log:    slog.Default(),
		clock:  newFrameClock(cfg.InitialDelay, cfg.MinDelay),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With("component", "presenter")
	return p
}

// Run presents frames until the input is exhausted or ctx is cancelled.
// A sink error ends the loop and is returned.
func (p *Presenter) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for ctx.Err() == nil {
		f, ok := p.frames.Read()
		if !ok {
			if p.finished() {
				p.log.Debug("no more frames", "presented", p.presented.Load())
				return nil
			}
			p.idle(ctx, timer)
			continue
		}

		delay := p.clock.next(f.PTS)
		if err := p.present(f); err != nil {
			return err
		}

		timer.Reset(delay)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
	return nil
}

func (p *Presenter) finished() bool {
	select {
	case <-p.done:
		return p.frames.Len() == 0
	default:
		return false
	}
}

// idle waits for the next frame. A cancelled queue no longer wakes its
// readers, so that case sleeps instead.
func (p *Presenter) idle(ctx context.Context, timer *time.Timer) {
	if !p.frames.Cancelled() {
		p.frames.Await(p.cfg.IdleDelay)
		return
	}
	timer.Reset(p.cfg.IdleDelay)
	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-p.done:
	}
	timer.Stop()
}

func (p *Presenter) present(f *media.Frame) error {
	pic, err := p.scaler.Scale(f)
	if err != nil {
		p.log.Warn("scale failed", "sequence", f.Sequence, "error", err)
		return nil
	}
	if err := p.sink.Picture(pic); err != nil {
		return fmt.Errorf("present picture %d: %w", f.Sequence, err)
	}
	p.presented.Add(1)
	p.captions.Add(int64(len(pic.Captions)))
	if p.obs != nil {
		p.obs.FramePresented(media.Video)
	}
	return nil
}

// Presented returns the number of pictures handed to the sink.
func (p *Presenter) Presented() int64 { return p.presented.Load() }

// Captions returns the number of caption lines presented.
func (p *Presenter) Captions() int64 { return p.captions.Load() }
