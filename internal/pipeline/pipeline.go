// Package pipeline runs a demux stage and one decode stage per selected
// stream, connected by bounded queues, and coordinates their shutdown.
//
// The host owns the presentation side: it reads frames from Frames and is
// the only party that calls Stop. Stage errors end the run and are reported
// by Err and Wait.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/reel/internal/codec"
	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/queue"
)

// Source is a demuxed input. ReadPacket returns io.EOF after the last
// packet. If a Source is also an io.Closer, Stop closes it to interrupt a
// blocked read.
type Source interface {
	Streams() []media.StreamInfo
	ReadPacket() (*media.Packet, error)
}

// DecoderFactory opens a decoder for a stream.
type DecoderFactory func(media.StreamInfo, codec.Options) (codec.Decoder, error)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

// WithDecoderFactory replaces codec.Open.
func WithDecoderFactory(f DecoderFactory) Option {
	return func(p *Pipeline) { p.open = f }
}

// WithSupported replaces codec.Supported for stream selection.
func WithSupported(f func(codec string) bool) Option {
	return func(p *Pipeline) { p.supported = f }
}

// WithQueueObserver attaches an observer to every queue of the run.
func WithQueueObserver(obs queue.Observer) Option {
	return func(p *Pipeline) { p.observer = obs }
}

// WithHooks adds stage activity hooks.
func WithHooks(h ...Hooks) Option {
	return func(p *Pipeline) { p.hooks = append(p.hooks, h...) }
}

type runner interface {
	runStage() error
}

// Pipeline is the coordinator of one playback run.
type Pipeline struct {
	cfg       Config
	src       Source
	log       *slog.Logger
	open      DecoderFactory
	supported func(string) bool
	observer  queue.Observer
	hooks     hookSet
	runID     string

	flag      *queue.Flag
	selection []media.StreamInfo
	packets   map[media.Type]*queue.Queue[*media.Packet]
	frames    map[media.Type]*queue.Queue[*media.Frame]
	demux     *demuxStage
	decoders  []*decodeStage

	mu         sync.Mutex
	started    bool
	err        error
	done       chan struct{}
	cancelOnce sync.Once
	stopOnce   sync.Once
	stopErr    error
	startedAt  time.Time
}

// New resolves stream selection against src, opens one decoder per selected
// stream, and builds the queues. It starts nothing. Every failure is an
// *InitError.
func New(src Source, cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &InitError{Op: "config", Err: err}
	}
	p := &Pipeline{
		cfg:       cfg,
		src:       src,
		log:       slog.Default(),
		open:      codec.Open,
		supported: codec.Supported,
		runID:     uuid.NewString(),
		flag:      queue.NewFlag(),
		packets:   make(map[media.Type]*queue.Queue[*media.Packet]),
		frames:    make(map[media.Type]*queue.Queue[*media.Frame]),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With("component", "pipeline", "run", p.runID)

	p.selection = SelectStreams(src.Streams(), cfg.Types, p.supported)
	if len(p.selection) == 0 {
		return nil, &InitError{Op: "select streams", Err: ErrNoStreams}
	}

	copts := codec.Options{ReorderDepth: cfg.ReorderDepth, Captions: cfg.Captions, Logger: p.log}
	decs := make([]codec.Decoder, 0, len(p.selection))
	for _, info := range p.selection {
		dec, err := p.open(info, copts)
		if err != nil {
			for _, d := range decs {
				d.Close()
			}
			return nil, &InitError{Op: fmt.Sprintf("open %s decoder for stream %d", info.Codec, info.Index), Err: err}
		}
		decs = append(decs, dec)
	}

	p.demux = &demuxStage{
		src:    src,
		flag:   p.flag,
		routes: make(map[int]*queue.Queue[*media.Packet]),
	}
	p.demux.init("demux", p.runID, p.log, p.hooks)
	for i, info := range p.selection {
		t := info.Type
		pq := queue.New[*media.Packet](cfg.QueueCapacity, p.queueOpts("packets-"+t.String(), queue.Polling)...)
		fq := queue.New[*media.Frame](cfg.QueueCapacity, p.queueOpts("frames-"+t.String(), frameReadMode(t))...)
		p.packets[t], p.frames[t] = pq, fq
		p.demux.routes[info.Index] = pq
		p.demux.order = append(p.demux.order, info.Index)

		d := &decodeStage{
			info:   info,
			dec:    decs[i],
			in:     pq,
			out:    fq,
			flag:   p.flag,
			policy: cfg.ErrorPolicy,
			poll:   cfg.PollInterval,
		}
		d.init("decode-"+t.String(), p.runID, p.log, p.hooks)
		p.decoders = append(p.decoders, d)
		p.log.Info("stream selected", "type", t, "stream", info.Index, "codec", info.Codec, "pid", info.PID)
	}
	return p, nil
}

// frameReadMode picks the read mode of a frame queue. The video presenter
// interleaves other work with its reads, so it polls; the audio output
// goroutine has nothing else to do and blocks.
func frameReadMode(t media.Type) queue.ReadMode {
	if t == media.Audio {
		return queue.Blocking
	}
	return queue.Polling
}

func (p *Pipeline) queueOpts(name string, mode queue.ReadMode) []queue.Option {
	opts := []queue.Option{
		queue.WithName(name),
		queue.WithMode(mode),
		queue.WithPollInterval(p.cfg.PollInterval),
		queue.WithFlag(p.flag),
	}
	if p.observer != nil {
		opts = append(opts, queue.WithObserver(p.observer))
	}
	return opts
}

// RunID identifies this run in logs, events and metrics.
func (p *Pipeline) RunID() string { return p.runID }

// Selection returns the selected streams in join order.
func (p *Pipeline) Selection() []media.StreamInfo {
	out := make([]media.StreamInfo, len(p.selection))
	copy(out, p.selection)
	return out
}

// Frames returns the frame queue of media type t, or nil if no stream of
// that type was selected.
func (p *Pipeline) Frames(t media.Type) *queue.Queue[*media.Frame] {
	return p.frames[t]
}

// Flag returns the run's cancellation flag.
func (p *Pipeline) Flag() *queue.Flag { return p.flag }

// Start launches the demux stage and then the decode stages. A stage error
// or the cancellation of ctx stops the run.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errors.New("pipeline: already started")
	}
	p.started = true
	p.startedAt = time.Now()
	p.mu.Unlock()

	var g errgroup.Group
	g.Go(p.stage(&p.demux.stageBase, p.demux))
	for _, d := range p.decoders {
		g.Go(p.stage(&d.stageBase, d))
	}

	go func() {
		err := g.Wait()
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		p.flag.MarkStopped()
		if err != nil {
			p.log.Error("run failed", "error", err)
		} else {
			p.log.Info("run finished", "elapsed", time.Since(p.startedAt).Round(time.Millisecond))
		}
		close(p.done)
	}()

	go func() {
		select {
		case <-ctx.Done():
			p.cancel("context done")
		case <-p.done:
		}
	}()
	return nil
}

func (p *Pipeline) stage(b *stageBase, r runner) func() error {
	return func() error {
		defer close(b.done)
		err := r.runStage()
		if err != nil {
			p.cancel(b.name + " failed")
		}
		return err
	}
}

// cancel wakes every waiter and asks the stages to stop. It does not wait.
func (p *Pipeline) cancel(reason string) {
	p.cancelOnce.Do(func() {
		p.log.Info("stopping", "reason", reason)
		for _, info := range p.selection {
			p.packets[info.Type].Cancel()
			p.frames[info.Type].Cancel()
		}
		p.flag.Stop()
		if c, ok := p.src.(io.Closer); ok {
			if err := c.Close(); err != nil {
				p.log.Debug("close source", "error", err)
			}
		}
	})
}

// Stop cancels the queues, raises the flag, closes the source and joins the
// stages in order: demux first, then the decode stages in selection order.
// Stages still running after the shutdown budget are reported in a
// *ShutdownTimeoutError. Stop is idempotent.
func (p *Pipeline) Stop() error {
	p.stopOnce.Do(func() {
		p.cancel("stop requested")

		p.mu.Lock()
		started := p.started
		p.started = true
		p.mu.Unlock()
		if !started {
			for _, d := range p.decoders {
				d.dec.Close()
			}
			p.flag.MarkStopped()
			close(p.done)
			return
		}

		timer := time.NewTimer(p.cfg.ShutdownTimeout)
		defer timer.Stop()
		expired := false
		var late []string
		for _, b := range p.stageOrder() {
			if expired {
				select {
				case <-b.done:
				default:
					late = append(late, b.name)
				}
				continue
			}
			select {
			case <-b.done:
			case <-timer.C:
				expired = true
				late = append(late, b.name)
			}
		}
		if len(late) > 0 {
			p.stopErr = &ShutdownTimeoutError{Stages: late, Budget: p.cfg.ShutdownTimeout}
			p.log.Warn("shutdown budget exceeded", "stages", late, "budget", p.cfg.ShutdownTimeout)
			return
		}
		<-p.done
	})
	return p.stopErr
}

func (p *Pipeline) stageOrder() []*stageBase {
	out := []*stageBase{&p.demux.stageBase}
	for _, d := range p.decoders {
		out = append(out, &d.stageBase)
	}
	return out
}

// Done is closed once every stage has exited.
func (p *Pipeline) Done() <-chan struct{} { return p.done }

// Err returns the first stage error, if any.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Wait blocks until every stage has exited and returns Err.
func (p *Pipeline) Wait() error {
	<-p.done
	return p.Err()
}

// Stats returns a snapshot of every stage in join order.
func (p *Pipeline) Stats() []StageStats {
	var out []StageStats
	for _, b := range p.stageOrder() {
		out = append(out, b.stats())
	}
	return out
}
