// Package player runs one playback: it opens the input, builds the
// pipeline, attaches the presenter and the audio output to its frame
// queues, and tears everything down in order when the input ends, a stage
// fails or the caller cancels.
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/reel/internal/certs"
	"github.com/zsiec/reel/internal/config"
	"github.com/zsiec/reel/internal/demux"
	"github.com/zsiec/reel/internal/events"
	"github.com/zsiec/reel/internal/input"
	"github.com/zsiec/reel/internal/logging"
	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/metrics"
	"github.com/zsiec/reel/internal/monitor"
	"github.com/zsiec/reel/internal/pipeline"
	"github.com/zsiec/reel/internal/present"
)

// Options describes a playback.
type Options struct {
	Config config.Config
	Input  string

	// ConfigPath is reloaded on change when Watch is set; the new logging
	// levels apply to the running playback.
	ConfigPath string
	Watch      bool

	// Monitor forwards the presentation to Config.Monitor.Addr.
	Monitor bool

	Stdin   io.Reader
	Sinks   []present.Sink
	Metrics *metrics.Metrics
	Bus     *events.Bus
}

// Result summarizes a finished playback.
type Result struct {
	RunID       string
	Streams     []media.StreamInfo
	Input       input.Stats
	Demux       demux.Stats
	Stages      []pipeline.StageStats
	Pictures    int64
	Captions    int64
	AudioFrames int64
	Elapsed     time.Duration
}

// Run plays opts.Input to the end or until ctx is cancelled. Cancelling
// ctx is a normal stop and not an error.
func Run(ctx context.Context, opts Options) (Result, error) {
	var res Result
	cfg := opts.Config
	log := logging.GetLogger("player")

	pcfg, err := cfg.PipelineConfig()
	if err != nil {
		return res, err
	}

	in, err := input.Open(ctx, opts.Input, input.Options{
		DialTimeout: cfg.Input.DialTimeout.Std(),
		Log:         logging.GetLogger("input"),
		Stdin:       opts.Stdin,
	})
	if err != nil {
		return res, err
	}
	defer in.Close()

	// The pipeline stops the demuxer by closing it; a cancelled context
	// would surface as a read error instead.
	dmx, err := demux.Open(context.WithoutCancel(ctx), in, demux.WithLogger(logging.GetLogger("demux")))
	if err != nil {
		return res, fmt.Errorf("open %s: %w", opts.Input, err)
	}

	m := opts.Metrics
	if m == nil {
		m = metrics.New(false)
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.New()
	}
	defer events.Subscribe(bus, func(ev events.DecodeFailed) {
		log.Warn("decode failed", "stage", ev.Stage, "error", ev.Error)
	})()

	p, err := pipeline.New(dmx, pcfg,
		pipeline.WithLogger(logging.GetLogger("pipeline")),
		pipeline.WithQueueObserver(m),
		pipeline.WithHooks(m, bus.Hooks()),
	)
	if err != nil {
		dmx.Close()
		return res, err
	}
	res.RunID = p.RunID()
	res.Streams = p.Selection()

	sinks := present.MultiSink{present.NewLogSink(logging.GetLogger("present")), events.CaptionSink{Bus: bus}}
	sinks = append(sinks, opts.Sinks...)
	if opts.Monitor {
		ms, err := dialMonitor(ctx, cfg, opts.Input, p.RunID())
		if err != nil {
			p.Stop()
			return res, err
		}
		sinks = append(sinks, ms)
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancelRun := context.WithCancel(gctx)
	defer cancelRun()

	if addr := cfg.Metrics.Addr; addr != "" {
		g.Go(func() error { return m.Serve(runCtx, addr, logging.GetLogger("metrics")) })
	}
	if opts.Watch && opts.ConfigPath != "" {
		w := config.NewWatcher(opts.ConfigPath, config.Load, logging.GetLogger("config"))
		w.OnReload(func(c config.Config) {
			logging.Initialize(c.Logging)
			log.Info("logging reconfigured", "level", c.Logging.Level)
		})
		g.Go(func() error { return w.Run(runCtx) })
	}

	start := time.Now()
	if err := p.Start(runCtx); err != nil {
		cancelRun()
		p.Stop()
		return res, errors.Join(err, g.Wait(), sinks.Close())
	}
	bus.Publish(events.RunStarted{Run: p.RunID(), Input: opts.Input, Streams: streamNames(res.Streams), At: start})

	var presenter *present.Presenter
	var audio *present.AudioOutput
	var consumers errgroup.Group
	if q := p.Frames(media.Video); q != nil {
		presenter = present.NewPresenter(q, p.Done(), present.FitScaler{
			Width:  cfg.Presenter.Width,
			Height: cfg.Presenter.Height,
		}, sinks, cfg.PresenterConfig(),
			present.WithLogger(logging.GetLogger("present")),
			present.WithObserver(m),
		)
		consumers.Go(stopOnError(p, func() error { return presenter.Run(runCtx) }))
	}
	if q := p.Frames(media.Audio); q != nil {
		audio = present.NewAudioOutput(q, sinks, logging.GetLogger("present"), m)
		consumers.Go(stopOnError(p, audio.Run))
	}
	g.Go(func() error {
		defer cancelRun()
		return consumers.Wait()
	})

	runErr := g.Wait()
	stopErr := p.Stop()
	closeErr := sinks.Close()

	res.Elapsed = time.Since(start)
	res.Input = in.Stats()
	res.Demux = dmx.Stats()
	res.Stages = p.Stats()
	if presenter != nil {
		res.Pictures = presenter.Presented()
		res.Captions = presenter.Captions()
	}
	if audio != nil {
		res.AudioFrames = audio.Played()
	}

	err = errors.Join(p.Err(), runErr, stopErr, closeErr)
	finished := events.RunFinished{Run: p.RunID(), Elapsed: res.Elapsed}
	if err != nil {
		finished.Error = err.Error()
	}
	bus.Publish(finished)
	log.Info("playback finished", "run", p.RunID(), "pictures", res.Pictures,
		"audio_frames", res.AudioFrames, "bytes", res.Input.BytesRead, "elapsed", res.Elapsed.Round(time.Millisecond))
	return res, err
}

// stopOnError stops the pipeline when a consumer fails so that the other
// consumer's blocked read is released.
func stopOnError(p *pipeline.Pipeline, run func() error) func() error {
	return func() error {
		err := run()
		if err != nil {
			p.Stop()
		}
		return err
	}
}

func dialMonitor(ctx context.Context, cfg config.Config, source, runID string) (*monitor.Sink, error) {
	fp, err := certs.ParseFingerprint(cfg.Monitor.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("monitor fingerprint: %w", err)
	}
	dctx, cancel := context.WithTimeout(ctx, cfg.Input.DialTimeout.Std())
	defer cancel()
	return monitor.Dial(dctx, cfg.Monitor.Addr, fp, monitor.Hello{
		RunID:  runID,
		Source: source,
		Width:  uint64(cfg.Presenter.Width),
		Height: uint64(cfg.Presenter.Height),
	}, logging.GetLogger("monitor"))
}

func streamNames(streams []media.StreamInfo) []string {
	out := make([]string, len(streams))
	for i, s := range streams {
		out[i] = s.Codec
	}
	return out
}
