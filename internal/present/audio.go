package present

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/queue"
)

// AudioOutput drains an audio frame queue into a sink. The queue should be
// in Blocking mode: the goroutine has nothing else to do, and a blocking
// read ends as soon as the run stops.
type AudioOutput struct {
	frames *queue.Queue[*media.Frame]
	sink   Sink
	log    *slog.Logger
	obs    Observer

	played  atomic.Int64
	samples atomic.Int64
}

// NewAudioOutput returns an AudioOutput. log and obs may be nil.
func NewAudioOutput(frames *queue.Queue[*media.Frame], sink Sink, log *slog.Logger, obs Observer) *AudioOutput {
	if log == nil {
		log = slog.Default()
	}
	return &AudioOutput{
		frames: frames,
		sink:   sink,
		log:    log.With("component", "audio-output"),
		obs:    obs,
	}
}

// Run hands frames to the sink until the queue is drained after the run
// stopped.
func (a *AudioOutput) Run() error {
	for {
		f, ok := a.frames.Read()
		if !ok {
			a.log.Debug("audio output finished", "frames", a.played.Load(), "samples", a.samples.Load())
			return nil
		}
		if err := a.sink.Audio(f); err != nil {
			return fmt.Errorf("audio frame %d: %w", f.Sequence, err)
		}
		a.played.Add(1)
		if f.Audio != nil {
			a.samples.Add(int64(f.Audio.Samples))
		}
		if a.obs != nil {
			a.obs.FramePresented(media.Audio)
		}
	}
}

// Played returns the number of frames handed to the sink.
func (a *AudioOutput) Played() int64 { return a.played.Load() }

// Samples returns the number of samples per channel played so far.
func (a *AudioOutput) Samples() int64 { return a.samples.Load() }
