// Package events publishes run lifecycle and stage activity on an in-process
// bus so that loggers, the monitor and tests can follow a run without being
// wired into the pipeline.
package events

import (
	"time"

	"github.com/kelindar/event"

	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/pipeline"
	"github.com/zsiec/reel/internal/present"
)

// Bus wraps a kelindar/event dispatcher.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish sends ev to every subscriber of its type.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case RunStarted:
		event.Publish(b.dispatcher, e)
	case RunFinished:
		event.Publish(b.dispatcher, e)
	case StageStateChanged:
		event.Publish(b.dispatcher, e)
	case DecodeFailed:
		event.Publish(b.dispatcher, e)
	case FramesDropped:
		event.Publish(b.dispatcher, e)
	case CaptionShown:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the events of type T and returns the
// function that removes it. Handlers run on the dispatcher's goroutines.
func Subscribe[T Event](b *Bus, handler func(T)) func() {
	return event.Subscribe(b.dispatcher, handler)
}

// Hooks returns pipeline hooks that publish on the bus.
func (b *Bus) Hooks() pipeline.Hooks { return hooks{b} }

type hooks struct{ b *Bus }

func (h hooks) StageState(run, stage string, st pipeline.StageState) {
	h.b.Publish(StageStateChanged{Run: run, Stage: stage, State: st.String(), At: time.Now()})
}

// FrameDecoded is not published; per-frame counts belong in metrics.
func (h hooks) FrameDecoded(string, media.Type) {}

func (h hooks) FrameDropped(stage string) {
	h.b.Publish(FramesDropped{Stage: stage})
}

func (h hooks) DecodeError(stage string, err error) {
	h.b.Publish(DecodeFailed{Stage: stage, Error: err.Error()})
}

// CaptionSink is a present.Sink that publishes the captions of every
// picture and ignores everything else.
type CaptionSink struct {
	Bus *Bus
}

func (s CaptionSink) Picture(p *present.Picture) error {
	for _, text := range p.Captions {
		s.Bus.Publish(CaptionShown{PTS: p.PTS, Text: text})
	}
	return nil
}

func (CaptionSink) Audio(*media.Frame) error { return nil }

func (CaptionSink) Close() error { return nil }
