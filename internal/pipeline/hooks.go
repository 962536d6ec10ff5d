package pipeline

import "github.com/zsiec/reel/internal/media"

// Hooks receives stage activity for metrics and event publishing. Methods
// are called from stage goroutines and must not block.
type Hooks interface {
	StageState(run, stage string, state StageState)
	FrameDecoded(stage string, t media.Type)
	FrameDropped(stage string)
	DecodeError(stage string, err error)
}

type hookSet []Hooks

func (hs hookSet) StageState(run, stage string, state StageState) {
	for _, h := range hs {
		h.StageState(run, stage, state)
	}
}

func (hs hookSet) FrameDecoded(stage string, t media.Type) {
	for _, h := range hs {
		h.FrameDecoded(stage, t)
	}
}

func (hs hookSet) FrameDropped(stage string) {
	for _, h := range hs {
		h.FrameDropped(stage)
	}
}

func (hs hookSet) DecodeError(stage string, err error) {
	for _, h := range hs {
		h.DecodeError(stage, err)
	}
}
