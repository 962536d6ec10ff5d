package events

import "time"

// Event type identifiers.
const (
	TypeRunStarted uint32 = iota + 1
	TypeRunFinished
	TypeStageStateChanged
	TypeDecodeFailed
	TypeFramesDropped
	TypeCaptionShown
)

// Event is what kelindar/event dispatches.
type Event interface {
	Type() uint32
}

// RunStarted is published once the pipeline of a run is running.
type RunStarted struct {
	Run     string    `json:"run"`
	Input   string    `json:"input"`
	Streams []string  `json:"streams"`
	At      time.Time `json:"at"`
}

func (RunStarted) Type() uint32 { return TypeRunStarted }

// RunFinished is published after every stage of a run has exited.
type RunFinished struct {
	Run     string        `json:"run"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

func (RunFinished) Type() uint32 { return TypeRunFinished }

// StageStateChanged reports a stage moving to a new state.
type StageStateChanged struct {
	Run   string    `json:"run"`
	Stage string    `json:"stage"`
	State string    `json:"state"`
	At    time.Time `json:"at"`
}

func (StageStateChanged) Type() uint32 { return TypeStageStateChanged }

// DecodeFailed reports a packet rejected by a decoder.
type DecodeFailed struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
}

func (DecodeFailed) Type() uint32 { return TypeDecodeFailed }

// FramesDropped reports a frame abandoned during shutdown.
type FramesDropped struct {
	Stage string `json:"stage"`
}

func (FramesDropped) Type() uint32 { return TypeFramesDropped }

// CaptionShown carries caption text that reached the screen.
type CaptionShown struct {
	PTS  int64  `json:"pts"`
	Text string `json:"text"`
}

func (CaptionShown) Type() uint32 { return TypeCaptionShown }
