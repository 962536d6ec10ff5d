// Package present is the consumer end of a playback run. A Presenter pulls
// video frames at the cadence of their timestamps, scales them for the
// output window and hands them to a Sink; an AudioOutput drains the audio
// frame queue into the same Sink. Neither ever writes back into the
// pipeline.
package present

import (
	"image"

	"github.com/zsiec/reel/internal/media"
)

// Picture is a video frame prepared for display.
type Picture struct {
	Image    *image.RGBA
	Width    int
	Height   int
	PTS      int64
	Sequence uint64
	Keyframe bool
	Captions []string
	Frame    *media.Frame
}

// Scaler converts a decoded video frame to the display format and size.
type Scaler interface {
	Scale(f *media.Frame) (*Picture, error)
}

// Sink receives everything the run presents. Calls for pictures come from
// the presenter goroutine and calls for audio from the audio goroutine, so
// implementations must be safe for that.
type Sink interface {
	Picture(p *Picture) error
	Audio(f *media.Frame) error
	Close() error
}

// Observer is told about every frame handed to the sink.
type Observer interface {
	FramePresented(t media.Type)
}
