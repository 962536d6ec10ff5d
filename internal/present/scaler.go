package present

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/zsiec/reel/internal/media"
)

// ErrNotVideo is returned when a scaler is handed an audio frame.
var ErrNotVideo = errors.New("present: not a video frame")

// FitScaler resizes pictures to a fixed window height. The width follows
// the aspect ratio of the stream; when the stream has no known size the
// configured Width is used.
//
// Frames carry compressed access units, not pixels, so the raster is a
// flat card: keyframes are drawn lighter than other pictures.
type FitScaler struct {
	Width  int
	Height int
}

// Fit returns the output size for a source of srcW x srcH.
func (s FitScaler) Fit(srcW, srcH int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return s.Width, s.Height
	}
	w := (srcW*s.Height + srcH/2) / srcH
	return max(w, 1), s.Height
}

// Scale implements Scaler.
func (s FitScaler) Scale(f *media.Frame) (*Picture, error) {
	if f.Type != media.Video || f.Video == nil {
		return nil, ErrNotVideo
	}
	if s.Height <= 0 || s.Width <= 0 {
		return nil, fmt.Errorf("present: invalid window %dx%d", s.Width, s.Height)
	}
	w, h := s.Fit(f.Video.Width, f.Video.Height)

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	shade := color.RGBA{R: 0x30, G: 0x30, B: 0x30, A: 0xFF}
	if f.Video.Keyframe {
		shade = color.RGBA{R: 0x90, G: 0x90, B: 0x90, A: 0xFF}
	}
	draw.Draw(img, img.Bounds(), &image.Uniform{C: shade}, image.Point{}, draw.Src)

	return &Picture{
		Image:    img,
		Width:    w,
		Height:   h,
		PTS:      f.PTS,
		Sequence: f.Sequence,
		Keyframe: f.Video.Keyframe,
		Captions: f.Video.Captions,
		Frame:    f,
	}, nil
}
