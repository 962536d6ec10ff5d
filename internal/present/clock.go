package present

import (
	"time"

	"github.com/zsiec/reel/internal/media"
)

// Frame clock defaults.
const (
	DefaultInitialDelay = 40 * time.Millisecond
	DefaultMinDelay     = 10 * time.Millisecond
	DefaultIdleDelay    = 5 * time.Millisecond
	maxFrameDelta       = time.Second
)

// frameClock turns presentation timestamps into refresh delays. The delay
// after a frame is its distance to the previous frame; a distance that is
// not positive or reaches one second is treated as a discontinuity and the
// last good delay is reused.
type frameClock struct {
	lastPTS   int64
	lastDelay time.Duration
	minDelay  time.Duration
	started   bool
}

func newFrameClock(initial, minDelay time.Duration) *frameClock {
	return &frameClock{lastDelay: initial, minDelay: minDelay}
}

func (c *frameClock) next(pts int64) time.Duration {
	if pts == media.NoTimestamp {
		return max(c.lastDelay, c.minDelay)
	}
	delay := time.Duration(pts-c.lastPTS) * time.Microsecond
	if !c.started || delay <= 0 || delay >= maxFrameDelta {
		delay = c.lastDelay
	} else {
		c.lastDelay = delay
	}
	c.lastPTS = pts
	c.started = true
	return max(delay, c.minDelay)
}
