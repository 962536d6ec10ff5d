package pipeline

import (
	"fmt"
	"time"

	"github.com/zsiec/reel/internal/codec"
	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/queue"
)

// ErrorPolicy decides what a decode stage does with a packet its decoder
// rejects.
type ErrorPolicy string

const (
	// PolicyAbort ends the run with the decode error.
	PolicyAbort ErrorPolicy = "abort"
	// PolicySkip logs and counts the error, then moves to the next packet.
	PolicySkip ErrorPolicy = "skip"
)

// ParsePolicy converts a configuration string to an ErrorPolicy.
func ParsePolicy(s string) (ErrorPolicy, error) {
	switch p := ErrorPolicy(s); p {
	case PolicyAbort, PolicySkip:
		return p, nil
	case "":
		return PolicyAbort, nil
	}
	return "", fmt.Errorf("unknown decode error policy %q (want abort or skip)", s)
}

// Config holds the tunables of a pipeline run.
type Config struct {
	QueueCapacity   int
	PollInterval    time.Duration
	ErrorPolicy     ErrorPolicy
	ShutdownTimeout time.Duration
	ReorderDepth    int
	Captions        bool
	// Types lists the media types to play, in join order.
	Types []media.Type
}

// DefaultConfig returns the configuration used by the player.
func DefaultConfig() Config {
	return Config{
		QueueCapacity:   25,
		PollInterval:    queue.DefaultPollInterval,
		ErrorPolicy:     PolicyAbort,
		ShutdownTimeout: 2 * time.Second,
		ReorderDepth:    codec.DefaultReorderDepth,
		Captions:        true,
		Types:           []media.Type{media.Video, media.Audio},
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.QueueCapacity < 1:
		return fmt.Errorf("queue capacity must be at least 1, got %d", c.QueueCapacity)
	case c.PollInterval <= 0:
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	case c.ShutdownTimeout <= 0:
		return fmt.Errorf("shutdown timeout must be positive, got %s", c.ShutdownTimeout)
	case c.ReorderDepth < 0:
		return fmt.Errorf("reorder depth must not be negative, got %d", c.ReorderDepth)
	case len(c.Types) == 0:
		return fmt.Errorf("no media types selected")
	}
	if _, err := ParsePolicy(string(c.ErrorPolicy)); err != nil {
		return err
	}
	return nil
}
