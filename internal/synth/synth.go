// Package synth writes synthetic MPEG-TS streams: H.264 video with valid
// parameter sets and slice headers, ADTS audio, and optional CEA-608
// captions. The pictures carry no macroblock data; the streams exist to
// exercise demuxing, queueing and presentation.
package synth

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/zsiec/reel/internal/demux"
	"github.com/zsiec/reel/internal/mpegts"
)

// PIDs used by generated streams.
const (
	VideoPID uint16 = 0x100
	AudioPID uint16 = 0x101
)

// startPTS offsets the first timestamp so streams never start at zero.
const startPTS = mpegts.ClockHz

// Config describes the stream to generate.
type Config struct {
	Frames     int
	Width      int
	Height     int
	FPS        int
	GOP        int // pictures per IDR period
	SliceBytes int // filler per picture

	Audio      bool
	SampleRate int
	Channels   int

	Captions      []string
	CaptionPeriod int // pictures between caption starts

	TableInterval int // PES packets between PAT/PMT repetitions
}

// DefaultConfig returns two seconds of 320x240 at 25 fps with stereo audio.
func DefaultConfig() Config {
	return Config{
		Frames:        50,
		Width:         320,
		Height:        240,
		FPS:           25,
		GOP:           25,
		SliceBytes:    256,
		Audio:         true,
		SampleRate:    48000,
		Channels:      2,
		CaptionPeriod: 40,
		TableInterval: 40,
	}
}

// Duration returns the video duration of the configuration.
func (c Config) Duration() time.Duration {
	if c.FPS <= 0 {
		return 0
	}
	return time.Duration(c.Frames) * time.Second / time.Duration(c.FPS)
}

func (c Config) validate() error {
	switch {
	case c.Frames < 0:
		return fmt.Errorf("synth: negative frame count %d", c.Frames)
	case c.Width < 16 || c.Height < 16:
		return fmt.Errorf("synth: picture %dx%d too small", c.Width, c.Height)
	case c.FPS <= 0:
		return fmt.Errorf("synth: fps must be positive")
	case c.Audio && demux.ADTSHeader(1, c.SampleRate, c.Channels, 0) == nil:
		return fmt.Errorf("synth: unsupported sample rate %d", c.SampleRate)
	case c.Audio && (c.Channels < 1 || c.Channels > 7):
		return fmt.Errorf("synth: unsupported channel count %d", c.Channels)
	}
	return nil
}

// Summary reports what Generate wrote.
type Summary struct {
	VideoFrames int
	AudioFrames int
	Captions    int
	Bytes       int64
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Generate writes the stream described by cfg to w.
func Generate(ctx context.Context, w io.Writer, cfg Config) (sum Summary, err error) {
	if err := cfg.validate(); err != nil {
		return sum, err
	}
	if cfg.GOP <= 0 {
		cfg.GOP = cfg.FPS
	}

	streams := []mpegts.ElementaryStream{{PID: VideoPID, StreamType: mpegts.StreamTypeH264}}
	if cfg.Audio {
		streams = append(streams, mpegts.ElementaryStream{PID: AudioPID, StreamType: mpegts.StreamTypeAAC})
	}
	cw := &countingWriter{w: w}
	tw := mpegts.NewWriter(cw, streams, mpegts.WithTableInterval(cfg.TableInterval))
	defer func() { sum.Bytes = cw.n }()

	sps, pps := SPS(cfg.Width, cfg.Height, cfg.FPS), PPS()
	schedule := captionSchedule(cfg)

	var audioPTS int64 = startPTS
	audioTicks := int64(1024) * mpegts.ClockHz / int64(max(cfg.SampleRate, 1))
	audioPayload := make([]byte, 64)
	for i := range audioPayload {
		audioPayload[i] = byte(0x21 + i)
	}

	idrID := 0
	for i := 0; i < cfg.Frames; i++ {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		pts := startPTS + int64(i)*mpegts.ClockHz/int64(cfg.FPS)
		idr := i%cfg.GOP == 0

		var units [][]byte
		if idr {
			units = append(units, sps, pps)
		}
		if pair, ok := schedule[i]; ok {
			units = append(units, CaptionSEI(pair))
			sum.Captions++
		}
		units = append(units, Slice(idr, i%cfg.GOP, idrID, cfg.SliceBytes))
		if idr {
			idrID++
		}

		ts := mpegts.Timestamp(pts)
		pes := &mpegts.PES{StreamID: mpegts.StreamIDVideo, PTS: &ts, Data: demux.JoinAnnexB(units...)}
		if err := tw.WritePES(VideoPID, pes, idr); err != nil {
			return sum, fmt.Errorf("synth: write video: %w", err)
		}
		sum.VideoFrames++

		if !cfg.Audio {
			continue
		}
		next := pts + mpegts.ClockHz/int64(cfg.FPS)
		for ; audioPTS < next; audioPTS += audioTicks {
			frame := append(demux.ADTSHeader(1, cfg.SampleRate, cfg.Channels, len(audioPayload)), audioPayload...)
			ats := mpegts.Timestamp(audioPTS)
			if err := tw.WritePES(AudioPID, &mpegts.PES{StreamID: mpegts.StreamIDAudio, PTS: &ats, Data: frame}, false); err != nil {
				return sum, fmt.Errorf("synth: write audio: %w", err)
			}
			sum.AudioFrames++
		}
	}
	return sum, nil
}

// captionSchedule assigns one CC pair per picture. Caption k starts at
// picture k*CaptionPeriod.
func captionSchedule(cfg Config) map[int]CCPair {
	out := make(map[int]CCPair)
	period := max(cfg.CaptionPeriod, 1)
	for k, text := range cfg.Captions {
		for j, p := range CaptionPairs(text) {
			out[k*period+j] = p
		}
	}
	return out
}
