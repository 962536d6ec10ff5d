package codec

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/zsiec/reel/internal/demux"
	"github.com/zsiec/reel/internal/media"
)

// audioDecoder splits ADTS packets into one frame per AAC frame. It never
// holds frames back, so Flush only switches ReceiveFrame to io.EOF.
type audioDecoder struct {
	info    media.StreamInfo
	log     *slog.Logger
	out     []*media.Frame
	flushed bool
	format  [2]int // sample rate, channels
}

func newAudioDecoder(info media.StreamInfo, log *slog.Logger) *audioDecoder {
	return &audioDecoder{info: info, log: log}
}

func (d *audioDecoder) SendPacket(p *media.Packet) error {
	if d.flushed {
		return ErrFlushed
	}
	frames, err := demux.ParseADTS(p.Data)
	if err == nil && len(frames) == 0 {
		err = fmt.Errorf("no ADTS frame in %d bytes", len(p.Data))
	}
	if err != nil {
		return &DecodeError{
			Stream:   d.info.Index,
			Codec:    d.info.Codec,
			Sequence: p.Sequence,
			Err:      fmt.Errorf("%w: %v", ErrMalformed, err),
		}
	}

	pts := p.PTS
	for _, af := range frames {
		if f := [2]int{af.SampleRate, af.Channels}; f != d.format {
			d.format = f
			d.log.Info("audio format", "sample_rate", af.SampleRate, "channels", af.Channels)
		}
		frame := &media.AudioFrame{
			SampleRate: af.SampleRate,
			Channels:   af.Channels,
			Samples:    af.Samples,
			Data:       af.Data,
		}
		d.out = append(d.out, &media.Frame{
			Type:        media.Audio,
			StreamIndex: d.info.Index,
			PTS:         pts,
			Sequence:    p.Sequence,
			Audio:       frame,
		})
		if pts != media.NoTimestamp {
			pts += frame.Duration()
		}
	}
	return nil
}

func (d *audioDecoder) ReceiveFrame() (*media.Frame, error) {
	if len(d.out) > 0 {
		f := d.out[0]
		d.out = d.out[1:]
		return f, nil
	}
	if d.flushed {
		return nil, io.EOF
	}
	return nil, ErrAgain
}

func (d *audioDecoder) Flush() error {
	d.flushed = true
	return nil
}

func (d *audioDecoder) Close() error {
	d.out = nil
	return nil
}
