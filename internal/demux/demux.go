// Package demux turns an MPEG-TS byte stream into per-stream media packets.
// It also holds the H.264, H.265 and ADTS bitstream parsers that the codec
// package uses to describe what it decodes.
package demux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/mpegts"
)

// ErrNoProgram is returned by Open when the input ends, or the probe limit is
// reached, before a PMT is found.
var ErrNoProgram = errors.New("demux: no program found")

// DefaultProbeUnits bounds how many transport units Open reads looking for
// the first PMT.
const DefaultProbeUnits = 4096

// Option configures a Demuxer.
type Option func(*Demuxer)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(d *Demuxer) {
		if log != nil {
			d.log = log
		}
	}
}

// WithPacketSize selects 188-byte TS or 192-byte M2TS input.
func WithPacketSize(size int) Option {
	return func(d *Demuxer) { d.packetSize = size }
}

// WithProbeUnits overrides DefaultProbeUnits.
func WithProbeUnits(n int) Option {
	return func(d *Demuxer) {
		if n > 0 {
			d.probeUnits = n
		}
	}
}

// Stats summarizes what a Demuxer has read so far.
type Stats struct {
	mpegts.ReaderStats
	Packets      uint64
	Dropped      uint64 // PES units on PIDs outside the program
	NoTimestamps uint64
}

// Demuxer reads media packets from a single-program transport stream.
// ReadPacket is not safe for concurrent use, but Close may be called from
// any goroutine to interrupt it.
type Demuxer struct {
	log        *slog.Logger
	src        io.Reader
	rd         *mpegts.Reader
	packetSize int
	probeUnits int

	streams []media.StreamInfo
	byPID   map[uint16]int
	pending []*mpegts.Unit
	seq     uint64
	stats   Stats

	closeOnce sync.Once
	closeErr  error
}

// Open probes r until the first PMT and returns a Demuxer positioned at the
// start of the stream. PES units read while probing are replayed by
// ReadPacket. If r is an io.Closer, Close closes it.
func Open(ctx context.Context, r io.Reader, opts ...Option) (*Demuxer, error) {
	d := &Demuxer{
		log:        slog.Default(),
		src:        r,
		packetSize: mpegts.PacketSize,
		probeUnits: DefaultProbeUnits,
		byPID:      make(map[uint16]int),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.With("component", "demux")
	d.rd = mpegts.NewReader(ctx, r, mpegts.WithPacketSize(d.packetSize))

	for n := 0; n < d.probeUnits; n++ {
		u, err := d.rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("demux: probe: %w", err)
		}
		switch {
		case u.PMT != nil:
			d.setProgram(u.PMT)
			d.log.Debug("program found", "program", u.PMT.ProgramNumber, "streams", len(d.streams))
			return d, nil
		case u.PES != nil:
			d.pending = append(d.pending, u)
		}
	}
	return nil, ErrNoProgram
}

func (d *Demuxer) setProgram(pmt *mpegts.PMT) {
	for _, es := range pmt.Streams {
		info := media.StreamInfo{
			Index:      len(d.streams),
			PID:        es.PID,
			StreamType: es.StreamType,
		}
		info.Type, info.Codec = classify(es.StreamType)
		d.byPID[es.PID] = info.Index
		d.streams = append(d.streams, info)
	}
}

func classify(streamType uint8) (media.Type, string) {
	switch streamType {
	case mpegts.StreamTypeH264:
		return media.Video, "h264"
	case mpegts.StreamTypeH265:
		return media.Video, "h265"
	case mpegts.StreamTypeAAC:
		return media.Audio, "aac"
	case 0x03, 0x04:
		return media.Audio, "mp3"
	case 0x02:
		return media.Video, "mpeg2video"
	}
	return media.Unknown, ""
}

// Streams returns the elementary streams of the program in PMT order.
func (d *Demuxer) Streams() []media.StreamInfo {
	out := make([]media.StreamInfo, len(d.streams))
	copy(out, d.streams)
	return out
}

// Stats returns counters collected so far.
func (d *Demuxer) Stats() Stats {
	s := d.stats
	s.ReaderStats = d.rd.Stats()
	return s
}

// ReadPacket returns the next packet of any stream of the program. It returns
// io.EOF once the input is exhausted.
func (d *Demuxer) ReadPacket() (*media.Packet, error) {
	for {
		var u *mpegts.Unit
		if len(d.pending) > 0 {
			u, d.pending = d.pending[0], d.pending[1:]
		} else {
			var err error
			if u, err = d.rd.Next(); err != nil {
				return nil, err
			}
		}
		if u.PES == nil {
			continue
		}
		idx, ok := d.byPID[u.PID]
		if !ok {
			d.stats.Dropped++
			continue
		}
		return d.packet(d.streams[idx], u), nil
	}
}

func (d *Demuxer) packet(info media.StreamInfo, u *mpegts.Unit) *media.Packet {
	d.seq++
	d.stats.Packets++
	p := &media.Packet{
		StreamIndex: info.Index,
		Data:        u.PES.Data,
		Sequence:    d.seq,
		Keyframe:    u.First != nil && u.First.Header.RandomAccess,
	}
	if pts, dts, ok := u.PES.Times(); ok {
		p.PTS, p.DTS = pts, dts
	} else {
		p.PTS, p.DTS = media.NoTimestamp, media.NoTimestamp
		d.stats.NoTimestamps++
	}

	switch info.Codec {
	case "h264":
		if !p.Keyframe {
			for _, n := range ParseAnnexB(p.Data) {
				if IsKeyframe(n.Type) {
					p.Keyframe = true
					break
				}
			}
		}
	case "h265":
		if !p.Keyframe {
			for _, n := range ParseAnnexBHEVC(p.Data) {
				if IsHEVCKeyframe(n.Type) {
					p.Keyframe = true
					break
				}
			}
		}
	case "aac":
		p.Keyframe = true
		frames, _ := ParseADTS(p.Data)
		for _, f := range frames {
			p.Duration += int64(f.Samples) * 1_000_000 / int64(f.SampleRate)
		}
	}
	return p
}

// Close closes the underlying reader if it is an io.Closer. It is safe to
// call more than once.
func (d *Demuxer) Close() error {
	d.closeOnce.Do(func() {
		if c, ok := d.src.(io.Closer); ok {
			d.closeErr = c.Close()
		}
	})
	return d.closeErr
}
