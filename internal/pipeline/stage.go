package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/zsiec/reel/internal/codec"
	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/queue"
)

// StageState is the lifecycle of one stage goroutine.
type StageState int32

// Stage states. A stage only moves forward.
const (
	StageIdle StageState = iota
	StageRunning
	StageDraining
	StageStopped
)

func (s StageState) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageRunning:
		return "running"
	case StageDraining:
		return "draining"
	case StageStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StageStats is a snapshot of one stage's counters.
type StageStats struct {
	Name         string
	State        StageState
	Packets      int64 // packets consumed (decode) or routed (demux)
	Frames       int64 // frames pushed downstream
	Dropped      int64 // frames or packets abandoned on cancellation
	DecodeErrors int64
}

// stageBase holds what every stage reports.
type stageBase struct {
	name  string
	run   string
	log   *slog.Logger
	hooks hookSet
	done  chan struct{}

	state        atomic.Int32
	packets      atomic.Int64
	frames       atomic.Int64
	dropped      atomic.Int64
	decodeErrors atomic.Int64
}

func (s *stageBase) init(name, run string, log *slog.Logger, hooks hookSet) {
	s.name = name
	s.run = run
	s.log = log.With("stage", name)
	s.hooks = hooks
	s.done = make(chan struct{})
}

func (s *stageBase) setState(st StageState) {
	if StageState(s.state.Swap(int32(st))) == st {
		return
	}
	s.log.Debug("stage state", "state", st)
	s.hooks.StageState(s.run, s.name, st)
}

func (s *stageBase) stats() StageStats {
	return StageStats{
		Name:         s.name,
		State:        StageState(s.state.Load()),
		Packets:      s.packets.Load(),
		Frames:       s.frames.Load(),
		Dropped:      s.dropped.Load(),
		DecodeErrors: s.decodeErrors.Load(),
	}
}

// demuxStage reads packets from the source and routes them to the packet
// queue of their stream. After the last packet it writes one end-of-stream
// marker per queue.
type demuxStage struct {
	stageBase
	src    Source
	flag   *queue.Flag
	routes map[int]*queue.Queue[*media.Packet]
	order  []int // stream indexes in selection order
}

func (s *demuxStage) runStage() error {
	s.setState(StageRunning)
	defer s.setState(StageStopped)

	var discarded int64
	for {
		if s.flag.Stopping() {
			return nil
		}
		p, err := s.src.ReadPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if s.flag.Stopping() {
				s.log.Debug("read ended by shutdown", "error", err)
				return nil
			}
			return fmt.Errorf("demux: %w", err)
		}

		q, ok := s.routes[p.StreamIndex]
		if !ok {
			discarded++
			continue
		}
		if err := q.Write(p); err != nil {
			s.dropped.Add(1)
			return nil
		}
		s.packets.Add(1)
	}

	s.log.Debug("end of input", "packets", s.packets.Load(), "discarded", discarded)
	s.setState(StageDraining)
	for _, idx := range s.order {
		if err := s.routes[idx].Write(media.EndOfStream(idx)); err != nil {
			return nil
		}
	}
	return nil
}

// decodeStage feeds one stream's packets to its decoder and pushes the
// resulting frames downstream, strictly in packet order.
type decodeStage struct {
	stageBase
	info   media.StreamInfo
	dec    codec.Decoder
	in     *queue.Queue[*media.Packet]
	out    *queue.Queue[*media.Frame]
	flag   *queue.Flag
	policy ErrorPolicy
	poll   time.Duration

	cancelled bool // a push was abandoned; later frames are dropped
}

func (s *decodeStage) runStage() error {
	defer func() {
		if err := s.dec.Close(); err != nil {
			s.log.Warn("close decoder", "error", err)
		}
	}()
	defer s.setState(StageStopped)
	s.setState(StageRunning)

	for !s.flag.Stopping() {
		p, ok := s.in.Read()
		if !ok {
			s.in.Await(s.poll)
			continue
		}
		if p.IsEndOfStream() {
			s.log.Debug("end of stream")
			break
		}
		s.packets.Add(1)
		if err := s.decode(p); err != nil {
			return err
		}
	}

	s.setState(StageDraining)
	return s.drain()
}

func (s *decodeStage) decode(p *media.Packet) error {
	if err := s.dec.SendPacket(p); err != nil {
		if err := s.rejected(err); err != nil {
			return err
		}
	}
	for {
		f, err := s.dec.ReceiveFrame()
		if errors.Is(err, codec.ErrAgain) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return s.rejected(err)
		}
		s.push(f)
	}
}

// rejected applies the error policy. It returns nil when the stage should
// carry on.
func (s *decodeStage) rejected(err error) error {
	s.decodeErrors.Add(1)
	s.hooks.DecodeError(s.name, err)
	if s.policy == PolicySkip {
		s.log.Warn("skipping packet", "error", err)
		return nil
	}
	var de *codec.DecodeError
	if !errors.As(err, &de) {
		err = &codec.DecodeError{Stream: s.info.Index, Codec: s.info.Codec, Err: err}
	}
	return err
}

func (s *decodeStage) push(f *media.Frame) {
	if s.cancelled {
		s.drop()
		return
	}
	if err := s.out.Write(f); err != nil {
		s.cancelled = true
		s.log.Debug("frame push abandoned", "error", err)
		s.drop()
		return
	}
	s.frames.Add(1)
	s.hooks.FrameDecoded(s.name, f.Type)
}

func (s *decodeStage) drop() {
	s.dropped.Add(1)
	s.hooks.FrameDropped(s.name)
}

// drain flushes the decoder and pushes whatever it still holds.
func (s *decodeStage) drain() error {
	if err := s.dec.Flush(); err != nil {
		return s.rejected(err)
	}
	for {
		f, err := s.dec.ReceiveFrame()
		if errors.Is(err, io.EOF) || errors.Is(err, codec.ErrAgain) {
			break
		}
		if err != nil {
			if err := s.rejected(err); err != nil {
				return err
			}
			break
		}
		s.push(f)
	}
	if n := s.dropped.Load(); n > 0 {
		s.log.Info("frames dropped on shutdown", "count", n)
	}
	return nil
}
