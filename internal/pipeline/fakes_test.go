package pipeline

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/zsiec/reel/internal/codec"
	"github.com/zsiec/reel/internal/media"
)

var testStreams = []media.StreamInfo{
	{Index: 0, PID: 0x100, Type: media.Video, Codec: "h264"},
	{Index: 1, PID: 0x101, Type: media.Audio, Codec: "aac"},
	{Index: 2, PID: 0x102, Type: media.Unknown},
}

// sliceSource replays a fixed list of packets, then returns err (io.EOF by
// default).
type sliceSource struct {
	streams []media.StreamInfo
	packets []*media.Packet
	err     error
	closed  atomic.Bool
}

func (s *sliceSource) Streams() []media.StreamInfo { return s.streams }

func (s *sliceSource) ReadPacket() (*media.Packet, error) {
	if len(s.packets) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	p := s.packets[0]
	s.packets = s.packets[1:]
	return p, nil
}

func (s *sliceSource) Close() error {
	s.closed.Store(true)
	return nil
}

// endlessSource produces packets for every stream until it is closed.
type endlessSource struct {
	streams []media.StreamInfo
	seq     uint64
	closed  chan struct{}
	once    sync.Once
}

func newEndlessSource() *endlessSource {
	return &endlessSource{streams: testStreams, closed: make(chan struct{})}
}

func (s *endlessSource) Streams() []media.StreamInfo { return s.streams }

func (s *endlessSource) ReadPacket() (*media.Packet, error) {
	select {
	case <-s.closed:
		return nil, errors.New("read on closed source")
	default:
	}
	s.seq++
	return &media.Packet{
		StreamIndex: int(s.seq % 3),
		PTS:         int64(s.seq) * 1000,
		Data:        []byte{byte(s.seq)},
		Sequence:    s.seq,
	}, nil
}

func (s *endlessSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// packets builds n packets of one stream with sequences 1..n.
func packets(stream, n int) []*media.Packet {
	out := make([]*media.Packet, n)
	for i := range out {
		seq := uint64(i + 1)
		out[i] = &media.Packet{StreamIndex: stream, PTS: int64(seq) * 40_000, Data: []byte{byte(seq)}, Sequence: seq}
	}
	return out
}

// echoDecoder emits one frame per packet after holding back depth frames.
// Packets whose first byte is 0xFF are rejected.
type echoDecoder struct {
	info    media.StreamInfo
	depth   int
	held    []*media.Frame
	out     []*media.Frame
	flushed bool
	closed  atomic.Bool
	block   chan struct{} // if set, SendPacket waits on it
}

func (d *echoDecoder) SendPacket(p *media.Packet) error {
	if d.block != nil {
		<-d.block
	}
	if len(p.Data) > 0 && p.Data[0] == 0xFF {
		return &codec.DecodeError{Stream: d.info.Index, Codec: d.info.Codec, Sequence: p.Sequence, Err: codec.ErrMalformed}
	}
	d.held = append(d.held, &media.Frame{Type: d.info.Type, StreamIndex: p.StreamIndex, PTS: p.PTS, Sequence: p.Sequence})
	for len(d.held) > d.depth {
		d.out = append(d.out, d.held[0])
		d.held = d.held[1:]
	}
	return nil
}

func (d *echoDecoder) ReceiveFrame() (*media.Frame, error) {
	if len(d.out) > 0 {
		f := d.out[0]
		d.out = d.out[1:]
		return f, nil
	}
	if !d.flushed {
		return nil, codec.ErrAgain
	}
	if len(d.held) > 0 {
		f := d.held[0]
		d.held = d.held[1:]
		return f, nil
	}
	return nil, io.EOF
}

func (d *echoDecoder) Flush() error {
	d.flushed = true
	return nil
}

func (d *echoDecoder) Close() error {
	d.closed.Store(true)
	return nil
}

// echoFactory returns a DecoderFactory that records the decoders it opens.
type echoFactory struct {
	mu     sync.Mutex
	depth  int
	block  chan struct{}
	failOn string
	opened []*echoDecoder
}

func (f *echoFactory) open(info media.StreamInfo, _ codec.Options) (codec.Decoder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if info.Codec == f.failOn {
		return nil, errors.New("no such codec")
	}
	d := &echoDecoder{info: info, depth: f.depth, block: f.block}
	f.opened = append(f.opened, d)
	return d, nil
}

// recordingHooks keeps every stage state change.
type recordingHooks struct {
	mu      sync.Mutex
	states  map[string][]StageState
	decoded atomic.Int64
	dropped atomic.Int64
	errs    atomic.Int64
}

func newRecordingHooks() *recordingHooks {
	return &recordingHooks{states: make(map[string][]StageState)}
}

func (h *recordingHooks) StageState(_, stage string, st StageState) {
	h.mu.Lock()
	h.states[stage] = append(h.states[stage], st)
	h.mu.Unlock()
}

func (h *recordingHooks) FrameDecoded(string, media.Type) { h.decoded.Add(1) }
func (h *recordingHooks) FrameDropped(string)             { h.dropped.Add(1) }
func (h *recordingHooks) DecodeError(string, error)       { h.errs.Add(1) }

func (h *recordingHooks) stateLog(stage string) []StageState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]StageState(nil), h.states[stage]...)
}
