// Package media defines the packet and frame types that flow between the
// stages of a playback pipeline, from the demuxer through the decoders to
// the presenter.
package media

import (
	"fmt"
	"math"
)

// NoTimestamp marks a packet or frame whose container carried no PTS.
const NoTimestamp int64 = math.MinInt64

// Type identifies the kind of elementary stream.
type Type int

// Stream types handled by the pipeline.
const (
	Unknown Type = iota
	Video
	Audio
)

func (t Type) String() string {
	switch t {
	case Video:
		return "video"
	case Audio:
		return "audio"
	default:
		return "unknown"
	}
}

// StreamInfo describes one elementary stream found in the container.
type StreamInfo struct {
	Index      int    // position in the container's stream list
	PID        uint16 // MPEG-TS packet identifier
	Type       Type
	Codec      string // "h264", "h265", "aac"
	StreamType byte   // PMT stream_type
}

func (s StreamInfo) String() string {
	return fmt.Sprintf("#%d %s/%s pid=%d", s.Index, s.Type, s.Codec, s.PID)
}

// Packet is one compressed unit read from the container. Timestamps are in
// microseconds. Ownership passes to whoever pops it from a queue.
type Packet struct {
	StreamIndex int
	PTS         int64
	DTS         int64
	Duration    int64
	Keyframe    bool
	Data        []byte
	Sequence    uint64
}

// EndOfStream returns the marker packet the demuxer pushes into a stream's
// queue after the last real packet.
func EndOfStream(streamIndex int) *Packet {
	return &Packet{StreamIndex: streamIndex, Duration: -1}
}

// IsEndOfStream reports whether p is the end-of-stream marker.
func (p *Packet) IsEndOfStream() bool {
	return p.Duration == -1 && len(p.Data) == 0
}

// Frame is one decoded unit ready for presentation. Exactly one of Video or
// Audio is set, matching Type.
type Frame struct {
	Type        Type
	StreamIndex int
	PTS         int64
	Sequence    uint64 // sequence of the packet that completed the frame
	Video       *VideoFrame
	Audio       *AudioFrame
}

// VideoFrame is a decoded picture. Pixel reconstruction is left to the
// presentation side; the frame carries the access unit and its parameters.
type VideoFrame struct {
	Width    int
	Height   int
	Codec    string
	Profile  string // RFC 6381 codec string, e.g. "avc1.42C01E"
	Keyframe bool
	NALUs    [][]byte // Annex B NAL units of the access unit
	SPS      []byte
	PPS      []byte
	VPS      []byte
	Captions []string // CEA-608 text completed by this picture
}

// AudioFrame is one decoded AAC frame.
type AudioFrame struct {
	SampleRate int
	Channels   int
	Samples    int // samples per channel
	Data       []byte
}

// Duration returns the playback length of the frame in microseconds.
func (a *AudioFrame) Duration() int64 {
	if a.SampleRate <= 0 {
		return 0
	}
	return int64(a.Samples) * 1_000_000 / int64(a.SampleRate)
}
