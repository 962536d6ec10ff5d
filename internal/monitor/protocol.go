// Package monitor streams what a player presents to a remote monitor over
// QUIC. A player dials the monitor, announces its run on one bidirectional
// stream, and then sends every presented picture and played audio frame on
// that stream. The package holds the wire codec, the session registry, the
// listening Server and the dialing Sink.
package monitor

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

// Message type IDs.
const (
	MsgGoAway  uint64 = 0x10
	MsgHello   uint64 = 0x20
	MsgWelcome uint64 = 0x21
	MsgReject  uint64 = 0x22
	MsgConfig  uint64 = 0x30
	MsgPicture uint64 = 0x31
	MsgAudio   uint64 = 0x32
)

// Version is the protocol version carried in Hello and Welcome.
const Version uint64 = 1

// ALPN is the TLS application protocol negotiated by monitor connections.
const ALPN = "reel-monitor"

// MaxMessageSize bounds a single message payload.
const MaxMessageSize = 8 << 20

// Reject codes.
const (
	RejectVersion   uint64 = 1
	RejectDuplicate uint64 = 2
	RejectBadHello  uint64 = 3
)

// Track kinds carried in Config.
const (
	TrackVideo byte = 1
	TrackAudio byte = 2
)

const flagKeyframe byte = 0x01

// Hello is the first message a player sends.
type Hello struct {
	Versions []uint64
	RunID    string
	Source   string
	Width    uint64
	Height   uint64
}

// Welcome accepts a Hello.
type Welcome struct {
	Version   uint64
	SessionID string
}

// Reject refuses a Hello. The monitor closes the connection after it.
type Reject struct {
	Code   uint64
	Reason string
}

// GoAway ends a session gracefully.
type GoAway struct {
	Reason string
}

// Config describes a track. For video Record is an AVC or HEVC decoder
// configuration record; for audio it is empty.
type Config struct {
	Track      byte
	Codec      string
	Record     []byte
	SampleRate uint64
	Channels   uint64
}

// Picture is one presented picture. Payload holds the access unit with
// 4-byte length-prefixed NAL units.
type Picture struct {
	Sequence uint64
	PTS      int64
	Keyframe bool
	Width    uint64
	Height   uint64
	Captions []string
	Payload  []byte
}

// Audio is one played audio frame. Payload is raw AAC without ADTS header.
type Audio struct {
	Sequence uint64
	PTS      int64
	Samples  uint64
	Payload  []byte
}

// ReadMsg reads one message.
// Wire format: [message_type (varint)] [payload_length (varint)] [payload].
func ReadMsg(r io.Reader) (uint64, []byte, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReader(r)
		r = br.(io.Reader)
	}
	msgType, err := quicvarint.Read(br)
	if err != nil {
		return 0, nil, fmt.Errorf("read message type: %w", err)
	}
	length, err := quicvarint.Read(br)
	if err != nil {
		return 0, nil, fmt.Errorf("read message length: %w", err)
	}
	if length > MaxMessageSize {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, length)
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, fmt.Errorf("read message payload: %w", err)
		}
	}
	return msgType, payload, nil
}

// WriteMsg writes one message as a single Write call.
func WriteMsg(w io.Writer, msgType uint64, payload []byte) error {
	if len(payload) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(payload))
	}
	buf := make([]byte, 0, 16+len(payload))
	buf = quicvarint.Append(buf, msgType)
	buf = quicvarint.Append(buf, uint64(len(payload)))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

// SerializeHello serializes a HELLO payload.
func SerializeHello(h Hello) []byte {
	var buf []byte
	buf = quicvarint.Append(buf, uint64(len(h.Versions)))
	for _, v := range h.Versions {
		buf = quicvarint.Append(buf, v)
	}
	buf = appendVarIntBytes(buf, []byte(h.RunID))
	buf = appendVarIntBytes(buf, []byte(h.Source))
	buf = quicvarint.Append(buf, h.Width)
	buf = quicvarint.Append(buf, h.Height)
	return buf
}

// ParseHello parses a HELLO payload.
func ParseHello(data []byte) (Hello, error) {
	r := newBufReader(data)
	var h Hello

	n, err := r.readVarint()
	if err != nil {
		return h, &ParseError{Field: "num_versions", Err: err}
	}
	if n > uint64(r.remaining()) {
		return h, &ParseError{Field: "num_versions", Err: io.ErrUnexpectedEOF}
	}
	h.Versions = make([]uint64, n)
	for i := range h.Versions {
		if h.Versions[i], err = r.readVarint(); err != nil {
			return h, &ParseError{Field: "version", Err: err}
		}
	}
	runID, err := r.readVarIntBytes()
	if err != nil {
		return h, &ParseError{Field: "run_id", Err: err}
	}
	h.RunID = string(runID)
	source, err := r.readVarIntBytes()
	if err != nil {
		return h, &ParseError{Field: "source", Err: err}
	}
	h.Source = string(source)
	if h.Width, err = r.readVarint(); err != nil {
		return h, &ParseError{Field: "width", Err: err}
	}
	if h.Height, err = r.readVarint(); err != nil {
		return h, &ParseError{Field: "height", Err: err}
	}
	return h, nil
}

// SerializeWelcome serializes a WELCOME payload.
func SerializeWelcome(w Welcome) []byte {
	buf := quicvarint.Append(nil, w.Version)
	return appendVarIntBytes(buf, []byte(w.SessionID))
}

// ParseWelcome parses a WELCOME payload.
func ParseWelcome(data []byte) (Welcome, error) {
	r := newBufReader(data)
	var w Welcome
	var err error
	if w.Version, err = r.readVarint(); err != nil {
		return w, &ParseError{Field: "version", Err: err}
	}
	id, err := r.readVarIntBytes()
	if err != nil {
		return w, &ParseError{Field: "session_id", Err: err}
	}
	w.SessionID = string(id)
	return w, nil
}

// SerializeReject serializes a REJECT payload.
func SerializeReject(rj Reject) []byte {
	buf := quicvarint.Append(nil, rj.Code)
	return appendVarIntBytes(buf, []byte(rj.Reason))
}

// ParseReject parses a REJECT payload.
func ParseReject(data []byte) (Reject, error) {
	r := newBufReader(data)
	var rj Reject
	var err error
	if rj.Code, err = r.readVarint(); err != nil {
		return rj, &ParseError{Field: "code", Err: err}
	}
	reason, err := r.readVarIntBytes()
	if err != nil {
		return rj, &ParseError{Field: "reason", Err: err}
	}
	rj.Reason = string(reason)
	return rj, nil
}

// SerializeGoAway serializes a GOAWAY payload.
func SerializeGoAway(ga GoAway) []byte {
	return appendVarIntBytes(nil, []byte(ga.Reason))
}

// ParseGoAway parses a GOAWAY payload.
func ParseGoAway(data []byte) (GoAway, error) {
	reason, err := newBufReader(data).readVarIntBytes()
	if err != nil {
		return GoAway{}, &ParseError{Field: "reason", Err: err}
	}
	return GoAway{Reason: string(reason)}, nil
}

// SerializeConfig serializes a CONFIG payload.
func SerializeConfig(c Config) []byte {
	buf := []byte{c.Track}
	buf = appendVarIntBytes(buf, []byte(c.Codec))
	buf = appendVarIntBytes(buf, c.Record)
	buf = quicvarint.Append(buf, c.SampleRate)
	buf = quicvarint.Append(buf, c.Channels)
	return buf
}

// ParseConfig parses a CONFIG payload.
func ParseConfig(data []byte) (Config, error) {
	r := newBufReader(data)
	var c Config
	var err error
	if c.Track, err = r.readByte(); err != nil {
		return c, &ParseError{Field: "track", Err: err}
	}
	codec, err := r.readVarIntBytes()
	if err != nil {
		return c, &ParseError{Field: "codec", Err: err}
	}
	c.Codec = string(codec)
	if c.Record, err = r.readVarIntBytes(); err != nil {
		return c, &ParseError{Field: "record", Err: err}
	}
	if c.SampleRate, err = r.readVarint(); err != nil {
		return c, &ParseError{Field: "sample_rate", Err: err}
	}
	if c.Channels, err = r.readVarint(); err != nil {
		return c, &ParseError{Field: "channels", Err: err}
	}
	return c, nil
}

// SerializePicture serializes a PICTURE payload. PTS is written as a fixed
// 8-byte signed value so that a missing timestamp survives the trip.
func SerializePicture(p Picture) []byte {
	buf := make([]byte, 0, 32+len(p.Payload))
	buf = quicvarint.Append(buf, p.Sequence)
	buf = binary.BigEndian.AppendUint64(buf, uint64(p.PTS))
	var flags byte
	if p.Keyframe {
		flags |= flagKeyframe
	}
	buf = append(buf, flags)
	buf = quicvarint.Append(buf, p.Width)
	buf = quicvarint.Append(buf, p.Height)
	buf = quicvarint.Append(buf, uint64(len(p.Captions)))
	for _, c := range p.Captions {
		buf = appendVarIntBytes(buf, []byte(c))
	}
	return appendVarIntBytes(buf, p.Payload)
}

// ParsePicture parses a PICTURE payload.
func ParsePicture(data []byte) (Picture, error) {
	r := newBufReader(data)
	var p Picture
	var err error
	if p.Sequence, err = r.readVarint(); err != nil {
		return p, &ParseError{Field: "sequence", Err: err}
	}
	if p.PTS, err = r.readInt64(); err != nil {
		return p, &ParseError{Field: "pts", Err: err}
	}
	flags, err := r.readByte()
	if err != nil {
		return p, &ParseError{Field: "flags", Err: err}
	}
	p.Keyframe = flags&flagKeyframe != 0
	if p.Width, err = r.readVarint(); err != nil {
		return p, &ParseError{Field: "width", Err: err}
	}
	if p.Height, err = r.readVarint(); err != nil {
		return p, &ParseError{Field: "height", Err: err}
	}
	n, err := r.readVarint()
	if err != nil {
		return p, &ParseError{Field: "num_captions", Err: err}
	}
	if n > uint64(r.remaining()) {
		return p, &ParseError{Field: "num_captions", Err: io.ErrUnexpectedEOF}
	}
	for i := uint64(0); i < n; i++ {
		c, err := r.readVarIntBytes()
		if err != nil {
			return p, &ParseError{Field: "caption", Err: err}
		}
		p.Captions = append(p.Captions, string(c))
	}
	if p.Payload, err = r.readVarIntBytes(); err != nil {
		return p, &ParseError{Field: "payload", Err: err}
	}
	return p, nil
}

// SerializeAudio serializes an AUDIO payload.
func SerializeAudio(a Audio) []byte {
	buf := make([]byte, 0, 24+len(a.Payload))
	buf = quicvarint.Append(buf, a.Sequence)
	buf = binary.BigEndian.AppendUint64(buf, uint64(a.PTS))
	buf = quicvarint.Append(buf, a.Samples)
	return appendVarIntBytes(buf, a.Payload)
}

// ParseAudio parses an AUDIO payload.
func ParseAudio(data []byte) (Audio, error) {
	r := newBufReader(data)
	var a Audio
	var err error
	if a.Sequence, err = r.readVarint(); err != nil {
		return a, &ParseError{Field: "sequence", Err: err}
	}
	if a.PTS, err = r.readInt64(); err != nil {
		return a, &ParseError{Field: "pts", Err: err}
	}
	if a.Samples, err = r.readVarint(); err != nil {
		return a, &ParseError{Field: "samples", Err: err}
	}
	if a.Payload, err = r.readVarIntBytes(); err != nil {
		return a, &ParseError{Field: "payload", Err: err}
	}
	return a, nil
}

// appendVarIntBytes appends a varint-length-prefixed byte string to buf.
func appendVarIntBytes(buf []byte, data []byte) []byte {
	buf = quicvarint.Append(buf, uint64(len(data)))
	return append(buf, data...)
}

// bufReader wraps a byte slice for sequential varint/byte reading.
type bufReader struct {
	data []byte
	pos  int
}

func newBufReader(data []byte) *bufReader {
	return &bufReader{data: data}
}

func (b *bufReader) remaining() int { return len(b.data) - b.pos }

func (b *bufReader) readVarint() (uint64, error) {
	if b.pos >= len(b.data) {
		return 0, io.ErrUnexpectedEOF
	}
	val, n, err := quicvarint.Parse(b.data[b.pos:])
	if err != nil {
		return 0, err
	}
	b.pos += n
	return val, nil
}

func (b *bufReader) readByte() (byte, error) {
	if b.pos >= len(b.data) {
		return 0, io.ErrUnexpectedEOF
	}
	v := b.data[b.pos]
	b.pos++
	return v, nil
}

func (b *bufReader) readInt64() (int64, error) {
	if b.remaining() < 8 {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.BigEndian.Uint64(b.data[b.pos:])
	b.pos += 8
	return int64(v), nil
}

func (b *bufReader) readVarIntBytes() ([]byte, error) {
	length, err := b.readVarint()
	if err != nil {
		return nil, err
	}
	if length > uint64(b.remaining()) {
		return nil, io.ErrUnexpectedEOF
	}
	end := b.pos + int(length)
	val := b.data[b.pos:end]
	b.pos = end
	return val, nil
}
