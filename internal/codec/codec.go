// Package codec holds the decoders that turn media packets into frames.
//
// A Decoder follows the send/receive model: SendPacket feeds one packet,
// then ReceiveFrame is called until it returns ErrAgain. After Flush,
// ReceiveFrame hands out every buffered frame and then returns io.EOF.
package codec

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/zsiec/reel/internal/media"
)

var (
	// ErrAgain is returned by ReceiveFrame when the decoder needs more input.
	ErrAgain = errors.New("codec: need more input")
	// ErrUnsupportedCodec is returned by Open for a codec with no decoder.
	ErrUnsupportedCodec = errors.New("codec: unsupported codec")
	// ErrFlushed is returned by SendPacket after Flush.
	ErrFlushed = errors.New("codec: decoder already flushed")
	// ErrMalformed wraps bitstream errors reported through DecodeError.
	ErrMalformed = errors.New("codec: malformed packet")
)

// DecodeError reports a packet the decoder rejected.
type DecodeError struct {
	Stream   int
	Codec    string
	Sequence uint64
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s stream %d packet %d: %v", e.Codec, e.Stream, e.Sequence, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder decodes the packets of one stream.
type Decoder interface {
	SendPacket(p *media.Packet) error
	ReceiveFrame() (*media.Frame, error)
	Flush() error
	Close() error
}

// DefaultReorderDepth is the number of pictures a video decoder holds back
// to put them in presentation order.
const DefaultReorderDepth = 2

// Options configures the decoders built by Open.
type Options struct {
	ReorderDepth int
	Captions     bool
	Logger       *slog.Logger
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{ReorderDepth: DefaultReorderDepth, Captions: true}
}

// Supported reports whether Open can build a decoder for codec.
func Supported(codec string) bool {
	switch codec {
	case "h264", "h265", "aac":
		return true
	}
	return false
}

// Open returns a decoder for the stream.
func Open(info media.StreamInfo, opts Options) (Decoder, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "codec", "stream", info.Index, "codec", info.Codec)
	if opts.ReorderDepth < 0 {
		opts.ReorderDepth = 0
	}

	switch info.Codec {
	case "h264", "h265":
		return newVideoDecoder(info, opts, log), nil
	case "aac":
		return newAudioDecoder(info, log), nil
	}
	return nil, fmt.Errorf("%w: %q on stream %d", ErrUnsupportedCodec, info.Codec, info.Index)
}
