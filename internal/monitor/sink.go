package monitor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/zsiec/reel/internal/certs"
	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/present"
)

// Sink is a present.Sink that forwards everything to a monitor.
type Sink struct {
	conn quic.Connection
	str  quic.Stream
	log  *slog.Logger

	mu         sync.Mutex
	videoConf  []byte
	audioRate  int
	audioChans int

	sessionID string
	pictures  atomic.Int64
	audio     atomic.Int64
	closeOnce sync.Once
	closeErr  error
}

var _ present.Sink = (*Sink)(nil)

// Dial connects to the monitor at addr, accepting only the certificate
// with the given fingerprint, and attaches hello's run. Hello.Versions
// defaults to the current version.
func Dial(ctx context.Context, addr string, fingerprint [32]byte, hello Hello, log *slog.Logger) (*Sink, error) {
	if log == nil {
		log = slog.Default()
	}
	if len(hello.Versions) == 0 {
		hello.Versions = []uint64{Version}
	}

	conn, err := quic.DialAddr(ctx, addr, certs.PinnedClientTLS(fingerprint, ALPN), &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("monitor: dial %s: %w", addr, err)
	}
	str, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(closeProtocol, "")
		return nil, fmt.Errorf("monitor: open stream: %w", err)
	}

	fail := func(err error) (*Sink, error) {
		conn.CloseWithError(closeProtocol, "")
		return nil, err
	}
	if err := WriteMsg(str, MsgHello, SerializeHello(hello)); err != nil {
		return fail(fmt.Errorf("monitor: send hello: %w", err))
	}
	msgType, payload, err := ReadMsg(bufio.NewReader(str))
	if err != nil {
		var appErr *quic.ApplicationError
		if errors.As(err, &appErr) && appErr.ErrorCode == closeRejected {
			return fail(fmt.Errorf("%w: %s", ErrRejected, appErr.ErrorMessage))
		}
		return fail(fmt.Errorf("monitor: read welcome: %w", err))
	}
	switch msgType {
	case MsgWelcome:
	case MsgReject:
		rj, _ := ParseReject(payload)
		return fail(fmt.Errorf("%w: %s (code %d)", ErrRejected, rj.Reason, rj.Code))
	default:
		return fail(fmt.Errorf("%w: %#x instead of welcome", ErrUnexpectedMsg, msgType))
	}
	w, err := ParseWelcome(payload)
	if err != nil {
		return fail(err)
	}
	if w.Version != Version {
		return fail(ErrVersionMismatch)
	}

	log = log.With("component", "monitor-sink", "session", w.SessionID)
	log.Info("attached to monitor", "addr", addr)
	return &Sink{conn: conn, str: str, log: log, sessionID: w.SessionID}, nil
}

// SessionID returns the id the monitor assigned.
func (s *Sink) SessionID() string { return s.sessionID }

// Sent returns the number of pictures and audio frames forwarded.
func (s *Sink) Sent() (pictures, audio int64) {
	return s.pictures.Load(), s.audio.Load()
}

func (s *Sink) Picture(p *present.Picture) error {
	var payload []byte
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Frame != nil && p.Frame.Video != nil {
		v := p.Frame.Video
		if v.Keyframe {
			if c := VideoConfig(v); c.Record != nil && !bytes.Equal(c.Record, s.videoConf) {
				if err := s.write(MsgConfig, SerializeConfig(c)); err != nil {
					return err
				}
				s.videoConf = c.Record
			}
		}
		payload = ToAVC1(v.NALUs)
	}
	err := s.write(MsgPicture, SerializePicture(Picture{
		Sequence: p.Sequence,
		PTS:      p.PTS,
		Keyframe: p.Keyframe,
		Width:    uint64(p.Width),
		Height:   uint64(p.Height),
		Captions: p.Captions,
		Payload:  payload,
	}))
	if err == nil {
		s.pictures.Add(1)
	}
	return err
}

func (s *Sink) Audio(f *media.Frame) error {
	a := f.Audio
	if a == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.SampleRate != s.audioRate || a.Channels != s.audioChans {
		if err := s.write(MsgConfig, SerializeConfig(AudioConfig(a))); err != nil {
			return err
		}
		s.audioRate, s.audioChans = a.SampleRate, a.Channels
	}
	err := s.write(MsgAudio, SerializeAudio(Audio{
		Sequence: f.Sequence,
		PTS:      f.PTS,
		Samples:  uint64(a.Samples),
		Payload:  StripADTS(a.Data),
	}))
	if err == nil {
		s.audio.Add(1)
	}
	return err
}

func (s *Sink) write(msgType uint64, payload []byte) error {
	if err := WriteMsg(s.str, msgType, payload); err != nil {
		return fmt.Errorf("monitor: send %#x: %w", msgType, err)
	}
	return nil
}

// Close says goodbye and closes the connection. It is safe to call more
// than once.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		err := WriteMsg(s.str, MsgGoAway, SerializeGoAway(GoAway{Reason: "run finished"}))
		s.mu.Unlock()
		if err == nil {
			s.str.Close()
			// Let the monitor read the goodbye before the connection goes.
			timer := time.NewTimer(500 * time.Millisecond)
			select {
			case <-s.conn.Context().Done():
			case <-timer.C:
			}
			timer.Stop()
		}
		s.closeErr = s.conn.CloseWithError(closeOK, "")
		p, a := s.Sent()
		s.log.Info("detached from monitor", "pictures", p, "audio_frames", a)
	})
	return s.closeErr
}
