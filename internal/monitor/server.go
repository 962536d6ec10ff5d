package monitor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"

	"github.com/zsiec/reel/internal/certs"
)

// Connection close codes.
const (
	closeOK       quic.ApplicationErrorCode = 0
	closeProtocol quic.ApplicationErrorCode = 1
	closeRejected quic.ApplicationErrorCode = 2
	closeShutdown quic.ApplicationErrorCode = 3
)

// Handler receives the media of attached sessions. Calls for one session
// come from one goroutine; different sessions call concurrently.
type Handler interface {
	Config(s *Session, c Config)
	Picture(s *Session, p Picture)
	Audio(s *Session, a Audio)
}

// LogHandler logs captions and track changes.
type LogHandler struct {
	Log *slog.Logger
}

func (h LogHandler) Config(s *Session, c Config) {
	h.Log.Info("track", "run_id", s.RunID, "codec", c.Codec, "record_bytes", len(c.Record),
		"sample_rate", c.SampleRate, "channels", c.Channels)
}

func (h LogHandler) Picture(s *Session, p Picture) {
	for _, text := range p.Captions {
		h.Log.Info("caption", "run_id", s.RunID, "pts", p.PTS, "text", text)
	}
}

func (h LogHandler) Audio(*Session, Audio) {}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server's logger.
func WithServerLogger(log *slog.Logger) ServerOption {
	return func(s *Server) { s.log = log }
}

// WithHandler sets the handler that receives session media.
func WithHandler(h Handler) ServerOption {
	return func(s *Server) { s.handler = h }
}

// Server accepts player connections.
type Server struct {
	addr    string
	cert    *certs.CertInfo
	log     *slog.Logger
	handler Handler
	reg     *Registry

	ready    chan struct{}
	mu       sync.Mutex
	listener *quic.Listener
}

// NewServer returns a server that will listen on addr presenting cert.
func NewServer(addr string, cert *certs.CertInfo, opts ...ServerOption) *Server {
	s := &Server{
		addr:  addr,
		cert:  cert,
		log:   slog.Default(),
		ready: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "monitor")
	if s.handler == nil {
		s.handler = LogHandler{Log: s.log}
	}
	s.reg = NewRegistry(s.log)
	return s
}

// Registry returns the attached sessions.
func (s *Server) Registry() *Registry { return s.reg }

// Ready is closed once the server is listening.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the listening address, or nil before Ready.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run listens and serves until ctx is cancelled. Open sessions are closed
// before Run returns.
func (s *Server) Run(ctx context.Context) error {
	ln, err := quic.ListenAddr(s.addr, s.cert.ServerTLS(ALPN), &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("monitor: listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)
	s.log.Info("monitor listening", "addr", ln.Addr(), "cert_hash", s.cert.FingerprintBase64())

	var wg sync.WaitGroup
	defer wg.Wait()
	defer ln.Close()

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("monitor: accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			stop := context.AfterFunc(ctx, func() { conn.CloseWithError(closeShutdown, "monitor shutting down") })
			defer stop()
			if err := s.serve(ctx, conn); err != nil {
				s.log.Warn("session ended", "remote", conn.RemoteAddr(), "error", err)
			}
		}()
	}
}

func (s *Server) serve(ctx context.Context, conn quic.Connection) error {
	str, err := conn.AcceptStream(ctx)
	if err != nil {
		return fmt.Errorf("accept stream: %w", err)
	}
	br := bufio.NewReader(str)

	msgType, payload, err := ReadMsg(br)
	if err != nil {
		conn.CloseWithError(closeProtocol, "no hello")
		return err
	}
	if msgType != MsgHello {
		conn.CloseWithError(closeProtocol, "expected hello")
		return fmt.Errorf("%w: %#x before hello", ErrUnexpectedMsg, msgType)
	}
	hello, err := ParseHello(payload)
	if err != nil {
		s.reject(conn, str, Reject{Code: RejectBadHello, Reason: err.Error()})
		return err
	}
	if hello.RunID == "" {
		s.reject(conn, str, Reject{Code: RejectBadHello, Reason: "missing run id"})
		return errors.New("monitor: hello without run id")
	}
	if !slices.Contains(hello.Versions, Version) {
		s.reject(conn, str, Reject{Code: RejectVersion, Reason: "unsupported version"})
		return ErrVersionMismatch
	}

	sess, ok := s.reg.Create(uuid.NewString(), hello, conn.RemoteAddr().String())
	if !ok {
		s.reject(conn, str, Reject{Code: RejectDuplicate, Reason: "run already attached"})
		return fmt.Errorf("%w: %s", ErrDuplicateRun, hello.RunID)
	}
	defer s.reg.Remove(hello.RunID)

	if err := WriteMsg(str, MsgWelcome, SerializeWelcome(Welcome{Version: Version, SessionID: sess.ID})); err != nil {
		conn.CloseWithError(closeProtocol, "welcome failed")
		return err
	}

	for {
		msgType, payload, err := ReadMsg(br)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				conn.CloseWithError(closeOK, "")
				return nil
			}
			return err
		}
		switch msgType {
		case MsgConfig:
			c, err := ParseConfig(payload)
			if err != nil {
				conn.CloseWithError(closeProtocol, err.Error())
				return err
			}
			s.handler.Config(sess, c)
		case MsgPicture:
			p, err := ParsePicture(payload)
			if err != nil {
				conn.CloseWithError(closeProtocol, err.Error())
				return err
			}
			sess.recordPicture(p, len(payload))
			s.handler.Picture(sess, p)
		case MsgAudio:
			a, err := ParseAudio(payload)
			if err != nil {
				conn.CloseWithError(closeProtocol, err.Error())
				return err
			}
			sess.recordAudio(len(payload))
			s.handler.Audio(sess, a)
		case MsgGoAway:
			ga, _ := ParseGoAway(payload)
			s.log.Info("player leaving", "run_id", sess.RunID, "reason", ga.Reason)
			conn.CloseWithError(closeOK, "")
			return nil
		default:
			s.log.Debug("ignoring message", "type", msgType, "run_id", sess.RunID)
		}
	}
}

// reject tells the player why it is refused, gives it a moment to read the
// answer and then closes the connection.
func (s *Server) reject(conn quic.Connection, str quic.Stream, rj Reject) {
	s.log.Warn("rejecting player", "remote", conn.RemoteAddr(), "code", rj.Code, "reason", rj.Reason)
	if err := WriteMsg(str, MsgReject, SerializeReject(rj)); err == nil {
		str.Close()
		timer := time.NewTimer(time.Second)
		select {
		case <-conn.Context().Done():
		case <-timer.C:
		}
		timer.Stop()
	}
	conn.CloseWithError(closeRejected, rj.Reason)
}
