package input

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	srtgo "github.com/zsiec/srtgo"
)

// srtLatencyNs is the SRT receive latency (120ms).
const srtLatencyNs = 120_000_000

const defaultDialTimeout = 10 * time.Second

type srtTarget struct {
	addr     string
	streamID string
	listen   bool
}

// parseSRT reads srt://host:port?streamid=...&mode=listener.
func parseSRT(name string) (srtTarget, error) {
	u, err := url.Parse(name)
	if err != nil {
		return srtTarget{}, fmt.Errorf("input: %w", err)
	}
	if u.Scheme != "srt" || u.Port() == "" {
		return srtTarget{}, fmt.Errorf("input: %q is not srt://host:port", name)
	}
	q := u.Query()
	t := srtTarget{addr: u.Host, streamID: q.Get("streamid")}
	switch mode := q.Get("mode"); mode {
	case "", "caller":
	case "listener":
		t.listen = true
	default:
		return srtTarget{}, fmt.Errorf("input: unknown srt mode %q", mode)
	}
	return t, nil
}

func openSRT(ctx context.Context, name string, timeout time.Duration, log *slog.Logger) (*Stream, error) {
	t, err := parseSRT(name)
	if err != nil {
		return nil, err
	}

	var conn *srtgo.Conn
	if t.listen {
		conn, err = acceptSRT(ctx, t.addr, log)
	} else {
		conn, err = dialSRT(ctx, t, timeout, log)
	}
	if err != nil {
		return nil, err
	}

	s := newStream(name, KindSRT, conn, conn)
	s.SetRemoteAddr(conn.RemoteAddr().String())
	s.stop = context.AfterFunc(ctx, func() { conn.Close() })
	log.Info("srt connected", "remote", conn.RemoteAddr(), "stream_id", conn.StreamID())
	return s, nil
}

// dialSRT connects with a timeout. A dial that finishes after the timeout
// or after ctx is done has its connection closed in the background.
func dialSRT(ctx context.Context, t srtTarget, timeout time.Duration, log *slog.Logger) (*srtgo.Conn, error) {
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs
	if t.streamID != "" {
		cfg.StreamID = t.streamID
	}
	log.Info("dialing", "address", t.addr, "stream_id", t.streamID)

	type dialResult struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := srtgo.Dial(t.addr, cfg)
		ch <- dialResult{conn, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	abandon := func() {
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
	}
	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("input: srt dial %s: %w", t.addr, res.err)
		}
		return res.conn, nil
	case <-timer.C:
		abandon()
		return nil, fmt.Errorf("input: srt dial %s timed out after %s", t.addr, timeout)
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	}
}

// acceptSRT listens on addr and returns the first publisher that presents
// a stream id.
func acceptSRT(ctx context.Context, addr string, log *slog.Logger) (*srtgo.Conn, error) {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs

	l, err := srtgo.Listen(addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("input: srt listen on %s: %w", addr, err)
	}
	defer l.Close()
	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		if req.StreamID == "" {
			return srtgo.RejPeer
		}
		return 0
	})
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	log.Info("waiting for srt publisher", "addr", addr)
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("accept error", "error", err)
			continue
		}
		log.Info("publish", "stream_key", streamKey(conn.StreamID()), "remote", conn.RemoteAddr())
		return conn, nil
	}
}

// streamKey strips the conventional "live/" prefix from an SRT stream id.
func streamKey(streamID string) string {
	streamID = strings.TrimPrefix(streamID, "/")
	streamID = strings.TrimPrefix(streamID, "live/")
	if streamID == "" {
		return "default"
	}
	return streamID
}
