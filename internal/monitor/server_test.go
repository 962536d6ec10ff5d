package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/reel/internal/certs"
	"github.com/zsiec/reel/internal/demux"
	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/present"
	"github.com/zsiec/reel/internal/synth"
)

type recordingHandler struct {
	mu       sync.Mutex
	configs  []Config
	pictures []Picture
	audio    []Audio
}

func (h *recordingHandler) Config(_ *Session, c Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.configs = append(h.configs, c)
}

func (h *recordingHandler) Picture(_ *Session, p Picture) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pictures = append(h.pictures, p)
}

func (h *recordingHandler) Audio(_ *Session, a Audio) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.audio = append(h.audio, a)
}

func (h *recordingHandler) counts() (configs, pictures, audio int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.configs), len(h.pictures), len(h.audio)
}

func startServer(t *testing.T, h Handler) (*Server, *certs.CertInfo) {
	t.Helper()
	cert, err := certs.Generate(time.Hour)
	require.NoError(t, err)

	srv := NewServer("127.0.0.1:0", cert, WithHandler(h))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	select {
	case <-srv.Ready():
	case err := <-done:
		t.Fatalf("server failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server not ready")
	}
	return srv, cert
}

func testPicture() *present.Picture {
	sps, pps := synth.SPS(320, 240, 30), synth.PPS()
	idr := synth.Slice(true, 0, 0, 64)
	return &present.Picture{
		Width:    320,
		Height:   240,
		PTS:      3000,
		Sequence: 1,
		Keyframe: true,
		Captions: []string{"HELLO"},
		Frame: &media.Frame{
			Type: media.Video,
			PTS:  3000,
			Video: &media.VideoFrame{
				Width: 320, Height: 240, Codec: "h264", Keyframe: true,
				NALUs: [][]byte{sps, pps, idr},
				SPS:   sps,
				PPS:   pps,
			},
		},
	}
}

func testAudioFrame() *media.Frame {
	payload := make([]byte, 32)
	return &media.Frame{
		Type:     media.Audio,
		PTS:      4000,
		Sequence: 2,
		Audio: &media.AudioFrame{
			SampleRate: 48000,
			Channels:   2,
			Samples:    1024,
			Data:       append(demux.ADTSHeader(1, 48000, 2, len(payload)), payload...),
		},
	}
}

func TestServerSinkSession(t *testing.T) {
	t.Parallel()
	h := &recordingHandler{}
	srv, cert := startServer(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sink, err := Dial(ctx, srv.Addr().String(), cert.Fingerprint, Hello{RunID: "run-1", Source: "test"}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, sink.SessionID())

	require.Eventually(t, func() bool {
		_, ok := srv.Registry().Get("run-1")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sink.Picture(testPicture()))
	require.NoError(t, sink.Picture(testPicture()), "same config is not resent")
	require.NoError(t, sink.Audio(testAudioFrame()))
	require.NoError(t, sink.Audio(&media.Frame{Type: media.Audio}), "frame without audio is ignored")

	pictures, audio := sink.Sent()
	assert.Equal(t, int64(2), pictures)
	assert.Equal(t, int64(1), audio)

	require.Eventually(t, func() bool {
		c, p, a := h.counts()
		return c == 2 && p == 2 && a == 1
	}, 2*time.Second, 10*time.Millisecond)

	h.mu.Lock()
	assert.Equal(t, TrackVideo, h.configs[0].Track)
	assert.NotEmpty(t, h.configs[0].Record)
	assert.Equal(t, TrackAudio, h.configs[1].Track)
	assert.Equal(t, []string{"HELLO"}, h.pictures[0].Captions)
	assert.Equal(t, int64(3000), h.pictures[0].PTS)
	assert.True(t, h.pictures[0].Keyframe)
	assert.Len(t, h.audio[0].Payload, 32, "ADTS header stripped")
	h.mu.Unlock()

	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close(), "Close is idempotent")

	require.Eventually(t, func() bool {
		return len(srv.Registry().List()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServerRejectsDuplicateRun(t *testing.T) {
	t.Parallel()
	srv, cert := startServer(t, &recordingHandler{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	first, err := Dial(ctx, srv.Addr().String(), cert.Fingerprint, Hello{RunID: "dup"}, nil)
	require.NoError(t, err)
	defer first.Close()

	_, err = Dial(ctx, srv.Addr().String(), cert.Fingerprint, Hello{RunID: "dup"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRejected), "got %v", err)
}

func TestServerRejectsUnknownVersion(t *testing.T) {
	t.Parallel()
	srv, cert := startServer(t, &recordingHandler{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := Dial(ctx, srv.Addr().String(), cert.Fingerprint, Hello{RunID: "old", Versions: []uint64{99}}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestDialRejectsWrongFingerprint(t *testing.T) {
	t.Parallel()
	srv, _ := startServer(t, &recordingHandler{})
	other, err := certs.Generate(time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = Dial(ctx, srv.Addr().String(), other.Fingerprint, Hello{RunID: "x"}, nil)
	require.Error(t, err)
	assert.Empty(t, srv.Registry().List())
}
