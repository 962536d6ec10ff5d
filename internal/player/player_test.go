package player

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/reel/internal/certs"
	"github.com/zsiec/reel/internal/config"
	"github.com/zsiec/reel/internal/events"
	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/metrics"
	"github.com/zsiec/reel/internal/monitor"
	"github.com/zsiec/reel/internal/present"
	"github.com/zsiec/reel/internal/synth"
)

func writeStream(t *testing.T, sc synth.Config) (string, synth.Summary) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.ts")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	sum, err := synth.Generate(context.Background(), f, sc)
	require.NoError(t, err)
	return path, sum
}

func shortStream() synth.Config {
	sc := synth.DefaultConfig()
	sc.Frames = 12
	sc.GOP = 6
	sc.Captions = []string{"HELLO"}
	sc.CaptionPeriod = 4
	return sc
}

func testConfig() config.Config {
	c := config.Default()
	c.Pipeline.PollInterval = config.Duration(10 * time.Millisecond)
	c.Presenter.InitialDelay = config.Duration(time.Millisecond)
	return c
}

type countingSink struct {
	mu       sync.Mutex
	pictures []*present.Picture
	audio    int
	closed   bool
}

func (s *countingSink) Picture(p *present.Picture) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pictures = append(s.pictures, p)
	return nil
}

func (s *countingSink) Audio(*media.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio++
	return nil
}

func (s *countingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestRunPlaysFileToEnd(t *testing.T) {
	t.Parallel()
	path, sum := writeStream(t, shortStream())

	sink := &countingSink{}
	bus := events.New()
	var (
		mu       sync.Mutex
		started  int
		finished []events.RunFinished
	)
	defer events.Subscribe(bus, func(events.RunStarted) { mu.Lock(); started++; mu.Unlock() })()
	defer events.Subscribe(bus, func(ev events.RunFinished) { mu.Lock(); finished = append(finished, ev); mu.Unlock() })()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := Run(ctx, Options{
		Config:  testConfig(),
		Input:   path,
		Sinks:   []present.Sink{sink},
		Metrics: metrics.New(false),
		Bus:     bus,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Len(t, res.Streams, 2)
	assert.Equal(t, int64(sum.VideoFrames), res.Pictures)
	assert.Equal(t, int64(sum.AudioFrames), res.AudioFrames)
	assert.Equal(t, sum.Bytes, res.Input.BytesRead)

	sink.mu.Lock()
	assert.Len(t, sink.pictures, sum.VideoFrames)
	assert.Equal(t, sum.AudioFrames, sink.audio)
	assert.True(t, sink.closed)
	for i := 1; i < len(sink.pictures); i++ {
		assert.Greater(t, sink.pictures[i].PTS, sink.pictures[i-1].PTS, "pictures in presentation order")
	}
	sink.mu.Unlock()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return started == 1 && len(finished) == 1
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Empty(t, finished[0].Error)
	assert.Equal(t, res.RunID, finished[0].Run)
	mu.Unlock()
}

func TestRunVideoOnly(t *testing.T) {
	t.Parallel()
	path, sum := writeStream(t, shortStream())

	cfg := testConfig()
	cfg.Pipeline.Streams = []string{"video"}
	res, err := Run(context.Background(), Options{Config: cfg, Input: path, Metrics: metrics.New(false)})
	require.NoError(t, err)
	assert.Len(t, res.Streams, 1)
	assert.Equal(t, int64(sum.VideoFrames), res.Pictures)
	assert.Zero(t, res.AudioFrames)
}

func TestRunCancel(t *testing.T) {
	t.Parallel()
	sc := shortStream()
	sc.Frames = 250 // ten seconds of presentation
	path, _ := writeStream(t, sc)

	ctx, cancel := context.WithCancel(context.Background())
	sink := &countingSink{}
	done := make(chan error, 1)
	go func() {
		_, err := Run(ctx, Options{Config: testConfig(), Input: path, Sinks: []present.Sink{sink}, Metrics: metrics.New(false)})
		done <- err
	}()

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.pictures) > 0
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	sink.mu.Lock()
	assert.Less(t, len(sink.pictures), sc.Frames)
	assert.True(t, sink.closed)
	sink.mu.Unlock()
}

func TestRunErrors(t *testing.T) {
	t.Parallel()

	_, err := Run(context.Background(), Options{Config: testConfig(), Input: filepath.Join(t.TempDir(), "missing.ts")})
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := testConfig()
	bad.Pipeline.ErrorPolicy = "ignore"
	_, err = Run(context.Background(), Options{Config: bad, Input: "-"})
	assert.Error(t, err)

	notTS := filepath.Join(t.TempDir(), "junk.ts")
	require.NoError(t, os.WriteFile(notTS, []byte("not a transport stream"), 0o644))
	_, err = Run(context.Background(), Options{Config: testConfig(), Input: notTS})
	assert.Error(t, err)

	path, _ := writeStream(t, shortStream())
	noFP := testConfig()
	noFP.Monitor.Fingerprint = ""
	_, err = Run(context.Background(), Options{Config: noFP, Input: path, Monitor: true, Metrics: metrics.New(false)})
	assert.Error(t, err, "monitor without fingerprint")
}

type pictureCounter struct {
	mu       sync.Mutex
	pictures int
	audio    int
}

func (h *pictureCounter) Config(*monitor.Session, monitor.Config) {}

func (h *pictureCounter) Picture(*monitor.Session, monitor.Picture) {
	h.mu.Lock()
	h.pictures++
	h.mu.Unlock()
}

func (h *pictureCounter) Audio(*monitor.Session, monitor.Audio) {
	h.mu.Lock()
	h.audio++
	h.mu.Unlock()
}

func TestRunForwardsToMonitor(t *testing.T) {
	t.Parallel()
	path, sum := writeStream(t, shortStream())

	cert, err := certs.Generate(time.Hour)
	require.NoError(t, err)
	h := &pictureCounter{}
	srv := monitor.NewServer("127.0.0.1:0", cert, monitor.WithHandler(h))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Run(ctx)
	select {
	case <-srv.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("monitor not ready")
	}

	cfg := testConfig()
	cfg.Monitor.Addr = srv.Addr().String()
	cfg.Monitor.Fingerprint = cert.FingerprintBase64()
	_, err = Run(ctx, Options{Config: cfg, Input: path, Monitor: true, Metrics: metrics.New(false)})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.pictures == sum.VideoFrames && h.audio == sum.AudioFrames
	}, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(srv.Registry().List()) == 0 }, 3*time.Second, 10*time.Millisecond)
}
