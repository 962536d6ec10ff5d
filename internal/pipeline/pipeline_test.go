package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/reel/internal/codec"
	"github.com/zsiec/reel/internal/demux"
	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/synth"
)

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	return cfg
}

// consume reads every frame of the run: audio on a blocking reader, video
// by polling, until the run is done and the queues are empty.
func consume(t *testing.T, p *Pipeline) (video, audio []*media.Frame) {
	t.Helper()
	var wg sync.WaitGroup
	if aq := p.Frames(media.Audio); aq != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				f, ok := aq.Read()
				if !ok {
					return
				}
				audio = append(audio, f)
			}
		}()
	}

	vq := p.Frames(media.Video)
	deadline := time.After(5 * time.Second)
	for vq != nil {
		if f, ok := vq.Read(); ok {
			video = append(video, f)
			continue
		}
		select {
		case <-p.Done():
			if vq.Len() == 0 {
				vq = nil
			}
		case <-deadline:
			t.Fatal("run did not finish")
		default:
			vq.Await(5 * time.Millisecond)
		}
	}
	wg.Wait()
	return video, audio
}

func TestSelectStreams(t *testing.T) {
	t.Parallel()

	streams := []media.StreamInfo{
		{Index: 0, Type: media.Audio, Codec: "mp3"},
		{Index: 1, Type: media.Video, Codec: "h264"},
		{Index: 2, Type: media.Audio, Codec: "aac"},
		{Index: 3, Type: media.Video, Codec: "h265"},
	}
	sel := SelectStreams(streams, []media.Type{media.Video, media.Audio, media.Video}, codec.Supported)
	require.Len(t, sel, 2)
	assert.Equal(t, 1, sel[0].Index)
	assert.Equal(t, 2, sel[1].Index)

	_, ok := BestStream(streams, media.Unknown, codec.Supported)
	assert.False(t, ok)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultConfig().Validate())

	for name, mutate := range map[string]func(*Config){
		"capacity": func(c *Config) { c.QueueCapacity = 0 },
		"poll":     func(c *Config) { c.PollInterval = 0 },
		"timeout":  func(c *Config) { c.ShutdownTimeout = -1 },
		"policy":   func(c *Config) { c.ErrorPolicy = "retry" },
		"types":    func(c *Config) { c.Types = nil },
		"depth":    func(c *Config) { c.ReorderDepth = -1 },
	} {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}

	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyAbort, p)
}

func TestNewInitErrors(t *testing.T) {
	t.Parallel()

	_, err := New(&sliceSource{streams: []media.StreamInfo{{Index: 0, Type: media.Unknown}}}, testConfig(), WithLogger(quietLog))
	var ie *InitError
	require.ErrorAs(t, err, &ie)
	assert.ErrorIs(t, err, ErrNoStreams)

	f := &echoFactory{failOn: "aac"}
	_, err = New(&sliceSource{streams: testStreams}, testConfig(), WithLogger(quietLog), WithDecoderFactory(f.open))
	require.ErrorAs(t, err, &ie)
	assert.Contains(t, ie.Op, "aac")
	require.Len(t, f.opened, 1)
	assert.True(t, f.opened[0].closed.Load(), "decoders opened before the failure are closed")

	cfg := testConfig()
	cfg.QueueCapacity = 0
	_, err = New(&sliceSource{streams: testStreams}, cfg)
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "config", ie.Op)
}

func TestPipelineRunsToEnd(t *testing.T) {
	t.Parallel()

	src := &sliceSource{streams: testStreams}
	for i := 0; i < 60; i++ {
		src.packets = append(src.packets, &media.Packet{StreamIndex: i % 3, PTS: int64(i), Data: []byte{1}, Sequence: uint64(i + 1)})
	}
	cfg := testConfig()
	cfg.QueueCapacity = 4
	f := &echoFactory{depth: 2}
	hooks := newRecordingHooks()

	p, err := New(src, cfg, WithLogger(quietLog), WithDecoderFactory(f.open), WithHooks(hooks))
	require.NoError(t, err)
	require.Len(t, p.Selection(), 2)
	assert.NotEmpty(t, p.RunID())
	assert.Nil(t, p.Frames(media.Unknown))

	require.NoError(t, p.Start(context.Background()))
	assert.Error(t, p.Start(context.Background()), "second start")

	video, audio := consume(t, p)
	require.NoError(t, p.Wait())
	assert.Len(t, video, 20)
	assert.Len(t, audio, 20)
	for i := 1; i < len(video); i++ {
		assert.Less(t, video[i-1].Sequence, video[i].Sequence)
	}
	for _, st := range p.Stats() {
		assert.Equal(t, StageStopped, st.State, st.Name)
	}
	assert.Equal(t, int64(40), hooks.decoded.Load())
	require.NoError(t, p.Stop())
}

func TestPipelineSyntheticStream(t *testing.T) {
	t.Parallel()

	cfg := synth.DefaultConfig()
	cfg.Frames = 40
	var buf bytes.Buffer
	sum, err := synth.Generate(context.Background(), &buf, cfg)
	require.NoError(t, err)

	d, err := demux.Open(context.Background(), bytes.NewReader(buf.Bytes()), demux.WithLogger(quietLog))
	require.NoError(t, err)

	p, err := New(d, testConfig(), WithLogger(quietLog))
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	video, audio := consume(t, p)
	require.NoError(t, p.Wait())
	assert.Len(t, video, sum.VideoFrames)
	assert.Len(t, audio, sum.AudioFrames)
	for i := 1; i < len(video); i++ {
		assert.Greater(t, video[i].PTS, video[i-1].PTS)
	}
	assert.Equal(t, 320, video[0].Video.Width)
}

func TestPipelineImmediateStop(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	_, err := synth.Generate(context.Background(), &buf, synth.DefaultConfig())
	require.NoError(t, err)
	d, err := demux.Open(context.Background(), bytes.NewReader(buf.Bytes()), demux.WithLogger(quietLog))
	require.NoError(t, err)

	p, err := New(d, testConfig(), WithLogger(quietLog))
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	start := time.Now()
	require.NoError(t, p.Stop())
	assert.Less(t, time.Since(start), 2*time.Second)
	select {
	case <-p.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
	require.NoError(t, p.Stop(), "Stop is idempotent")
}

func TestPipelineStopWithoutConsumer(t *testing.T) {
	t.Parallel()

	src := newEndlessSource()
	cfg := testConfig()
	cfg.QueueCapacity = 2
	f := &echoFactory{}
	hooks := newRecordingHooks()
	p, err := New(src, cfg, WithLogger(quietLog), WithDecoderFactory(f.open), WithHooks(hooks))
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	// Nobody reads frames: every queue fills up and every stage blocks.
	require.Eventually(t, func() bool {
		return p.Frames(media.Video).Len() == 2 && p.Frames(media.Audio).Len() == 2
	}, 2*time.Second, 5*time.Millisecond)

	start := time.Now()
	require.NoError(t, p.Stop())
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.NoError(t, p.Err())
	for _, d := range f.opened {
		assert.True(t, d.closed.Load())
	}
	assert.Contains(t, hooks.stateLog("demux"), StageStopped)
}

func TestPipelineContextCancel(t *testing.T) {
	t.Parallel()

	p, err := New(newEndlessSource(), testConfig(), WithLogger(quietLog), WithDecoderFactory((&echoFactory{}).open))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))
	cancel()

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context cancellation did not stop the run")
	}
	assert.NoError(t, p.Err())
}

func TestPipelineDecodeErrorAborts(t *testing.T) {
	t.Parallel()

	src := &sliceSource{streams: testStreams, packets: packets(0, 10)}
	src.packets[4].Data = []byte{0xFF}
	p, err := New(src, testConfig(), WithLogger(quietLog), WithDecoderFactory((&echoFactory{}).open))
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	consume(t, p)
	err = p.Wait()
	var de *codec.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, uint64(5), de.Sequence)
	assert.True(t, src.closed.Load(), "a failed run closes the source")
}

func TestPipelineSourceError(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	src := &sliceSource{streams: testStreams, packets: packets(1, 3), err: boom}
	p, err := New(src, testConfig(), WithLogger(quietLog), WithDecoderFactory((&echoFactory{}).open))
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	consume(t, p)
	assert.ErrorIs(t, p.Wait(), boom)
}

func TestPipelineShutdownTimeout(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	defer close(block)

	cfg := testConfig()
	cfg.ShutdownTimeout = 100 * time.Millisecond
	cfg.Types = []media.Type{media.Video}
	src := &sliceSource{streams: testStreams, packets: packets(0, 3)}
	p, err := New(src, cfg, WithLogger(quietLog), WithDecoderFactory((&echoFactory{block: block}).open))
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	require.Eventually(t, func() bool {
		return p.Stats()[1].Packets == 1
	}, time.Second, 5*time.Millisecond)

	err = p.Stop()
	var te *ShutdownTimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, []string{"decode-video"}, te.Stages)
	assert.Equal(t, cfg.ShutdownTimeout, te.Budget)
}

func TestStopBeforeStart(t *testing.T) {
	t.Parallel()

	f := &echoFactory{}
	p, err := New(&sliceSource{streams: testStreams}, testConfig(), WithLogger(quietLog), WithDecoderFactory(f.open))
	require.NoError(t, err)
	require.NoError(t, p.Stop())
	<-p.Done()
	assert.Error(t, p.Start(context.Background()))
	for _, d := range f.opened {
		assert.True(t, d.closed.Load())
	}
}
