package synth

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zsiec/ccx"

	"github.com/zsiec/reel/internal/demux"
	"github.com/zsiec/reel/internal/media"
)

func TestSPSRoundTrip(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct{ w, h, fps int }{
		{320, 240, 25},
		{1280, 720, 30},
		{1920, 1080, 50},
		{176, 144, 0},
	} {
		info, err := demux.ParseSPS(SPS(tc.w, tc.h, tc.fps))
		require.NoError(t, err)
		assert.Equal(t, tc.w, info.Width)
		assert.Equal(t, tc.h, info.Height)
		assert.InDelta(t, float64(tc.fps), info.FrameRate, 0.001)
		assert.Equal(t, "avc1.42C01E", info.CodecString())
	}
}

func TestSliceNALTypes(t *testing.T) {
	t.Parallel()

	nalus := demux.ParseAnnexB(demux.JoinAnnexB(SPS(320, 240, 25), PPS(), Slice(true, 0, 0, 32), Slice(false, 1, 0, 32)))
	require.Len(t, nalus, 4)
	assert.Equal(t, byte(demux.NALSPS), nalus[0].Type)
	assert.Equal(t, byte(demux.NALPPS), nalus[1].Type)
	assert.Equal(t, byte(demux.NALSliceIDR), nalus[2].Type)
	assert.Equal(t, byte(demux.NALSlice), nalus[3].Type)
}

func TestAddParity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, byte(0x94), addParity(0x14)) // two bits set
	assert.Equal(t, byte(0x25), addParity(0x25)) // three bits set
	assert.Equal(t, byte(0x80), addParity(0x00))
}

func TestCaptionSEICarriesPairs(t *testing.T) {
	t.Parallel()

	pairs := CaptionPairs("HI")
	require.Len(t, pairs, 7)

	cd := ccx.ExtractCaptions(CaptionSEI(pairs...))
	require.NotNil(t, cd)
	assert.Len(t, cd.CC608Pairs, len(pairs))
}

func TestNormalize608(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []byte("A B"), normalize608("A\nB"))
	assert.Equal(t, []byte("caf?"), normalize608("café"))
	assert.Len(t, normalize608(string(bytes.Repeat([]byte("x"), 40))), 32)
}

func TestGenerateDemuxes(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Frames = 30
	cfg.GOP = 10

	var buf bytes.Buffer
	sum, err := Generate(context.Background(), &buf, cfg)
	require.NoError(t, err)
	assert.Equal(t, 30, sum.VideoFrames)
	assert.Greater(t, sum.AudioFrames, 0)
	assert.Equal(t, int64(buf.Len()), sum.Bytes)

	d, err := demux.Open(context.Background(), bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	streams := d.Streams()
	require.Len(t, streams, 2)
	assert.Equal(t, media.Video, streams[0].Type)
	assert.Equal(t, media.Audio, streams[1].Type)

	var video, audio, keyframes int
	var lastPTS int64 = -1
	for {
		p, err := d.ReadPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if p.StreamIndex == 0 {
			video++
			if p.Keyframe {
				keyframes++
			}
			assert.Greater(t, p.PTS, lastPTS)
			lastPTS = p.PTS
		} else {
			audio++
		}
	}
	assert.Equal(t, 30, video)
	assert.Equal(t, sum.AudioFrames, audio)
	assert.Equal(t, 3, keyframes)
}

func TestGenerateValidates(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.SampleRate = 12345
	_, err := Generate(context.Background(), io.Discard, cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.FPS = 0
	_, err = Generate(context.Background(), io.Discard, cfg)
	assert.Error(t, err)
}

func TestGenerateCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Generate(ctx, io.Discard, DefaultConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfigDuration(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "2s", DefaultConfig().Duration().String())
}
