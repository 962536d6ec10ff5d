package monitor

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/zsiec/reel/internal/demux"
	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/synth"
)

func TestToAVC1(t *testing.T) {
	t.Parallel()
	withCode := []byte{0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0xE0}
	short := []byte{0x00, 0x00, 0x01, 0x68, 0xCE}
	raw := []byte{0x65, 0x88, 0x80, 0x40}

	got := ToAVC1([][]byte{withCode, short, raw})
	want := []byte{
		0, 0, 0, 3, 0x67, 0x42, 0xE0,
		0, 0, 0, 2, 0x68, 0xCE,
		0, 0, 0, 4, 0x65, 0x88, 0x80, 0x40,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("ToAVC1 = %x, want %x", got, want)
	}
	if len(ToAVC1(nil)) != 0 {
		t.Error("empty input should give empty output")
	}
}

func TestStripADTS(t *testing.T) {
	t.Parallel()
	payload := []byte{0x21, 0x10, 0x04}
	frame := append(demux.ADTSHeader(1, 48000, 2, len(payload)), payload...)
	if got := StripADTS(frame); !bytes.Equal(got, payload) {
		t.Errorf("StripADTS = %x, want %x", got, payload)
	}

	notADTS := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	if got := StripADTS(notADTS); !bytes.Equal(got, notADTS) {
		t.Error("non-ADTS input should be returned unchanged")
	}
	if got := StripADTS([]byte{0xFF}); len(got) != 1 {
		t.Error("short input should be returned unchanged")
	}
}

func TestBuildAVCDecoderConfig(t *testing.T) {
	t.Parallel()
	sps := synth.SPS(320, 240, 30)
	pps := synth.PPS()

	rec := BuildAVCDecoderConfig(sps, pps)
	if len(rec) != 11+len(sps)+len(pps) {
		t.Fatalf("record length = %d", len(rec))
	}
	if rec[0] != 1 || rec[1] != sps[1] || rec[3] != sps[3] {
		t.Errorf("header = %x", rec[:4])
	}
	if rec[4] != 0xFF || rec[5] != 0xE1 {
		t.Errorf("length size / sps count = %x %x", rec[4], rec[5])
	}
	if n := int(binary.BigEndian.Uint16(rec[6:8])); n != len(sps) {
		t.Errorf("sps length = %d, want %d", n, len(sps))
	}
	if BuildAVCDecoderConfig(sps[:2], pps) != nil {
		t.Error("short SPS should give nil")
	}
	if BuildAVCDecoderConfig(sps, nil) != nil {
		t.Error("missing PPS should give nil")
	}
}

func TestBuildHEVCDecoderConfigRejectsBadSPS(t *testing.T) {
	t.Parallel()
	if BuildHEVCDecoderConfig([]byte{0x40, 0x01}, []byte{0x42, 0x01, 0x00, 0x00}, []byte{0x44, 0x01}) != nil {
		t.Error("unparseable SPS should give nil")
	}
	if BuildHEVCDecoderConfig(nil, nil, nil) != nil {
		t.Error("missing parameter sets should give nil")
	}
}

func TestVideoAndAudioConfig(t *testing.T) {
	t.Parallel()
	v := &media.VideoFrame{Codec: "h264", Profile: "avc1.42C01E", SPS: synth.SPS(320, 240, 30), PPS: synth.PPS()}
	c := VideoConfig(v)
	if c.Track != TrackVideo || c.Codec != "avc1.42C01E" || c.Record == nil {
		t.Errorf("video config = %+v", c)
	}

	if c := VideoConfig(&media.VideoFrame{Codec: "h264"}); c.Codec != "h264" || c.Record != nil {
		t.Errorf("config without parameter sets = %+v", c)
	}

	a := AudioConfig(&media.AudioFrame{SampleRate: 44100, Channels: 1})
	if a.Track != TrackAudio || a.SampleRate != 44100 || a.Channels != 1 {
		t.Errorf("audio config = %+v", a)
	}
}
