package mpegts

import (
	"bytes"
	"testing"
)

func ts(v int64) *Timestamp {
	t := Timestamp(v)
	return &t
}

func TestPESTimestamps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		pts  int64
	}{
		{"zero", 0},
		{"one_second", 90000},
		{"one_minute", 5400000},
		{"max_33_bit", 8589934591},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			pes, err := parsePES(encodePES(&PES{StreamID: StreamIDAudio, PTS: ts(tc.pts), Data: []byte{0}}))
			if err != nil {
				t.Fatal(err)
			}
			if pes.PTS == nil || int64(*pes.PTS) != tc.pts {
				t.Errorf("PTS: got %v, want %d", pes.PTS, tc.pts)
			}
			if pes.DTS != nil {
				t.Error("DTS should be absent")
			}
		})
	}
}

func TestPESWithDTS(t *testing.T) {
	t.Parallel()

	data := []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0x88}
	pes, err := parsePES(encodePES(&PES{StreamID: StreamIDVideo, PTS: ts(183000), DTS: ts(180000), Data: data}))
	if err != nil {
		t.Fatal(err)
	}
	if pes.StreamID != StreamIDVideo {
		t.Errorf("stream id: got 0x%02X, want 0xE0", pes.StreamID)
	}
	pts, dts, ok := pes.Times()
	if !ok {
		t.Fatal("Times: no PTS")
	}
	if pts != 2_033_333 || dts != 2_000_000 {
		t.Errorf("Times: got pts=%d dts=%d", pts, dts)
	}
	if !bytes.Equal(pes.Data, data) {
		t.Errorf("data: got %x, want %x", pes.Data, data)
	}
}

func TestPESNoTimestamps(t *testing.T) {
	t.Parallel()

	pes, err := parsePES(encodePES(&PES{StreamID: StreamIDAudio, Data: []byte{1, 2}}))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, ok := pes.Times(); ok {
		t.Error("Times should report no PTS")
	}
	if !bytes.Equal(pes.Data, []byte{1, 2}) {
		t.Errorf("data: got %x", pes.Data)
	}
}

func TestPESBoundedLengthIgnoresTrailingBytes(t *testing.T) {
	t.Parallel()

	raw := encodePES(&PES{StreamID: StreamIDAudio, PTS: ts(1), Data: []byte{7, 8}})
	raw = append(raw, 0xFF, 0xFF, 0xFF)
	pes, err := parsePES(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(pes.Data, []byte{7, 8}) {
		t.Errorf("data: got %x, want 0708", pes.Data)
	}
}

func TestPESUnboundedVideo(t *testing.T) {
	t.Parallel()

	raw := encodePES(&PES{StreamID: StreamIDVideo, PTS: ts(1), Data: []byte{1, 2, 3}})
	raw[4], raw[5] = 0, 0
	pes, err := parsePES(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(pes.Data) != 3 {
		t.Errorf("data length: got %d, want 3", len(pes.Data))
	}
}

func TestPESPaddingStream(t *testing.T) {
	t.Parallel()

	raw := []byte{0x00, 0x00, 0x01, 0xBE, 0x00, 0x03, 0xFF, 0xFF, 0xFF}
	pes, err := parsePES(raw)
	if err != nil {
		t.Fatal(err)
	}
	if pes.PTS != nil || len(pes.Data) != 3 {
		t.Errorf("padding stream: got %+v", pes)
	}
}

func TestPESErrors(t *testing.T) {
	t.Parallel()

	if _, err := parsePES([]byte{0x00, 0x00, 0x00, 0xE0, 0x00, 0x00}); err == nil {
		t.Error("expected error for invalid start code")
	}
	if _, err := parsePES([]byte{0x00, 0x00, 0x01}); err == nil {
		t.Error("expected error for short packet")
	}
}

func TestTimestampConversion(t *testing.T) {
	t.Parallel()

	if got := Timestamp(90000).Microseconds(); got != 1_000_000 {
		t.Errorf("Microseconds: got %d, want 1000000", got)
	}
	if got := TimestampFromMicroseconds(40_000); got != 3600 {
		t.Errorf("TimestampFromMicroseconds: got %d, want 3600", got)
	}
}
