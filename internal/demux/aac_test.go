package demux

import (
	"errors"
	"testing"
)

func adtsFrame(sampleRate, channels, payload int) []byte {
	h := ADTSHeader(1, sampleRate, channels, payload)
	return append(h, make([]byte, payload)...)
}

func TestParseADTS(t *testing.T) {
	t.Parallel()
	var data []byte
	data = append(data, 0x00, 0x12) // garbage before the first sync word
	data = append(data, adtsFrame(48000, 2, 20)...)
	data = append(data, adtsFrame(48000, 2, 30)...)

	frames, err := ParseADTS(data)
	if err != nil {
		t.Fatalf("ParseADTS error: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	for i, f := range frames {
		if f.SampleRate != 48000 || f.Channels != 2 {
			t.Errorf("frame %d: %d Hz, %d ch", i, f.SampleRate, f.Channels)
		}
		if f.Samples != 1024 {
			t.Errorf("frame %d: samples %d, want 1024", i, f.Samples)
		}
		if f.Profile != 1 {
			t.Errorf("frame %d: profile %d, want 1", i, f.Profile)
		}
	}
	if len(frames[0].Data) != 27 || len(frames[1].Data) != 37 {
		t.Errorf("frame sizes: %d, %d", len(frames[0].Data), len(frames[1].Data))
	}
}

func TestParseADTSEmpty(t *testing.T) {
	t.Parallel()
	frames, err := ParseADTS(nil)
	if err != nil || len(frames) != 0 {
		t.Errorf("got %d frames, err %v", len(frames), err)
	}
}

func TestParseADTSTruncated(t *testing.T) {
	t.Parallel()
	data := adtsFrame(44100, 1, 40)
	frames, err := ParseADTS(data[:20])
	if err != nil || len(frames) != 0 {
		t.Errorf("got %d frames, err %v", len(frames), err)
	}
}

func TestParseADTSReservedRate(t *testing.T) {
	t.Parallel()
	data := adtsFrame(48000, 2, 10)
	data[2] = data[2]&^0x3C | 13<<2
	if _, err := ParseADTS(data); !errors.Is(err, ErrInvalidADTS) {
		t.Errorf("expected ErrInvalidADTS, got %v", err)
	}
}

func TestADTSHeaderUnknownRate(t *testing.T) {
	t.Parallel()
	if h := ADTSHeader(1, 12345, 2, 10); h != nil {
		t.Errorf("expected nil header, got % x", h)
	}
}
