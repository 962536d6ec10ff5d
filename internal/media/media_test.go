package media

import "testing"

func TestEndOfStream(t *testing.T) {
	t.Parallel()

	eos := EndOfStream(3)
	if !eos.IsEndOfStream() {
		t.Fatal("EndOfStream packet not recognised")
	}
	if eos.StreamIndex != 3 {
		t.Errorf("StreamIndex: got %d, want 3", eos.StreamIndex)
	}

	cases := []*Packet{
		{Duration: -1, Data: []byte{0}},
		{Duration: 0},
		{Duration: 3000, Data: []byte{1, 2}},
	}
	for i, p := range cases {
		if p.IsEndOfStream() {
			t.Errorf("case %d: regular packet reported as end of stream", i)
		}
	}
}

func TestAudioFrameDuration(t *testing.T) {
	t.Parallel()

	a := &AudioFrame{SampleRate: 48000, Samples: 1024}
	if got, want := a.Duration(), int64(21333); got != want {
		t.Errorf("Duration: got %d, want %d", got, want)
	}
	if got := (&AudioFrame{Samples: 1024}).Duration(); got != 0 {
		t.Errorf("Duration without sample rate: got %d, want 0", got)
	}
}

func TestTypeString(t *testing.T) {
	t.Parallel()

	for typ, want := range map[Type]string{Video: "video", Audio: "audio", Unknown: "unknown"} {
		if got := typ.String(); got != want {
			t.Errorf("%d: got %q, want %q", typ, got, want)
		}
	}
}
