package mpegts

import (
	"bytes"
	"context"
	"testing"
)

func FuzzParsePacket(f *testing.F) {
	f.Add(makePacket(0, 0, true, nil))
	af := makePacket(0x100, 0, false, nil)
	af[3] = 0x30
	af[4] = 0xB7
	f.Add(af)

	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) != PacketSize {
			return
		}
		parsePacket(data) // must not panic
	})
}

func FuzzReader(f *testing.F) {
	f.Add(makePSIPacket(PIDPAT, 0, buildPAT(&PAT{TransportStreamID: 1, Programs: []Program{{1, 0x1000}}})))

	f.Fuzz(func(t *testing.T, data []byte) {
		r := NewReader(context.Background(), bytes.NewReader(data))
		for i := 0; i < 1000; i++ {
			if _, err := r.Next(); err != nil {
				return
			}
		}
	})
}
