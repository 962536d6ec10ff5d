package demux

import (
	"bytes"
	"testing"
)

func TestParseAnnexB(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		data  []byte
		types []byte
		sizes []int
	}{
		{
			name: "four byte start codes",
			data: []byte{
				0, 0, 0, 1, 0x67, 0x42, 0xE0, 0x1E,
				0, 0, 0, 1, 0x68, 0xCE, 0x38, 0x80,
				0, 0, 0, 1, 0x65, 0x88, 0x84, 0x00, 0xFF, 0xFE,
			},
			types: []byte{NALSPS, NALPPS, NALSliceIDR},
			sizes: []int{4, 4, 6},
		},
		{
			name:  "three byte start codes",
			data:  []byte{0, 0, 1, 0x67, 0x42, 0xE0, 0, 0, 1, 0x65, 0x88, 0x84},
			types: []byte{NALSPS, NALSliceIDR},
			sizes: []int{3, 3},
		},
		{
			// The zero after the SEI belongs to the next 4-byte start code.
			name:  "trailing zero",
			data:  []byte{0, 0, 0, 1, 0x06, 0xAA, 0xBB, 0, 0, 0, 1, 0x41, 0x9A},
			types: []byte{NALSEI, NALSlice},
			sizes: []int{3, 2},
		},
		{
			name: "mixed start codes",
			data: []byte{
				0, 0, 0, 1, 0x09, 0xF0,
				0, 0, 1, 0x06, 0xFF, 0xFE,
				0, 0, 0, 1, 0x65, 0x88,
			},
			types: []byte{NALAUD, NALSEI, NALSliceIDR},
			sizes: []int{2, 3, 2},
		},
		{name: "nil", data: nil},
		{name: "start code only", data: []byte{0, 0, 1}},
		{name: "no start code", data: []byte{0x67, 0x42, 0xE0, 0x1E}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			units := ParseAnnexB(tt.data)
			if len(units) != len(tt.types) {
				t.Fatalf("got %d units, want %d", len(units), len(tt.types))
			}
			for i, u := range units {
				if u.Type != tt.types[i] || len(u.Data) != tt.sizes[i] {
					t.Errorf("unit %d: type %d len %d, want type %d len %d",
						i, u.Type, len(u.Data), tt.types[i], tt.sizes[i])
				}
			}
		})
	}
}

func TestParseAnnexBHEVC(t *testing.T) {
	t.Parallel()
	data := JoinAnnexB(
		[]byte{0x40, 0x01, 0x0C},       // VPS
		[]byte{0x42, 0x01, 0x01},       // SPS
		[]byte{0x44, 0x01, 0xC1},       // PPS
		[]byte{0x26, 0x01, 0xAF, 0x10}, // IDR_W_RADL
		[]byte{0x02},                   // too short for a header
	)
	units := ParseAnnexBHEVC(data)
	want := []byte{HEVCNALVPS, HEVCNALSPS, HEVCNALPPS, HEVCNALIDRWRadl}
	if len(units) != len(want) {
		t.Fatalf("got %d units, want %d", len(units), len(want))
	}
	for i, u := range units {
		if u.Type != want[i] {
			t.Errorf("unit %d: type %d, want %d", i, u.Type, want[i])
		}
	}
	if !IsHEVCKeyframe(units[3].Type) {
		t.Error("IDR_W_RADL not reported as keyframe")
	}
}

func TestKeyframeTypes(t *testing.T) {
	t.Parallel()
	if !IsKeyframe(NALSliceIDR) {
		t.Error("IDR slice not a keyframe")
	}
	for _, typ := range []byte{NALSlice, NALSEI, NALSPS} {
		if IsKeyframe(typ) {
			t.Errorf("type %d reported as keyframe", typ)
		}
	}
}

func TestJoinAnnexB(t *testing.T) {
	t.Parallel()
	sps := []byte{0x67, 0x42, 0xC0, 0x1E}
	idr := []byte{0x65, 0x88, 0x80, 0x10}

	joined := JoinAnnexB(sps, idr)
	if len(joined) != 16 || !bytes.HasPrefix(joined, []byte{0, 0, 0, 1, 0x67}) {
		t.Fatalf("joined % x", joined)
	}
	units := ParseAnnexB(joined)
	if len(units) != 2 || !bytes.Equal(units[0].Data, sps) || !bytes.Equal(units[1].Data, idr) {
		t.Errorf("split back: %+v", units)
	}
}
