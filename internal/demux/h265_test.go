package demux

import "testing"

func TestHEVCNALType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		first byte
		want  byte
	}{
		{0x40, HEVCNALVPS},
		{0x42, HEVCNALSPS},
		{0x44, HEVCNALPPS},
		{0x26, HEVCNALIDRWRadl},
		{0x2A, HEVCNALCraNut},
		{0x4E, HEVCNALSEIPrefix},
		{0x02, 1},
	}
	for _, tt := range tests {
		if got := HEVCNALType(tt.first); got != tt.want {
			t.Errorf("HEVCNALType(%#x) = %d, want %d", tt.first, got, tt.want)
		}
	}
}

func TestIsHEVCKeyframe(t *testing.T) {
	t.Parallel()
	for nt := byte(0); nt < 64; nt++ {
		want := nt >= 16 && nt <= 21
		if got := IsHEVCKeyframe(nt); got != want {
			t.Errorf("IsHEVCKeyframe(%d) = %v, want %v", nt, got, want)
		}
	}
}

func TestParseAnnexBHEVC(t *testing.T) {
	t.Parallel()
	data := []byte{
		0x00, 0x00, 0x00, 0x01, 0x40, 0x01, 0x0C,
		0x00, 0x00, 0x00, 0x01, 0x42, 0x01, 0x01,
		0x00, 0x00, 0x00, 0x01, 0x44, 0x01, 0xC1,
		0x00, 0x00, 0x01, 0x26, 0x01, 0xAF,
		0x00, 0x00, 0x01, 0x40, // one byte of header only: dropped
	}

	nalus := ParseAnnexBHEVC(data)
	if len(nalus) != 4 {
		t.Fatalf("expected 4 NAL units, got %d", len(nalus))
	}
	wantTypes := []byte{HEVCNALVPS, HEVCNALSPS, HEVCNALPPS, HEVCNALIDRWRadl}
	for i, want := range wantTypes {
		if nalus[i].Type != want {
			t.Errorf("NALU[%d]: got type %d, want %d", i, nalus[i].Type, want)
		}
	}
}

func TestParseHEVCSPS(t *testing.T) {
	t.Parallel()
	// Main profile, 320x240, level 3.1.
	sps := []byte{
		0x42, 0x01,
		0x01,
		0x01,
		0x40, 0x00, 0x00, 0x00,
		0xB0, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x5D,
		0xA0, 0x0A, 0x08, 0x0F, 0x10,
	}

	info, err := ParseHEVCSPS(sps)
	if err != nil {
		t.Fatalf("ParseHEVCSPS error: %v", err)
	}
	if info.Width != 320 || info.Height != 240 {
		t.Errorf("resolution: got %dx%d, want 320x240", info.Width, info.Height)
	}
	if info.ProfileIDC != 1 || info.TierFlag != 0 || info.LevelIDC != 93 {
		t.Errorf("ptl: profile %d tier %d level %d", info.ProfileIDC, info.TierFlag, info.LevelIDC)
	}
	if got := info.CodecString(); got != "hev1.1.2.L93.B0" {
		t.Errorf("CodecString() = %q", got)
	}
}

func TestHEVCSPSCodecStringHighTier(t *testing.T) {
	t.Parallel()
	info := HEVCSPSInfo{
		ProfileIDC:                2,
		TierFlag:                  1,
		LevelIDC:                  120,
		ProfileCompatibilityFlags: 0x20000000,
	}
	if got := info.CodecString(); got != "hev1.2.4.H120" {
		t.Errorf("CodecString() = %q, want %q", got, "hev1.2.4.H120")
	}
}

func TestParseHEVCSPSTooShort(t *testing.T) {
	t.Parallel()
	if _, err := ParseHEVCSPS([]byte{0x42, 0x01, 0x01}); err == nil {
		t.Error("expected error for too-short HEVC SPS")
	}
	if _, err := ParseHEVCSPS(nil); err == nil {
		t.Error("expected error for nil input")
	}
}
