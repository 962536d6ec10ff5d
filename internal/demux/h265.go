package demux

import (
	"fmt"
	"math/bits"
	"strings"
)

// H.265 NAL unit types (ITU-T H.265 Table 7-1).
const (
	HEVCNALBlaWLP    = 16
	HEVCNALIDRWRadl  = 19
	HEVCNALIDRNlp    = 20
	HEVCNALCraNut    = 21
	HEVCNALVPS       = 32
	HEVCNALSPS       = 33
	HEVCNALPPS       = 34
	HEVCNALAUD       = 35
	HEVCNALSEIPrefix = 39
)

// HEVCNALType extracts the type from the first byte of the 2-byte header.
func HEVCNALType(b byte) byte { return b >> 1 & 0x3F }

// IsHEVCKeyframe reports whether the NAL type is a random access point
// (BLA, IDR or CRA).
func IsHEVCKeyframe(nalType byte) bool {
	return nalType >= HEVCNALBlaWLP && nalType <= HEVCNALCraNut
}

// HEVCSPSInfo holds the fields of an H.265 sequence parameter set.
type HEVCSPSInfo struct {
	Width      int
	Height     int
	ProfileIDC byte
	TierFlag   byte
	LevelIDC   byte

	ProfileCompatibilityFlags uint32
	ConstraintIndicatorFlags  uint64 // 48 bits

	ChromaFormatIdc byte
}

// CodecString returns the RFC 6381 codec parameter, e.g. "hev1.1.6.L93.B0".
func (s HEVCSPSInfo) CodecString() string {
	tier := "L"
	if s.TierFlag == 1 {
		tier = "H"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "hev1.%d.%X.%s%d", s.ProfileIDC, bits.Reverse32(s.ProfileCompatibilityFlags), tier, s.LevelIDC)

	var cb [6]byte
	last := -1
	for i := range cb {
		cb[i] = byte(s.ConstraintIndicatorFlags >> uint((5-i)*8))
		if cb[i] != 0 {
			last = i
		}
	}
	for i := 0; i <= last; i++ {
		fmt.Fprintf(&sb, ".%X", cb[i])
	}
	return sb.String()
}

// ParseHEVCSPS decodes an H.265 SPS NAL unit, 2-byte header included.
func ParseHEVCSPS(nalu []byte) (HEVCSPSInfo, error) {
	if len(nalu) < 4 {
		return HEVCSPSInfo{}, errSPSTooShort
	}
	br := newBitReader(unescapeRBSP(nalu[2:]))

	br.skip(4) // sps_video_parameter_set_id
	maxSubLayersMinus1 := br.u(3)
	br.skip(1) // sps_temporal_id_nesting_flag

	var info HEVCSPSInfo
	br.skip(2) // general_profile_space
	info.TierFlag = byte(br.u(1))
	info.ProfileIDC = byte(br.u(5))
	info.ProfileCompatibilityFlags = uint32(br.u(32))
	info.ConstraintIndicatorFlags = uint64(br.u(48))
	info.LevelIDC = byte(br.u(8))
	skipSubLayers(br, maxSubLayersMinus1)

	br.ue() // sps_seq_parameter_set_id
	chroma := br.ue()
	info.ChromaFormatIdc = byte(chroma)
	if chroma == 3 {
		br.skip(1)
	}
	width, height := br.ue(), br.ue()
	if br.err != nil {
		return HEVCSPSInfo{}, fmt.Errorf("parse HEVC SPS: %w", br.err)
	}
	info.Width, info.Height = int(width), int(height)

	if br.flag() { // conformance_window_flag
		l, r, t, b := br.ue(), br.ue(), br.ue(), br.ue()
		if br.err == nil {
			subW, subH := uint(1), uint(1)
			switch chroma {
			case 1:
				subW, subH = 2, 2
			case 2:
				subW = 2
			}
			info.Width -= int((l + r) * subW)
			info.Height -= int((t + b) * subH)
		}
	}
	return info, nil
}

func skipSubLayers(br *bitReader, n uint) {
	if n == 0 {
		return
	}
	var profile, level [8]bool
	for i := uint(0); i < n; i++ {
		profile[i] = br.flag()
		level[i] = br.flag()
	}
	for i := n; i < 8; i++ {
		br.skip(2)
	}
	for i := uint(0); i < n; i++ {
		if profile[i] {
			br.skip(88)
		}
		if level[i] {
			br.skip(8)
		}
	}
}
