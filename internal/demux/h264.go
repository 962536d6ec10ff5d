package demux

import (
	"errors"
	"fmt"
)

// H.264 NAL unit types (ITU-T H.264 Table 7-1).
const (
	NALSlice    = 1
	NALSliceIDR = 5
	NALSEI      = 6
	NALSPS      = 7
	NALPPS      = 8
	NALAUD      = 9
)

var errSPSTooShort = errors.New("SPS too short")

// IsKeyframe reports whether the H.264 NAL type starts an IDR picture.
func IsKeyframe(nalType byte) bool { return nalType == NALSliceIDR }

// SPSInfo holds the fields of an H.264 sequence parameter set that the
// pipeline needs.
type SPSInfo struct {
	Width           int
	Height          int
	ProfileIDC      byte
	ConstraintFlags byte
	LevelIDC        byte
	FrameRate       float64 // zero when the VUI carries no timing info
}

// CodecString returns the RFC 6381 codec parameter, e.g. "avc1.64001F".
func (s SPSInfo) CodecString() string {
	return fmt.Sprintf("avc1.%02X%02X%02X", s.ProfileIDC, s.ConstraintFlags, s.LevelIDC)
}

// ParseSPS decodes an H.264 SPS NAL unit (header byte included). Parsing
// stops after the VUI timing info.
func ParseSPS(nalu []byte) (SPSInfo, error) {
	if len(nalu) < 4 {
		return SPSInfo{}, errSPSTooShort
	}
	info := SPSInfo{
		ProfileIDC:      nalu[1],
		ConstraintFlags: nalu[2],
		LevelIDC:        nalu[3],
	}
	br := newBitReader(unescapeRBSP(nalu[4:]))

	br.ue() // seq_parameter_set_id
	chromaFormat := uint(1)
	switch info.ProfileIDC {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		chromaFormat = br.ue()
		if chromaFormat == 3 {
			br.skip(1) // separate_colour_plane_flag
		}
		br.ue() // bit_depth_luma_minus8
		br.ue() // bit_depth_chroma_minus8
		br.skip(1)
		if br.flag() { // seq_scaling_matrix_present_flag
			lists := 8
			if chromaFormat == 3 {
				lists = 12
			}
			for i := 0; i < lists; i++ {
				if br.flag() {
					size := 16
					if i >= 6 {
						size = 64
					}
					skipScalingList(br, size)
				}
			}
		}
	}

	br.ue()          // log2_max_frame_num_minus4
	switch br.ue() { // pic_order_cnt_type
	case 0:
		br.ue()
	case 1:
		br.skip(1)
		br.se()
		br.se()
		n := br.ue()
		for i := uint(0); i < n && br.err == nil; i++ {
			br.se()
		}
	}
	br.ue()    // max_num_ref_frames
	br.skip(1) // gaps_in_frame_num_value_allowed_flag

	widthMbs := br.ue() + 1
	heightMapUnits := br.ue() + 1
	frameMbsOnly := br.flag()
	if !frameMbsOnly {
		br.skip(1) // mb_adaptive_frame_field_flag
	}
	br.skip(1) // direct_8x8_inference_flag

	var cropL, cropR, cropT, cropB uint
	if br.flag() {
		cropL, cropR, cropT, cropB = br.ue(), br.ue(), br.ue(), br.ue()
	}
	if br.err != nil {
		return SPSInfo{}, fmt.Errorf("parse SPS: %w", br.err)
	}

	frameHeightFactor := uint(2)
	if frameMbsOnly {
		frameHeightFactor = 1
	}
	cropUnitX, cropUnitY := uint(1), frameHeightFactor
	switch chromaFormat {
	case 1:
		cropUnitX, cropUnitY = 2, 2*frameHeightFactor
	case 2:
		cropUnitX = 2
	}
	info.Width = int(widthMbs*16 - (cropL+cropR)*cropUnitX)
	info.Height = int(heightMapUnits*16*frameHeightFactor - (cropT+cropB)*cropUnitY)

	if br.flag() { // vui_parameters_present_flag
		info.FrameRate = parseVUITiming(br)
	}
	return info, nil
}

func skipScalingList(br *bitReader, size int) {
	last, next := 8, 8
	for j := 0; j < size && br.err == nil; j++ {
		if next != 0 {
			next = (last + br.se() + 256) % 256
		}
		if next != 0 {
			last = next
		}
	}
}

// parseVUITiming reads the VUI up to timing_info and returns the frame rate.
// A truncated VUI yields zero.
func parseVUITiming(br *bitReader) float64 {
	if br.flag() { // aspect_ratio_info_present_flag
		if br.u(8) == 255 { // Extended_SAR
			br.skip(32)
		}
	}
	if br.flag() { // overscan_info_present_flag
		br.skip(1)
	}
	if br.flag() { // video_signal_type_present_flag
		br.skip(4)
		if br.flag() {
			br.skip(24)
		}
	}
	if br.flag() { // chroma_loc_info_present_flag
		br.ue()
		br.ue()
	}
	if !br.flag() { // timing_info_present_flag
		return 0
	}
	units := br.u(32)
	scale := br.u(32)
	if br.err != nil || units == 0 {
		return 0
	}
	return float64(scale) / float64(2*units)
}
