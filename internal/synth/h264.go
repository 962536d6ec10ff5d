package synth

// Baseline profile, level 3.0, constraint_set0/1 flags.
const (
	profileBaseline = 66
	constraintFlags = 0xC0
	level30         = 30
)

// SPS returns an H.264 SPS NAL unit for a progressive 4:2:0 picture of the
// given size. Odd dimensions are rounded down to even. A positive fps adds
// VUI timing info.
func SPS(width, height, fps int) []byte {
	width, height = width&^1, height&^1
	wMbs := (width + 15) / 16
	hMbs := (height + 15) / 16

	var w bitWriter
	w.ue(0) // seq_parameter_set_id
	w.ue(0) // log2_max_frame_num_minus4
	w.ue(2) // pic_order_cnt_type: output order equals decode order
	w.ue(1) // max_num_ref_frames
	w.flag(false)
	w.ue(uint(wMbs - 1))
	w.ue(uint(hMbs - 1))
	w.flag(true) // frame_mbs_only_flag
	w.flag(true) // direct_8x8_inference_flag

	cropR, cropB := (wMbs*16-width)/2, (hMbs*16-height)/2
	w.flag(cropR > 0 || cropB > 0)
	if cropR > 0 || cropB > 0 {
		w.ue(0)
		w.ue(uint(cropR))
		w.ue(0)
		w.ue(uint(cropB))
	}

	w.flag(fps > 0) // vui_parameters_present_flag
	if fps > 0 {
		w.flag(false) // aspect_ratio_info_present_flag
		w.flag(false) // overscan_info_present_flag
		w.flag(false) // video_signal_type_present_flag
		w.flag(false) // chroma_loc_info_present_flag
		w.flag(true)  // timing_info_present_flag
		w.u(32, 1)
		w.u(32, uint(2*fps))
		w.flag(true)  // fixed_frame_rate_flag
		w.flag(false) // nal_hrd_parameters_present_flag
		w.flag(false) // vcl_hrd_parameters_present_flag
		w.flag(false) // pic_struct_present_flag
		w.flag(false) // bitstream_restriction_flag
	}

	nal := []byte{0x67, profileBaseline, constraintFlags, level30}
	return append(nal, addEPB(w.trailing())...)
}

// PPS returns a minimal CAVLC picture parameter set.
func PPS() []byte {
	var w bitWriter
	w.ue(0)       // pic_parameter_set_id
	w.ue(0)       // seq_parameter_set_id
	w.flag(false) // entropy_coding_mode_flag
	w.flag(false) // bottom_field_pic_order_in_frame_present_flag
	w.ue(0)       // num_slice_groups_minus1
	w.ue(0)       // num_ref_idx_l0_default_active_minus1
	w.ue(0)       // num_ref_idx_l1_default_active_minus1
	w.flag(false) // weighted_pred_flag
	w.u(2, 0)     // weighted_bipred_idc
	w.se(0)       // pic_init_qp_minus26
	w.se(0)       // pic_init_qs_minus26
	w.se(0)       // chroma_qp_index_offset
	w.flag(true)  // deblocking_filter_control_present_flag
	w.flag(false) // constrained_intra_pred_flag
	w.flag(false) // redundant_pic_cnt_present_flag
	return append([]byte{0x68}, addEPB(w.trailing())...)
}

// Slice returns a slice NAL unit with a valid header followed by size bytes
// of filler. The filler carries no macroblock data.
func Slice(idr bool, frameNum, idrID, size int) []byte {
	var w bitWriter
	w.ue(0) // first_mb_in_slice
	nal := byte(0x41)
	if idr {
		nal = 0x65
		w.ue(7) // slice_type I, all slices
	} else {
		w.ue(5) // slice_type P, all slices
	}
	w.ue(0) // pic_parameter_set_id
	w.u(4, uint(frameNum&0x0F))
	if idr {
		w.ue(uint(idrID))
	}
	body := w.trailing()
	for i := 0; i < size; i++ {
		body = append(body, byte(0x11+i%0xEE))
	}
	return append([]byte{nal}, addEPB(body)...)
}
