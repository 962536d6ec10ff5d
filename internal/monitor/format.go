package monitor

import (
	"encoding/binary"

	"github.com/zsiec/reel/internal/demux"
	"github.com/zsiec/reel/internal/media"
)

// ToAVC1 converts NAL units to 4-byte length-prefixed form. Units may carry
// a 3- or 4-byte Annex B start code or none at all.
func ToAVC1(nalus [][]byte) []byte {
	var total int
	for _, nalu := range nalus {
		total += 4 + len(stripStartCode(nalu))
	}

	out := make([]byte, 0, total)
	for _, nalu := range nalus {
		raw := stripStartCode(nalu)
		out = binary.BigEndian.AppendUint32(out, uint32(len(raw)))
		out = append(out, raw...)
	}
	return out
}

func stripStartCode(nalu []byte) []byte {
	if len(nalu) >= 4 && nalu[0] == 0 && nalu[1] == 0 && nalu[2] == 0 && nalu[3] == 1 {
		return nalu[4:]
	}
	if len(nalu) >= 3 && nalu[0] == 0 && nalu[1] == 0 && nalu[2] == 1 {
		return nalu[3:]
	}
	return nalu
}

// StripADTS returns the raw AAC payload of an ADTS frame, or data unchanged
// when it does not start with an ADTS header.
func StripADTS(data []byte) []byte {
	if len(data) < 7 || data[0] != 0xFF || data[1]&0xF0 != 0xF0 {
		return data
	}
	headerSize := 7
	if data[1]&0x01 == 0 {
		headerSize = 9
	}
	if len(data) <= headerSize {
		return data
	}
	return data[headerSize:]
}

// BuildAVCDecoderConfig builds an AVCDecoderConfigurationRecord
// (ISO 14496-15 5.2.4.1.1) from SPS and PPS NAL units without start codes.
func BuildAVCDecoderConfig(sps, pps []byte) []byte {
	if len(sps) < 4 || len(pps) == 0 {
		return nil
	}

	buf := make([]byte, 0, 11+len(sps)+len(pps))
	buf = append(buf,
		1,      // configurationVersion
		sps[1], // AVCProfileIndication
		sps[2], // profile_compatibility
		sps[3], // AVCLevelIndication
		0xFF,   // lengthSizeMinusOne = 3
		0xE1,   // one SPS
	)
	buf = append(buf, byte(len(sps)>>8), byte(len(sps)))
	buf = append(buf, sps...)
	buf = append(buf, 1, byte(len(pps)>>8), byte(len(pps)))
	return append(buf, pps...)
}

// BuildHEVCDecoderConfig builds an HEVCDecoderConfigurationRecord
// (ISO 14496-15 8.3.3.1.2) from VPS, SPS and PPS NAL units without start
// codes. It returns nil when the SPS does not parse.
func BuildHEVCDecoderConfig(vps, sps, pps []byte) []byte {
	if len(sps) < 4 || len(pps) == 0 || len(vps) == 0 {
		return nil
	}
	info, err := demux.ParseHEVCSPS(sps)
	if err != nil {
		return nil
	}

	buf := make([]byte, 0, 23+15+len(vps)+len(sps)+len(pps))
	buf = append(buf, 1, info.TierFlag<<5|info.ProfileIDC)
	buf = binary.BigEndian.AppendUint32(buf, info.ProfileCompatibilityFlags)
	for i := 5; i >= 0; i-- {
		buf = append(buf, byte(info.ConstraintIndicatorFlags>>(i*8)))
	}
	buf = append(buf,
		info.LevelIDC,
		0xF0, 0x00, // min_spatial_segmentation_idc
		0xFC, // parallelismType
		0xFC|info.ChromaFormatIdc&0x03,
		0xF8,       // bitDepthLumaMinus8
		0xF8,       // bitDepthChromaMinus8
		0x00, 0x00, // avgFrameRate
		0x0F, // one temporal layer, nested, 4-byte lengths
		3,    // numOfArrays
	)
	for _, a := range []struct {
		typ byte
		nal []byte
	}{{demux.HEVCNALVPS, vps}, {demux.HEVCNALSPS, sps}, {demux.HEVCNALPPS, pps}} {
		buf = append(buf, a.typ, 0x00, 0x01, byte(len(a.nal)>>8), byte(len(a.nal)))
		buf = append(buf, a.nal...)
	}
	return buf
}

// VideoConfig returns the track configuration of v. Record is nil when the
// parameter sets are missing.
func VideoConfig(v *media.VideoFrame) Config {
	c := Config{Track: TrackVideo, Codec: v.Profile}
	if c.Codec == "" {
		c.Codec = v.Codec
	}
	switch v.Codec {
	case "h265":
		c.Record = BuildHEVCDecoderConfig(v.VPS, v.SPS, v.PPS)
	default:
		c.Record = BuildAVCDecoderConfig(v.SPS, v.PPS)
	}
	return c
}

// AudioConfig returns the track configuration of a.
func AudioConfig(a *media.AudioFrame) Config {
	return Config{
		Track:      TrackAudio,
		Codec:      "mp4a.40.2",
		SampleRate: uint64(a.SampleRate),
		Channels:   uint64(a.Channels),
	}
}
