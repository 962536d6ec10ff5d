package mpegts

import "fmt"

func isPESStart(b []byte) bool {
	return len(b) >= 3 && b[0] == 0x00 && b[1] == 0x00 && b[2] == 0x01
}

// hasOptionalHeader is false for the stream ids that carry no PES header
// extension: padding, private_stream_2, ECM, EMM, DSMCC, H.222.1 type E and
// the program stream directory.
func hasOptionalHeader(id uint8) bool {
	switch id {
	case 0xBC, 0xBE, 0xBF, 0xF0, 0xF1, 0xF2, 0xF8, 0xFF:
		return false
	}
	return true
}

func parsePES(b []byte) (*PES, error) {
	if len(b) < 6 {
		return nil, fmt.Errorf("mpegts: PES packet too short (%d bytes)", len(b))
	}
	if !isPESStart(b) {
		return nil, fmt.Errorf("mpegts: invalid PES start code")
	}

	pes := &PES{StreamID: b[3]}
	end := len(b)
	if n := int(b[4])<<8 | int(b[5]); n > 0 && 6+n < end {
		end = 6 + n
	}

	if !hasOptionalHeader(pes.StreamID) {
		pes.Data = b[6:end]
		return pes, nil
	}
	if len(b) < 9 {
		return nil, fmt.Errorf("mpegts: PES optional header too short")
	}

	start := 9 + int(b[8])
	if start > end {
		start = end
	}
	switch b[7] >> 6 {
	case 2:
		if len(b) >= 14 {
			pts := decodeTimestamp(b[9:14])
			pes.PTS = &pts
		}
	case 3:
		if len(b) >= 19 {
			pts, dts := decodeTimestamp(b[9:14]), decodeTimestamp(b[14:19])
			pes.PTS, pes.DTS = &pts, &dts
		}
	}
	pes.Data = b[start:end]
	return pes, nil
}

func decodeTimestamp(b []byte) Timestamp {
	return Timestamp(int64(b[0]>>1&0x07)<<30 |
		int64(b[1])<<22 |
		int64(b[2]>>1&0x7F)<<15 |
		int64(b[3])<<7 |
		int64(b[4]>>1&0x7F))
}

// encodeTimestamp writes a PTS or DTS field. prefix is 0x2 for a lone PTS,
// 0x3 for a PTS followed by a DTS, and 0x1 for that DTS.
func encodeTimestamp(prefix byte, ts Timestamp) []byte {
	v := int64(ts)
	return []byte{
		prefix<<4 | byte(v>>29)&0x0E | 1,
		byte(v >> 22),
		byte(v>>14)&0xFE | 1,
		byte(v >> 7),
		byte(v<<1)&0xFE | 1,
	}
}

// encodePES serialises a PES packet. The length field is left at zero when
// the packet does not fit in 16 bits, which is only legal for video.
func encodePES(p *PES) []byte {
	var flags, hdrLen byte
	switch {
	case p.PTS != nil && p.DTS != nil:
		flags, hdrLen = 0xC0, 10
	case p.PTS != nil:
		flags, hdrLen = 0x80, 5
	}

	out := make([]byte, 0, 9+int(hdrLen)+len(p.Data))
	out = append(out, 0x00, 0x00, 0x01, p.StreamID, 0, 0, 0x80, flags, hdrLen)
	switch flags {
	case 0xC0:
		out = append(out, encodeTimestamp(0x3, *p.PTS)...)
		out = append(out, encodeTimestamp(0x1, *p.DTS)...)
	case 0x80:
		out = append(out, encodeTimestamp(0x2, *p.PTS)...)
	}
	out = append(out, p.Data...)

	if n := len(out) - 6; n <= 0xFFFF {
		out[4], out[5] = byte(n>>8), byte(n)
	}
	return out
}
