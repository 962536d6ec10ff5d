package demux

// NALUnit is one NAL unit of an H.264 or H.265 Annex B stream.
type NALUnit struct {
	Type byte   // 5-bit H.264 or 6-bit H.265 type
	Data []byte // NAL header and payload, without the start code
}

// splitAnnexB cuts data at 3- and 4-byte start codes. A zero byte directly
// before 00 00 01 belongs to the start code, not to the preceding unit.
func splitAnnexB(data []byte, minLen int, typeOf func([]byte) byte) []NALUnit {
	n := len(data)
	if n < 4 {
		return nil
	}

	type span struct{ sc, start int }
	var spans []span
	for i := 0; i+2 < n; {
		if data[i] != 0 || data[i+1] != 0 {
			i++
			continue
		}
		switch {
		case i+3 < n && data[i+2] == 0 && data[i+3] == 1:
			spans = append(spans, span{i, i + 4})
			i += 4
		case data[i+2] == 1:
			spans = append(spans, span{i, i + 3})
			i += 3
		default:
			i++
		}
	}

	var units []NALUnit
	for k, s := range spans {
		end := n
		if k+1 < len(spans) {
			end = spans[k+1].sc
		}
		if end-s.start < minLen {
			continue
		}
		nal := data[s.start:end]
		units = append(units, NALUnit{Type: typeOf(nal), Data: nal})
	}
	return units
}

// ParseAnnexB splits an H.264 Annex B byte stream into NAL units.
func ParseAnnexB(data []byte) []NALUnit {
	return splitAnnexB(data, 1, func(d []byte) byte { return d[0] & 0x1F })
}

// ParseAnnexBHEVC splits an H.265 Annex B byte stream into NAL units.
func ParseAnnexBHEVC(data []byte) []NALUnit {
	return splitAnnexB(data, 2, func(d []byte) byte { return HEVCNALType(d[0]) })
}

// JoinAnnexB prefixes every unit with a 4-byte start code.
func JoinAnnexB(units ...[]byte) []byte {
	size := 0
	for _, u := range units {
		size += 4 + len(u)
	}
	out := make([]byte, 0, size)
	for _, u := range units {
		out = append(out, 0, 0, 0, 1)
		out = append(out, u...)
	}
	return out
}
