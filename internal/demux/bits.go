package demux

import "errors"

var errTruncated = errors.New("bitstream truncated")

// bitReader reads an RBSP most significant bit first. The first read past the
// end sets err; later reads return zero, so parsers check err once at the end
// of a block.
type bitReader struct {
	data []byte
	pos  int // in bits
	err  error
}

func newBitReader(rbsp []byte) *bitReader {
	return &bitReader{data: rbsp}
}

func (br *bitReader) bit() uint {
	if br.err != nil {
		return 0
	}
	if br.pos >= len(br.data)*8 {
		br.err = errTruncated
		return 0
	}
	v := uint(br.data[br.pos/8]>>(7-br.pos%8)) & 1
	br.pos++
	return v
}

func (br *bitReader) u(n int) uint {
	var v uint
	for i := 0; i < n; i++ {
		v = v<<1 | br.bit()
	}
	return v
}

func (br *bitReader) flag() bool { return br.bit() == 1 }

func (br *bitReader) skip(n int) {
	for i := 0; i < n && br.err == nil; i++ {
		br.bit()
	}
}

// ue reads an Exp-Golomb coded unsigned value.
func (br *bitReader) ue() uint {
	zeros := 0
	for br.bit() == 0 {
		if br.err != nil {
			return 0
		}
		zeros++
		if zeros > 31 {
			br.err = errTruncated
			return 0
		}
	}
	return 1<<zeros - 1 + br.u(zeros)
}

// se reads an Exp-Golomb coded signed value.
func (br *bitReader) se() int {
	v := br.ue()
	if v%2 == 0 {
		return -int(v / 2)
	}
	return int(v+1) / 2
}

// unescapeRBSP strips emulation prevention bytes (the 0x03 in 00 00 03 xx).
func unescapeRBSP(data []byte) []byte {
	out := make([]byte, 0, len(data))
	zeros := 0
	for i, b := range data {
		if zeros >= 2 && b == 0x03 && (i+1 == len(data) || data[i+1] <= 0x03) {
			zeros = 0
			continue
		}
		out = append(out, b)
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}
