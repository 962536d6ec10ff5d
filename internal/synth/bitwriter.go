package synth

// bitWriter builds an RBSP most significant bit first.
type bitWriter struct {
	buf   []byte
	nbits int
}

func (w *bitWriter) u(n int, v uint) {
	for i := n - 1; i >= 0; i-- {
		if w.nbits%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		if v>>uint(i)&1 == 1 {
			w.buf[len(w.buf)-1] |= 0x80 >> uint(w.nbits%8)
		}
		w.nbits++
	}
}

func (w *bitWriter) flag(b bool) {
	if b {
		w.u(1, 1)
	} else {
		w.u(1, 0)
	}
}

func (w *bitWriter) ue(v uint) {
	v++
	n := 0
	for x := v; x > 1; x >>= 1 {
		n++
	}
	w.u(n, 0)
	w.u(n+1, v)
}

func (w *bitWriter) se(v int) {
	if v <= 0 {
		w.ue(uint(-2 * v))
	} else {
		w.ue(uint(2*v - 1))
	}
}

// trailing appends rbsp_stop_one_bit and zero alignment.
func (w *bitWriter) trailing() []byte {
	w.u(1, 1)
	for w.nbits%8 != 0 {
		w.u(1, 0)
	}
	return w.buf
}

// addEPB inserts emulation prevention bytes.
func addEPB(data []byte) []byte {
	out := make([]byte, 0, len(data)+len(data)/64)
	zeros := 0
	for _, b := range data {
		if zeros >= 2 && b <= 0x03 {
			out = append(out, 0x03)
			zeros = 0
		}
		out = append(out, b)
		if b == 0x00 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}
