package mpegts

import "sort"

// pidBuffer collects the packets of one PID until a unit boundary.
type pidBuffer struct {
	pid     uint16
	packets []*Packet
	psi     bool
	lastCC  int // -1 until the first packet
}

// add appends p and returns the packets of a completed unit, if any. A PES
// unit completes when the next one starts; a PSI unit also completes as soon
// as its sections are all present.
func (b *pidBuffer) add(p *Packet) (done []*Packet, ccError bool) {
	if p.Header.TransportError {
		b.packets = nil
		return nil, false
	}
	if !p.Header.HasPayload {
		return nil, false
	}

	cc := int(p.Header.ContinuityCounter)
	if b.lastCC >= 0 && !p.Header.Discontinuity {
		switch cc {
		case b.lastCC:
			return nil, false // duplicate
		case (b.lastCC + 1) & 0x0F:
		default:
			b.packets = nil
			ccError = true
		}
	}
	b.lastCC = cc

	if p.Header.PayloadUnitStart {
		done = b.take()
	} else if len(b.packets) == 0 {
		// Continuation without a start: wait for the next unit.
		return nil, ccError
	}
	b.packets = append(b.packets, p)

	if done == nil && b.psi && sectionsComplete(b.packets) {
		done = b.take()
	}
	return done, ccError
}

func (b *pidBuffer) take() []*Packet {
	if len(b.packets) == 0 {
		return nil
	}
	out := b.packets
	b.packets = nil
	return out
}

// assembler routes packets to per-PID buffers. PSI PIDs are PAT plus every
// PMT PID announced so far.
type assembler struct {
	buffers map[uint16]*pidBuffer
	pmtPIDs map[uint16]bool
}

func newAssembler() *assembler {
	return &assembler{
		buffers: make(map[uint16]*pidBuffer),
		pmtPIDs: make(map[uint16]bool),
	}
}

func (a *assembler) isPSI(pid uint16) bool {
	return pid == PIDPAT || a.pmtPIDs[pid]
}

func (a *assembler) addPMTPID(pid uint16) {
	a.pmtPIDs[pid] = true
	if b, ok := a.buffers[pid]; ok {
		b.psi = true
	}
}

func (a *assembler) add(p *Packet) ([]*Packet, bool) {
	pid := p.Header.PID
	b, ok := a.buffers[pid]
	if !ok {
		b = &pidBuffer{pid: pid, psi: a.isPSI(pid), lastCC: -1}
		a.buffers[pid] = b
	}
	return b.add(p)
}

// drain returns every partially collected unit in PID order, so PAT comes
// out before any PMT.
func (a *assembler) drain() [][]*Packet {
	pids := make([]int, 0, len(a.buffers))
	for pid := range a.buffers {
		pids = append(pids, int(pid))
	}
	sort.Ints(pids)

	var out [][]*Packet
	for _, pid := range pids {
		if ps := a.buffers[uint16(pid)].take(); ps != nil {
			out = append(out, ps)
		}
	}
	return out
}

// sectionsComplete reports whether the concatenated payloads hold every PSI
// section that the pointer field and section lengths announce.
func sectionsComplete(packets []*Packet) bool {
	var payload []byte
	for _, p := range packets {
		payload = append(payload, p.Payload...)
	}
	if len(payload) == 0 {
		return false
	}

	off := 1 + int(payload[0])
	if off >= len(payload) {
		return false
	}
	for off < len(payload) {
		if payload[off] == 0xFF {
			return true
		}
		if off+3 > len(payload) {
			return false
		}
		if payload[off+1]&0x80 == 0 {
			return true // zero padding, not a section
		}
		off += 3 + (int(payload[off+1]&0x0F)<<8 | int(payload[off+2]))
		if off > len(payload) {
			return false
		}
	}
	return true
}
