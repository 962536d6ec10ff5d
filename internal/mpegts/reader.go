package mpegts

import (
	"context"
	"errors"
	"io"
)

// ReaderStats counts packet-level anomalies seen by a Reader.
type ReaderStats struct {
	Packets          int64
	CorruptPackets   int64
	ContinuityErrors int64
	CorruptUnits     int64
}

// Reader pulls transport stream packets from an io.Reader and returns
// reassembled units. It is not safe for concurrent use.
type Reader struct {
	ctx     context.Context
	r       io.Reader
	buf     []byte
	asm     *assembler
	pending []*Unit
	eof     bool
	filter  func(pid uint16) bool
	stats   ReaderStats
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithPacketSize selects 188-byte TS or 192-byte M2TS framing.
func WithPacketSize(size int) ReaderOption {
	return func(r *Reader) {
		if size == PacketSize || size == M2TSPacketSize {
			r.buf = make([]byte, size)
		}
	}
}

// WithPIDFilter drops packets of PES PIDs for which keep returns false before
// they are buffered. PSI PIDs are never filtered.
func WithPIDFilter(keep func(pid uint16) bool) ReaderOption {
	return func(r *Reader) { r.filter = keep }
}

// NewReader returns a Reader over r. ctx is checked before every packet read.
func NewReader(ctx context.Context, r io.Reader, opts ...ReaderOption) *Reader {
	rd := &Reader{
		ctx: ctx,
		r:   r,
		buf: make([]byte, PacketSize),
		asm: newAssembler(),
	}
	for _, opt := range opts {
		opt(rd)
	}
	return rd
}

// Stats returns the anomaly counters collected so far.
func (r *Reader) Stats() ReaderStats { return r.stats }

// Next returns the next unit. Units still being collected when the input
// ends are flushed before Next reports io.EOF. Corrupt packets and sections
// are skipped and counted.
func (r *Reader) Next() (*Unit, error) {
	for {
		if len(r.pending) > 0 {
			u := r.pending[0]
			r.pending = r.pending[1:]
			return u, nil
		}
		if r.eof {
			return nil, io.EOF
		}
		if err := r.ctx.Err(); err != nil {
			return nil, err
		}

		if _, err := io.ReadFull(r.r, r.buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				r.eof = true
				for _, ps := range r.asm.drain() {
					r.pending = append(r.pending, r.assemble(ps)...)
				}
				continue
			}
			return nil, err
		}
		r.stats.Packets++

		pkt, err := parsePacket(r.buf)
		if err != nil {
			r.stats.CorruptPackets++
			continue
		}
		pid := pkt.Header.PID
		if pid == PIDNull {
			continue
		}
		if r.filter != nil && !r.asm.isPSI(pid) && !r.filter(pid) {
			continue
		}

		done, ccErr := r.asm.add(pkt)
		if ccErr {
			r.stats.ContinuityErrors++
		}
		if done != nil {
			r.pending = append(r.pending, r.assemble(done)...)
		}
	}
}

// assemble parses one collected unit and registers PMT PIDs announced by a
// PAT so their sections are recognised from then on.
func (r *Reader) assemble(packets []*Packet) []*Unit {
	first := packets[0]
	pid := first.Header.PID

	var payload []byte
	for _, p := range packets {
		payload = append(payload, p.Payload...)
	}
	if len(payload) == 0 {
		return nil
	}

	if r.asm.isPSI(pid) {
		units, err := parseSections(payload, pid, first)
		if err != nil {
			r.stats.CorruptUnits++
		}
		for _, u := range units {
			if u.PAT != nil {
				for _, p := range u.PAT.Programs {
					r.asm.addPMTPID(p.PMTPID)
				}
			}
		}
		return units
	}

	if !isPESStart(payload) {
		return nil
	}
	pes, err := parsePES(payload)
	if err != nil {
		r.stats.CorruptUnits++
		return nil
	}
	return []*Unit{{PID: pid, First: first, PES: pes}}
}
