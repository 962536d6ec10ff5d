package mpegts

import (
	"fmt"
	"io"
)

// Default layout used by the Writer.
const (
	DefaultProgramNumber uint16 = 1
	DefaultPMTPID        uint16 = 0x1000
)

// Writer produces a single-program transport stream. PAT and PMT are emitted
// before the first PES and then again every TableInterval PES packets.
type Writer struct {
	w        io.Writer
	pat      *PAT
	pmt      *PMT
	pmtPID   uint16
	cc       map[uint16]uint8
	interval int
	sinceTab int
	started  bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithTableInterval sets how many PES packets are written between table
// repetitions. Zero writes the tables only once.
func WithTableInterval(n int) WriterOption {
	return func(w *Writer) { w.interval = n }
}

// WithPCRPID selects the PID whose packets carry the program clock. It
// defaults to the first stream.
func WithPCRPID(pid uint16) WriterOption {
	return func(w *Writer) { w.pmt.PCRPID = pid }
}

// NewWriter returns a Writer for the given elementary streams.
func NewWriter(w io.Writer, streams []ElementaryStream, opts ...WriterOption) *Writer {
	tw := &Writer{
		w:      w,
		pmtPID: DefaultPMTPID,
		pat: &PAT{
			TransportStreamID: 1,
			Programs:          []Program{{Number: DefaultProgramNumber, PMTPID: DefaultPMTPID}},
		},
		pmt:      &PMT{ProgramNumber: DefaultProgramNumber, Streams: streams},
		cc:       make(map[uint16]uint8),
		interval: 40,
	}
	if len(streams) > 0 {
		tw.pmt.PCRPID = streams[0].PID
	}
	for _, opt := range opts {
		opt(tw)
	}
	return tw
}

// WriteTables emits PAT and PMT.
func (w *Writer) WriteTables() error {
	if err := w.writeSection(PIDPAT, buildPAT(w.pat)); err != nil {
		return err
	}
	if err := w.writeSection(w.pmtPID, buildPMT(w.pmt)); err != nil {
		return err
	}
	w.sinceTab = 0
	w.started = true
	return nil
}

// WritePES packetizes one PES packet on pid. randomAccess marks the first
// packet as a random access point. On the PCR PID the first packet also
// carries a PCR derived from the DTS (or PTS).
func (w *Writer) WritePES(pid uint16, pes *PES, randomAccess bool) error {
	if !w.started || (w.interval > 0 && w.sinceTab >= w.interval) {
		if err := w.WriteTables(); err != nil {
			return err
		}
	}
	w.sinceTab++

	var pcr *Timestamp
	if pid == w.pmt.PCRPID {
		switch {
		case pes.DTS != nil:
			pcr = pes.DTS
		case pes.PTS != nil:
			pcr = pes.PTS
		}
	}
	return w.packetize(pid, encodePES(pes), pcr, randomAccess)
}

func (w *Writer) writeSection(pid uint16, section []byte) error {
	if len(section)+1 > PacketSize-4 {
		return fmt.Errorf("mpegts: section of %d bytes does not fit one packet", len(section))
	}
	var pkt [PacketSize]byte
	pkt[0] = syncByte
	pkt[1] = 0x40 | byte(pid>>8)&0x1F
	pkt[2] = byte(pid)
	pkt[3] = 0x10 | w.nextCC(pid)
	pkt[4] = 0 // pointer field
	n := copy(pkt[5:], section)
	for i := 5 + n; i < PacketSize; i++ {
		pkt[i] = 0xFF
	}
	_, err := w.w.Write(pkt[:])
	return err
}

// packetize splits data across packets. The last packet is padded with
// adaptation field stuffing so that payload ends exactly at the PES end.
func (w *Writer) packetize(pid uint16, data []byte, pcr *Timestamp, randomAccess bool) error {
	first := true
	for len(data) > 0 {
		var af []byte // adaptation field after its length byte; nil means none
		if first && (pcr != nil || randomAccess) {
			var flags byte
			if randomAccess {
				flags |= afFlagRandomAccess
			}
			af = []byte{flags}
			if pcr != nil {
				af[0] |= afFlagPCR
				af = append(af, encodePCR(*pcr)...)
			}
		}

		room := PacketSize - 4
		if af != nil {
			room -= 1 + len(af)
		}
		n := min(room, len(data))
		if stuff := room - n; stuff > 0 {
			switch {
			case af != nil:
			case stuff == 1:
				af = []byte{}
				stuff = 0
			default:
				af = []byte{0x00}
				stuff -= 2
			}
			for ; stuff > 0; stuff-- {
				af = append(af, 0xFF)
			}
		}

		var pkt [PacketSize]byte
		pkt[0] = syncByte
		pkt[1] = byte(pid>>8) & 0x1F
		if first {
			pkt[1] |= 0x40
		}
		pkt[2] = byte(pid)
		pkt[3] = 0x10 | w.nextCC(pid)
		off := 4
		if af != nil {
			pkt[3] |= 0x20
			pkt[4] = byte(len(af))
			copy(pkt[5:], af)
			off = 5 + len(af)
		}
		copy(pkt[off:], data[:n])
		data = data[n:]
		first = false

		if _, err := w.w.Write(pkt[:]); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) nextCC(pid uint16) uint8 {
	cc := w.cc[pid]
	w.cc[pid] = (cc + 1) & 0x0F
	return cc
}
