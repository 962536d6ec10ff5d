// Package mpegts reads and writes MPEG-2 transport streams.
//
// The Reader splits a byte stream into 188-byte packets (192-byte M2TS
// packets are accepted too), reassembles PSI sections and PES packets per
// PID, and returns them one Unit at a time. The Writer does the reverse for a
// single program: PAT/PMT tables followed by packetized PES payloads with PCR
// on the clock PID.
package mpegts

// PacketSize is the size of a transport stream packet.
const PacketSize = 188

// M2TSPacketSize is the size of a BDAV packet: a 4-byte arrival timestamp
// followed by a regular transport stream packet.
const M2TSPacketSize = 192

const syncByte = 0x47

// Well-known PIDs.
const (
	PIDPAT  uint16 = 0x0000
	PIDNull uint16 = 0x1FFF
)

// PMT stream_type values for the codecs the pipeline understands.
const (
	StreamTypeAAC  uint8 = 0x0F
	StreamTypeH264 uint8 = 0x1B
	StreamTypeH265 uint8 = 0x24
)

// PES stream_id values used by the writer.
const (
	StreamIDVideo uint8 = 0xE0
	StreamIDAudio uint8 = 0xC0
)

// ClockHz is the rate of PTS, DTS and PCR base values.
const ClockHz = 90000

// Timestamp is a 33-bit presentation clock value in 90 kHz ticks.
type Timestamp int64

// Microseconds converts the timestamp to microseconds.
func (t Timestamp) Microseconds() int64 {
	return int64(t) * 1_000_000 / ClockHz
}

// TimestampFromMicroseconds converts microseconds to 90 kHz ticks, wrapped to
// 33 bits.
func TimestampFromMicroseconds(us int64) Timestamp {
	return Timestamp((us * ClockHz / 1_000_000) & (1<<33 - 1))
}

// Packet is one parsed transport stream packet.
type Packet struct {
	Header  Header
	Payload []byte
}

// Header holds the fixed header and the adaptation field flags of a packet.
type Header struct {
	PID               uint16
	ContinuityCounter uint8
	PayloadUnitStart  bool
	TransportError    bool
	HasAdaptation     bool
	HasPayload        bool
	Discontinuity     bool
	RandomAccess      bool
	PCR               *Timestamp
}

// Unit is one reassembled logical unit. Exactly one of PAT, PMT or PES is set.
type Unit struct {
	PID   uint16
	First *Packet // header of the first packet carries RandomAccess and PCR
	PAT   *PAT
	PMT   *PMT
	PES   *PES
}

// PAT is a Program Association Table.
type PAT struct {
	TransportStreamID uint16
	Programs          []Program
}

// Program maps a program number to the PID carrying its PMT.
type Program struct {
	Number uint16
	PMTPID uint16
}

// PMT is a Program Map Table.
type PMT struct {
	ProgramNumber uint16
	PCRPID        uint16
	Streams       []ElementaryStream
}

// ElementaryStream is one PMT entry.
type ElementaryStream struct {
	PID        uint16
	StreamType uint8
}

// PES is a reassembled Packetized Elementary Stream packet.
type PES struct {
	StreamID uint8
	PTS      *Timestamp
	DTS      *Timestamp
	Data     []byte
}

// Times returns PTS and DTS in microseconds. DTS falls back to PTS when
// absent; ok is false if the packet carries no PTS.
func (p *PES) Times() (pts, dts int64, ok bool) {
	if p.PTS == nil {
		return 0, 0, false
	}
	pts = p.PTS.Microseconds()
	dts = pts
	if p.DTS != nil {
		dts = p.DTS.Microseconds()
	}
	return pts, dts, true
}
