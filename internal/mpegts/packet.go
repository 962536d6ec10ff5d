package mpegts

import "fmt"

const (
	afFlagDiscontinuity = 0x80
	afFlagRandomAccess  = 0x40
	afFlagPCR           = 0x10
)

func parsePacket(buf []byte) (*Packet, error) {
	if len(buf) == M2TSPacketSize {
		buf = buf[4:]
	}
	if len(buf) != PacketSize {
		return nil, fmt.Errorf("mpegts: packet size %d, expected %d", len(buf), PacketSize)
	}
	if buf[0] != syncByte {
		return nil, fmt.Errorf("mpegts: invalid sync byte 0x%02X", buf[0])
	}

	p := &Packet{Header: Header{
		TransportError:    buf[1]&0x80 != 0,
		PayloadUnitStart:  buf[1]&0x40 != 0,
		PID:               uint16(buf[1]&0x1F)<<8 | uint16(buf[2]),
		HasAdaptation:     buf[3]&0x20 != 0,
		HasPayload:        buf[3]&0x10 != 0,
		ContinuityCounter: buf[3] & 0x0F,
	}}

	offset := 4
	if p.Header.HasAdaptation {
		afLen := int(buf[4])
		end := 5 + afLen
		if end > PacketSize {
			end = PacketSize
		}
		if afLen > 0 {
			parseAdaptation(&p.Header, buf[5:end])
		}
		offset = end
	}

	if p.Header.HasPayload && offset < PacketSize {
		p.Payload = make([]byte, PacketSize-offset)
		copy(p.Payload, buf[offset:])
	}
	return p, nil
}

func parseAdaptation(h *Header, af []byte) {
	flags := af[0]
	h.Discontinuity = flags&afFlagDiscontinuity != 0
	h.RandomAccess = flags&afFlagRandomAccess != 0
	if flags&afFlagPCR != 0 && len(af) >= 7 {
		pcr := decodePCR(af[1:7])
		h.PCR = &pcr
	}
}

// decodePCR returns the 33-bit base of a program clock reference. The 9-bit
// 27 MHz extension is dropped.
func decodePCR(b []byte) Timestamp {
	return Timestamp(int64(b[0])<<25 | int64(b[1])<<17 | int64(b[2])<<9 | int64(b[3])<<1 | int64(b[4])>>7)
}

func encodePCR(ts Timestamp) []byte {
	base := int64(ts)
	return []byte{
		byte(base >> 25),
		byte(base >> 17),
		byte(base >> 9),
		byte(base >> 1),
		byte(base&1)<<7 | 0x7E,
		0,
	}
}
