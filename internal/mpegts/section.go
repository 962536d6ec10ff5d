package mpegts

import (
	"encoding/binary"
	"fmt"
)

const (
	tableIDPAT = 0x00
	tableIDPMT = 0x02
)

// MPEG-2 CRC32, polynomial 0x04C11DB7, no reflection.
var crcTable = func() (t [256]uint32) {
	for i := range t {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}()

func crc32MPEG(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>24)^b]
	}
	return crc
}

// parseSections walks the sections of a PSI payload (pointer field first).
func parseSections(payload []byte, pid uint16, first *Packet) ([]*Unit, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("mpegts: empty PSI payload")
	}
	off := 1 + int(payload[0])
	if off >= len(payload) {
		return nil, fmt.Errorf("mpegts: PSI pointer field out of range")
	}

	var units []*Unit
	for off+3 <= len(payload) {
		if payload[off] == 0xFF || payload[off+1]&0x80 == 0 {
			break
		}
		end := off + 3 + (int(payload[off+1]&0x0F)<<8 | int(payload[off+2]))
		if end > len(payload) {
			break
		}
		section := payload[off:end]
		off = end

		if crc32MPEG(section) != 0 {
			return units, fmt.Errorf("mpegts: table 0x%02X on pid %d: CRC32 mismatch", section[0], pid)
		}

		switch section[0] {
		case tableIDPAT:
			pat, err := parsePAT(section)
			if err != nil {
				return units, err
			}
			units = append(units, &Unit{PID: pid, First: first, PAT: pat})
		case tableIDPMT:
			pmt, err := parsePMT(section)
			if err != nil {
				return units, err
			}
			units = append(units, &Unit{PID: pid, First: first, PMT: pmt})
		}
	}
	return units, nil
}

// Section layout shared by PAT and PMT:
//
//	[0]    table_id
//	[1-2]  syntax(1) zero(1) reserved(2) section_length(12)
//	[3-4]  transport_stream_id or program_number
//	[5]    reserved(2) version(5) current_next(1)
//	[6-7]  section_number, last_section_number
//	...    table body
//	[-4:]  CRC32
func parsePAT(s []byte) (*PAT, error) {
	if len(s) < 12 {
		return nil, fmt.Errorf("mpegts: PAT too short")
	}
	pat := &PAT{TransportStreamID: binary.BigEndian.Uint16(s[3:5])}
	for i := 8; i+4 <= len(s)-4; i += 4 {
		num := binary.BigEndian.Uint16(s[i:])
		if num == 0 {
			continue // network PID
		}
		pat.Programs = append(pat.Programs, Program{
			Number: num,
			PMTPID: binary.BigEndian.Uint16(s[i+2:]) & 0x1FFF,
		})
	}
	return pat, nil
}

func parsePMT(s []byte) (*PMT, error) {
	if len(s) < 16 {
		return nil, fmt.Errorf("mpegts: PMT too short")
	}
	pmt := &PMT{
		ProgramNumber: binary.BigEndian.Uint16(s[3:5]),
		PCRPID:        binary.BigEndian.Uint16(s[8:10]) & 0x1FFF,
	}
	off := 12 + int(binary.BigEndian.Uint16(s[10:12])&0x0FFF)
	end := len(s) - 4
	for off+5 <= end {
		pmt.Streams = append(pmt.Streams, ElementaryStream{
			StreamType: s[off],
			PID:        binary.BigEndian.Uint16(s[off+1:]) & 0x1FFF,
		})
		off += 5 + int(binary.BigEndian.Uint16(s[off+3:])&0x0FFF)
	}
	return pmt, nil
}

// buildSection wraps a table body in the common header and appends the CRC.
// idExt is the transport_stream_id for a PAT and the program_number for a PMT.
func buildSection(tableID uint8, idExt uint16, body []byte) []byte {
	length := 5 + len(body) + 4
	s := make([]byte, 0, 3+length)
	s = append(s,
		tableID,
		0xB0|byte(length>>8)&0x0F, byte(length),
		byte(idExt>>8), byte(idExt),
		0xC1, // version 0, current
		0x00, 0x00,
	)
	s = append(s, body...)
	return binary.BigEndian.AppendUint32(s, crc32MPEG(s))
}

func buildPAT(pat *PAT) []byte {
	body := make([]byte, 0, 4*len(pat.Programs))
	for _, p := range pat.Programs {
		body = append(body, byte(p.Number>>8), byte(p.Number), 0xE0|byte(p.PMTPID>>8), byte(p.PMTPID))
	}
	return buildSection(tableIDPAT, pat.TransportStreamID, body)
}

func buildPMT(pmt *PMT) []byte {
	body := []byte{0xE0 | byte(pmt.PCRPID>>8), byte(pmt.PCRPID), 0xF0, 0x00}
	for _, es := range pmt.Streams {
		body = append(body, es.StreamType, 0xE0|byte(es.PID>>8), byte(es.PID), 0xF0, 0x00)
	}
	return buildSection(tableIDPMT, pmt.ProgramNumber, body)
}
