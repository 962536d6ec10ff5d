package demux

import "errors"

// ErrInvalidADTS is returned for an ADTS header with a reserved sample rate.
var ErrInvalidADTS = errors.New("invalid ADTS header")

var aacSampleRates = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350,
}

// AACFrame is one ADTS frame.
type AACFrame struct {
	Data       []byte // header and payload
	Profile    int    // audio object type minus one
	SampleRate int
	Channels   int
	Samples    int // per channel
}

// ParseADTS splits an ADTS byte stream into frames. Bytes before a sync word
// are skipped and a truncated trailing frame is ignored.
func ParseADTS(data []byte) ([]AACFrame, error) {
	var frames []AACFrame
	for off := 0; len(data)-off >= 7; {
		if data[off] != 0xFF || data[off+1]&0xF0 != 0xF0 {
			off++
			continue
		}
		h := data[off:]
		headerSize := 7
		if h[1]&0x01 == 0 {
			headerSize = 9
		}
		rateIdx := int(h[2] >> 2 & 0x0F)
		if rateIdx >= len(aacSampleRates) {
			return frames, ErrInvalidADTS
		}
		frameLen := int(h[3]&0x03)<<11 | int(h[4])<<3 | int(h[5]>>5)
		if frameLen < headerSize || frameLen > len(h) {
			break
		}
		frames = append(frames, AACFrame{
			Data:       h[:frameLen],
			Profile:    int(h[2] >> 6),
			SampleRate: aacSampleRates[rateIdx],
			Channels:   int(h[2]&0x01)<<2 | int(h[3]>>6),
			Samples:    1024 * (int(h[6]&0x03) + 1),
		})
		off += frameLen
	}
	return frames, nil
}

// ADTSHeader builds a 7-byte ADTS header (no CRC) for a payload of
// payloadLen bytes. It returns nil for an unknown sample rate.
func ADTSHeader(profile, sampleRate, channels, payloadLen int) []byte {
	idx := -1
	for i, r := range aacSampleRates {
		if r == sampleRate {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	n := payloadLen + 7
	return []byte{
		0xFF,
		0xF1,
		byte(profile&0x03)<<6 | byte(idx)<<2 | byte(channels>>2&0x01),
		byte(channels&0x03)<<6 | byte(n>>11&0x03),
		byte(n >> 3),
		byte(n&0x07)<<5 | 0x1F,
		0xFC,
	}
}
