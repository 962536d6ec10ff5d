package synth

import "strings"

// CCPair is one CEA-608 byte pair without parity.
type CCPair [2]byte

// CEA-608 control codes used for roll-up captions on CC1.
var (
	ccRollUp2     = CCPair{0x14, 0x25}
	ccEraseScreen = CCPair{0x14, 0x2C}
	ccPACRow14    = CCPair{0x14, 0x60}
)

// CaptionPairs returns the CC1 pair sequence that shows text as a two-row
// roll-up caption. Control codes are doubled as broadcasters send them.
func CaptionPairs(text string) []CCPair {
	pairs := []CCPair{
		ccRollUp2, ccRollUp2,
		ccEraseScreen, ccEraseScreen,
		ccPACRow14, ccPACRow14,
	}
	b := normalize608(text)
	for i := 0; i < len(b); i += 2 {
		if i+1 < len(b) {
			pairs = append(pairs, CCPair{b[i], b[i+1]})
		} else {
			pairs = append(pairs, CCPair{b[i], 0x80})
		}
	}
	return pairs
}

// normalize608 joins up to four lines of at most 32 characters and replaces
// anything outside printable ASCII.
func normalize608(text string) []byte {
	lines := strings.Split(text, "\n")
	if len(lines) > 4 {
		lines = lines[:4]
	}
	for i, l := range lines {
		if len(l) > 32 {
			lines[i] = l[:32]
		}
	}
	var out []byte
	for _, r := range strings.Join(lines, " ") {
		if r >= 0x20 && r <= 0x7E {
			out = append(out, byte(r))
		} else {
			out = append(out, '?')
		}
	}
	return out
}

// CaptionSEI returns an H.264 SEI NAL unit carrying the pairs as A/53 GA94
// cc_data on field 1. At most 31 pairs fit.
func CaptionSEI(pairs ...CCPair) []byte {
	n := min(len(pairs), 31)
	payload := []byte{
		0xB5,       // itu_t_t35_country_code
		0x00, 0x31, // itu_t_t35_provider_code
		'G', 'A', '9', '4',
		0x03,           // user_data_type_code: cc_data
		0x40 | byte(n), // process_cc_data_flag, cc_count
		0xFF,           // em_data
	}
	for _, p := range pairs[:n] {
		payload = append(payload, 0xFC, addParity(p[0]), addParity(p[1]))
	}
	payload = append(payload, 0xFF)

	msg := seiMessage(4, payload) // user_data_registered_itu_t_t35
	msg = append(msg, 0x80)
	return append([]byte{0x06}, addEPB(msg)...)
}

func seiMessage(payloadType int, payload []byte) []byte {
	var out []byte
	for pt := payloadType; ; pt -= 255 {
		if pt < 255 {
			out = append(out, byte(pt))
			break
		}
		out = append(out, 0xFF)
	}
	for ps := len(payload); ; ps -= 255 {
		if ps < 255 {
			out = append(out, byte(ps))
			break
		}
		out = append(out, 0xFF)
	}
	return append(out, payload...)
}

// addParity sets the top bit so the byte has odd parity.
func addParity(b byte) byte {
	b &= 0x7F
	ones := 0
	for v := b; v != 0; v >>= 1 {
		ones += int(v & 1)
	}
	if ones%2 == 0 {
		return b | 0x80
	}
	return b
}
