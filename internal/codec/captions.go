package codec

import "github.com/zsiec/ccx"

// captionDecoder turns the A/53 caption data carried in SEI messages into
// CEA-608 and CEA-708 text.
type captionDecoder struct {
	cea608 map[int]*ccx.CEA608Decoder
	cea708 map[int]*ccx.CEA708Service
	dtvcc  []byte

	// CEA-608 control codes are sent twice; the repeat is dropped when it
	// arrives within two pictures of the first.
	lastCtrl        [2][2]byte
	lastWasCtrl     [2]bool
	lastCtrlPicture [2]int64
}

func newCaptionDecoder() *captionDecoder {
	c := &captionDecoder{
		cea608: make(map[int]*ccx.CEA608Decoder, 4),
		cea708: make(map[int]*ccx.CEA708Service, 6),
	}
	for ch := 1; ch <= 4; ch++ {
		c.cea608[ch] = ccx.NewCEA608Decoder()
	}
	for svc := 1; svc <= 6; svc++ {
		c.cea708[svc] = ccx.NewCEA708Service()
	}
	return c
}

// decode processes one SEI NAL unit and returns caption text that became
// displayable. picture is the index of the picture carrying the SEI.
func (c *captionDecoder) decode(sei []byte, picture int64) []string {
	cd := ccx.ExtractCaptions(sei)
	if cd == nil {
		return nil
	}

	var texts []string
	for _, pair := range cd.CC608Pairs {
		cc1, cc2 := pair.Data[0], pair.Data[1]
		f := pair.Field
		if f < 0 || f > 1 {
			continue
		}
		if cc1 >= 0x10 && cc1 <= 0x1F {
			cp := [2]byte{cc1, cc2}
			if c.lastWasCtrl[f] && c.lastCtrl[f] == cp && picture-c.lastCtrlPicture[f] <= 2 {
				c.lastWasCtrl[f] = false
				continue
			}
			c.lastCtrl[f] = cp
			c.lastWasCtrl[f] = true
			c.lastCtrlPicture[f] = picture
		} else {
			c.lastWasCtrl[f] = false
		}

		dec := c.cea608[pair.Channel]
		if dec == nil {
			continue
		}
		if text := dec.Decode(cc1, cc2); text != "" {
			texts = append(texts, text)
		}
	}

	for _, t := range cd.DTVCC {
		if t.Start {
			texts = append(texts, c.drainDTVCC()...)
			c.dtvcc = c.dtvcc[:0]
		}
		c.dtvcc = append(c.dtvcc, t.Data[0], t.Data[1])
	}
	return texts
}

func (c *captionDecoder) drainDTVCC() []string {
	if len(c.dtvcc) < 1 {
		return nil
	}
	size := ccx.DTVCCPacketSize(c.dtvcc[0])
	if len(c.dtvcc) < size {
		return nil
	}

	var texts []string
	for _, block := range ccx.ParseDTVCCPacket(c.dtvcc[:size]) {
		svc := c.cea708[block.ServiceNum]
		if svc == nil {
			continue
		}
		if svc.ProcessBlock(block.Data) {
			if text := svc.DisplayText(); text != "" {
				texts = append(texts, text)
			}
		}
	}
	c.dtvcc = c.dtvcc[size:]
	return texts
}
