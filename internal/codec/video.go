package codec

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/zsiec/reel/internal/demux"
	"github.com/zsiec/reel/internal/media"
)

// videoDecoder assembles H.264 or H.265 access units into frames. It tracks
// parameter sets, reads the picture size from the SPS, and keeps a small
// window of pictures that it releases in PTS order.
type videoDecoder struct {
	info  media.StreamInfo
	hevc  bool
	depth int
	log   *slog.Logger

	sps, pps, vps []byte
	width, height int
	profile       string
	haveKeyframe  bool

	captions *captionDecoder
	pictures int64

	window  []*media.Frame // sorted by PTS
	out     []*media.Frame
	flushed bool
	skipped int
}

func newVideoDecoder(info media.StreamInfo, opts Options, log *slog.Logger) *videoDecoder {
	d := &videoDecoder{
		info:  info,
		hevc:  info.Codec == "h265",
		depth: opts.ReorderDepth,
		log:   log,
	}
	if opts.Captions {
		d.captions = newCaptionDecoder()
	}
	return d
}

func (d *videoDecoder) decodeError(p *media.Packet, err error) error {
	return &DecodeError{Stream: d.info.Index, Codec: d.info.Codec, Sequence: p.Sequence, Err: err}
}

func (d *videoDecoder) SendPacket(p *media.Packet) error {
	if d.flushed {
		return ErrFlushed
	}

	var nalus []demux.NALUnit
	if d.hevc {
		nalus = demux.ParseAnnexBHEVC(p.Data)
	} else {
		nalus = demux.ParseAnnexB(p.Data)
	}
	if len(nalus) == 0 {
		return d.decodeError(p, fmt.Errorf("%w: no NAL units in %d bytes", ErrMalformed, len(p.Data)))
	}

	var (
		keyframe bool
		slices   bool
		captions []string
		units    = make([][]byte, 0, len(nalus))
	)
	for _, n := range nalus {
		units = append(units, n.Data)
		var err error
		if d.hevc {
			keyframe, slices, err = d.hevcUnit(n, keyframe, slices, &captions)
		} else {
			keyframe, slices, err = d.avcUnit(n, keyframe, slices, &captions)
		}
		if err != nil {
			return d.decodeError(p, err)
		}
	}
	if !slices {
		return nil
	}

	if !d.haveKeyframe {
		if !keyframe || d.sps == nil {
			d.skipped++
			d.log.Debug("waiting for keyframe", "sequence", p.Sequence)
			return nil
		}
		d.haveKeyframe = true
		if d.skipped > 0 {
			d.log.Info("skipped pictures before first keyframe", "count", d.skipped)
		}
	}

	d.pictures++
	f := &media.Frame{
		Type:        media.Video,
		StreamIndex: d.info.Index,
		PTS:         p.PTS,
		Sequence:    p.Sequence,
		Video: &media.VideoFrame{
			Width:    d.width,
			Height:   d.height,
			Codec:    d.info.Codec,
			Profile:  d.profile,
			Keyframe: keyframe,
			NALUs:    units,
			SPS:      d.sps,
			PPS:      d.pps,
			VPS:      d.vps,
			Captions: captions,
		},
	}
	d.insert(f)
	for len(d.window) > d.depth {
		d.out = append(d.out, d.window[0])
		d.window = d.window[1:]
	}
	return nil
}

func (d *videoDecoder) avcUnit(n demux.NALUnit, key, slices bool, captions *[]string) (bool, bool, error) {
	switch n.Type {
	case demux.NALSPS:
		info, err := demux.ParseSPS(n.Data)
		if err != nil {
			return key, slices, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		d.setSPS(n.Data, info.Width, info.Height, info.CodecString())
	case demux.NALPPS:
		d.pps = n.Data
	case demux.NALSEI:
		if d.captions != nil {
			*captions = append(*captions, d.captions.decode(n.Data, d.pictures)...)
		}
	case demux.NALSliceIDR:
		key, slices = true, true
	case demux.NALSlice:
		slices = true
	}
	return key, slices, nil
}

func (d *videoDecoder) hevcUnit(n demux.NALUnit, key, slices bool, captions *[]string) (bool, bool, error) {
	switch {
	case n.Type == demux.HEVCNALVPS:
		d.vps = n.Data
	case n.Type == demux.HEVCNALSPS:
		info, err := demux.ParseHEVCSPS(n.Data)
		if err != nil {
			return key, slices, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		d.setSPS(n.Data, info.Width, info.Height, info.CodecString())
	case n.Type == demux.HEVCNALPPS:
		d.pps = n.Data
	case n.Type == demux.HEVCNALSEIPrefix:
		if d.captions != nil && len(n.Data) > 2 {
			*captions = append(*captions, d.captions.decode(n.Data, d.pictures)...)
		}
	case demux.IsHEVCKeyframe(n.Type):
		key, slices = true, true
	case n.Type < demux.HEVCNALVPS:
		slices = true
	}
	return key, slices, nil
}

func (d *videoDecoder) setSPS(nal []byte, w, h int, profile string) {
	if w != d.width || h != d.height {
		d.log.Info("picture size", "width", w, "height", h, "profile", profile)
	}
	d.sps, d.width, d.height, d.profile = nal, w, h, profile
}

// insert places f after every buffered frame whose PTS is not greater, so
// equal timestamps keep decode order.
func (d *videoDecoder) insert(f *media.Frame) {
	i := sort.Search(len(d.window), func(i int) bool { return d.window[i].PTS > f.PTS })
	d.window = append(d.window, nil)
	copy(d.window[i+1:], d.window[i:])
	d.window[i] = f
}

func (d *videoDecoder) ReceiveFrame() (*media.Frame, error) {
	if len(d.out) > 0 {
		f := d.out[0]
		d.out = d.out[1:]
		return f, nil
	}
	if !d.flushed {
		return nil, ErrAgain
	}
	if len(d.window) > 0 {
		f := d.window[0]
		d.window = d.window[1:]
		return f, nil
	}
	return nil, io.EOF
}

func (d *videoDecoder) Flush() error {
	d.flushed = true
	return nil
}

func (d *videoDecoder) Close() error {
	d.window, d.out = nil, nil
	return nil
}
