package pipeline

import "github.com/zsiec/reel/internal/media"

// BestStream returns the first stream of type t whose codec is supported.
func BestStream(streams []media.StreamInfo, t media.Type, supported func(codec string) bool) (media.StreamInfo, bool) {
	for _, s := range streams {
		if s.Type == t && s.Codec != "" && supported(s.Codec) {
			return s, true
		}
	}
	return media.StreamInfo{}, false
}

// SelectStreams resolves the best stream for each requested type. Types
// with no playable stream are left out; the result keeps the order of types.
func SelectStreams(streams []media.StreamInfo, types []media.Type, supported func(codec string) bool) []media.StreamInfo {
	var out []media.StreamInfo
	seen := make(map[media.Type]bool, len(types))
	for _, t := range types {
		if seen[t] {
			continue
		}
		seen[t] = true
		if s, ok := BestStream(streams, t, supported); ok {
			out = append(out, s)
		}
	}
	return out
}
