package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zsiec/reel/internal/codec"
	"github.com/zsiec/reel/internal/config"
	"github.com/zsiec/reel/internal/demux"
	"github.com/zsiec/reel/internal/input"
	"github.com/zsiec/reel/internal/logging"
	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/pipeline"
)

type probeStream struct {
	media.StreamInfo
	Selected  bool  `json:"selected"`
	Supported bool  `json:"supported"`
	Packets   int   `json:"packets"`
	Keyframes int   `json:"keyframes"`
	FirstPTS  int64 `json:"firstPts"`
}

type probeReport struct {
	Input   string        `json:"input"`
	Streams []probeStream `json:"streams"`
	Demux   demux.Stats   `json:"demux"`
	Read    input.Stats   `json:"read"`
}

func newProbeCmd(a *app) *cobra.Command {
	var (
		packets int
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "probe <input>",
		Short: "List the streams of an input and the ones play would pick",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := probe(cmd, a.cfg, args[0], packets)
			if err != nil {
				return err
			}
			return printProbe(cmd.OutOrStdout(), rep, asJSON)
		},
	}
	cmd.Flags().IntVar(&packets, "packets", 200, "packets to read for per-stream counts; 0 reads none")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func probe(cmd *cobra.Command, cfg config.Config, name string, packets int) (probeReport, error) {
	rep := probeReport{Input: name}
	types, err := config.ParseStreamTypes(cfg.Pipeline.Streams)
	if err != nil {
		return rep, err
	}

	in, err := input.Open(cmd.Context(), name, input.Options{
		DialTimeout: cfg.Input.DialTimeout.Std(),
		Log:         logging.GetLogger("input"),
		Stdin:       cmd.InOrStdin(),
	})
	if err != nil {
		return rep, err
	}
	defer in.Close()

	dmx, err := demux.Open(cmd.Context(), in, demux.WithLogger(logging.GetLogger("demux")))
	if err != nil {
		return rep, fmt.Errorf("open %s: %w", name, err)
	}

	selected := make(map[int]bool)
	for _, s := range pipeline.SelectStreams(dmx.Streams(), types, codec.Supported) {
		selected[s.Index] = true
	}
	byIndex := make(map[int]int)
	for _, s := range dmx.Streams() {
		byIndex[s.Index] = len(rep.Streams)
		rep.Streams = append(rep.Streams, probeStream{
			StreamInfo: s,
			Selected:   selected[s.Index],
			Supported:  codec.Supported(s.Codec),
			FirstPTS:   media.NoTimestamp,
		})
	}

	for n := 0; n < packets; n++ {
		p, err := dmx.ReadPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rep, err
		}
		i, ok := byIndex[p.StreamIndex]
		if !ok {
			continue
		}
		st := &rep.Streams[i]
		st.Packets++
		if p.Keyframe {
			st.Keyframes++
		}
		if st.FirstPTS == media.NoTimestamp {
			st.FirstPTS = p.PTS
		}
	}
	rep.Demux = dmx.Stats()
	rep.Read = in.Stats()
	return rep, nil
}

func printProbe(out io.Writer, rep probeReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	fmt.Fprintf(out, "%s\n", rep.Input)
	for _, s := range rep.Streams {
		mark := " "
		if s.Selected {
			mark = "*"
		}
		support := ""
		if !s.Supported {
			support = " (unsupported)"
		}
		fmt.Fprintf(out, "%s %s%s  packets %d, keyframes %d\n", mark, s.StreamInfo, support, s.Packets, s.Keyframes)
	}
	fmt.Fprintf(out, "transport packets %d, continuity errors %d, corrupt %d\n",
		rep.Demux.ReaderStats.Packets, rep.Demux.ContinuityErrors, rep.Demux.CorruptPackets)
	return nil
}
