package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/zsiec/reel/internal/logging"
	"github.com/zsiec/reel/internal/synth"
)

func newGenCmd() *cobra.Command {
	sc := synth.DefaultConfig()
	var noAudio bool
	cmd := &cobra.Command{
		Use:   "gen <output>",
		Short: "Write a synthetic H.264/AAC transport stream (- for stdout)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc.Audio = !noAudio
			var w io.Writer = cmd.OutOrStdout()
			if args[0] != "-" {
				f, err := os.Create(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			bw := bufio.NewWriter(w)
			sum, err := synth.Generate(cmd.Context(), bw, sc)
			if err != nil {
				return fmt.Errorf("generate: %w", err)
			}
			if err := bw.Flush(); err != nil {
				return err
			}
			logging.GetLogger("gen").Info("stream written",
				slog.String("output", args[0]),
				slog.Int("video_frames", sum.VideoFrames),
				slog.Int("audio_frames", sum.AudioFrames),
				slog.Int("captions", sum.Captions),
				slog.Int64("bytes", sum.Bytes),
			)
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&sc.Frames, "frames", sc.Frames, "number of pictures")
	f.IntVar(&sc.Width, "gen-width", sc.Width, "picture width")
	f.IntVar(&sc.Height, "gen-height", sc.Height, "picture height")
	f.IntVar(&sc.FPS, "fps", sc.FPS, "frame rate")
	f.IntVar(&sc.GOP, "gop", sc.GOP, "pictures per IDR period")
	f.IntVar(&sc.SliceBytes, "slice-bytes", sc.SliceBytes, "filler bytes per picture")
	f.BoolVar(&noAudio, "no-audio", false, "omit the AAC stream")
	f.IntVar(&sc.SampleRate, "sample-rate", sc.SampleRate, "audio sample rate")
	f.IntVar(&sc.Channels, "channels", sc.Channels, "audio channels")
	f.StringSliceVar(&sc.Captions, "caption", nil, "caption text to embed; repeatable")
	f.IntVar(&sc.CaptionPeriod, "caption-period", sc.CaptionPeriod, "pictures between caption starts")
	return cmd
}
