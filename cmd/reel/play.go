package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zsiec/reel/internal/metrics"
	"github.com/zsiec/reel/internal/player"
)

func newPlayCmd(a *app) *cobra.Command {
	var (
		attach      bool
		fingerprint string
		watch       bool
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "play <input>",
		Short: "Play a file, stdin (-) or srt://host:port",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if fingerprint != "" {
				cfg.Monitor.Fingerprint = fingerprint
			}
			res, err := player.Run(cmd.Context(), player.Options{
				Config:     cfg,
				Input:      args[0],
				ConfigPath: a.cfgPath,
				Watch:      watch,
				Monitor:    attach,
				Stdin:      cmd.InOrStdin(),
				Metrics:    metrics.New(true),
			})
			if res.RunID != "" {
				if perr := printResult(cmd, res, asJSON); perr != nil && err == nil {
					err = perr
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&attach, "monitor", false, "forward the presentation to the monitor at --monitor-addr")
	cmd.Flags().StringVar(&fingerprint, "monitor-fingerprint", "", "base64 SHA-256 fingerprint of the monitor certificate")
	cmd.Flags().BoolVar(&watch, "watch-config", false, "reload logging settings when the --config file changes")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the playback summary as JSON")
	return cmd
}

func printResult(cmd *cobra.Command, res player.Result, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintf(out, "run %s\n", res.RunID)
	for _, s := range res.Streams {
		fmt.Fprintf(out, "  stream %s\n", s)
	}
	fmt.Fprintf(out, "  pictures %d, captions %d, audio frames %d\n", res.Pictures, res.Captions, res.AudioFrames)
	fmt.Fprintf(out, "  read %d bytes in %d reads, %d packets\n", res.Input.BytesRead, res.Input.ReadCount, res.Demux.Packets)
	for _, st := range res.Stages {
		fmt.Fprintf(out, "  %-13s %-8s packets %d, frames %d, dropped %d\n", st.Name, st.State, st.Packets, st.Frames, st.Dropped)
	}
	fmt.Fprintf(out, "  elapsed %s\n", res.Elapsed.Round(time.Millisecond))
	return nil
}
