package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zsiec/reel/internal/config"
	"github.com/zsiec/reel/internal/logging"
)

var version = "dev"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("reel failed", "error", err)
		os.Exit(1)
	}
}

// app carries the configuration resolved before a subcommand runs.
type app struct {
	cfg     config.Config
	cfgPath string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "reel",
		Short:         "Play MPEG-TS streams through a staged demux, decode and present pipeline",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := config.FromFlags(cmd.Flags())
			if err != nil {
				return err
			}
			a.cfg, a.cfgPath = cfg, path
			logging.Initialize(cfg.Logging)
			return nil
		},
	}
	config.RegisterFlags(root.PersistentFlags())
	root.AddCommand(
		newPlayCmd(a),
		newProbeCmd(a),
		newGenCmd(),
		newMonitorCmd(a),
	)
	return root
}
