package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/reel/internal/certs"
	"github.com/zsiec/reel/internal/logging"
	"github.com/zsiec/reel/internal/monitor"
)

func newMonitorCmd(a *app) *cobra.Command {
	var (
		hosts    []string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Accept players over QUIC and log what they present",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.GetLogger("monitor")
			cert, err := certs.Generate(a.cfg.Monitor.CertValidity.Std(), hosts...)
			if err != nil {
				return err
			}
			log.Info("certificate generated",
				"fingerprint", cert.FingerprintBase64(),
				"expires", cert.NotAfter.Format(time.RFC3339),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "reel play --monitor --monitor-addr %s --monitor-fingerprint %s <input>\n",
				a.cfg.Monitor.Addr, cert.FingerprintBase64())

			srv := monitor.NewServer(a.cfg.Monitor.Addr, cert, monitor.WithServerLogger(log))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return srv.Run(ctx) })
			if interval > 0 {
				g.Go(func() error {
					ticker := time.NewTicker(interval)
					defer ticker.Stop()
					for {
						select {
						case <-ctx.Done():
							return nil
						case <-ticker.C:
							for _, s := range srv.Registry().List() {
								st := s.Stats()
								log.Info("session", "run_id", st.RunID, "source", st.Source,
									"pictures", st.Pictures, "audio", st.Audio, "bytes", st.Bytes, "last_pts", st.LastPTS)
							}
						}
					}
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringSliceVar(&hosts, "host", nil, "extra DNS name or IP for the certificate; repeatable")
	cmd.Flags().DurationVar(&interval, "stats-interval", 10*time.Second, "how often to log session counters; 0 disables")
	return cmd
}
