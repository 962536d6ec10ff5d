package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Flag names shared by the commands.
const (
	FlagConfig          = "config"
	FlagQueueCapacity   = "queue-capacity"
	FlagPollInterval    = "poll-interval"
	FlagErrorPolicy     = "error-policy"
	FlagShutdownTimeout = "shutdown-timeout"
	FlagReorderDepth    = "reorder-depth"
	FlagCaptions        = "captions"
	FlagStreams         = "streams"
	FlagWidth           = "width"
	FlagHeight          = "height"
	FlagLogLevel        = "log-level"
	FlagLogFormat       = "log-format"
	FlagMetricsAddr     = "metrics-addr"
	FlagMonitorAddr     = "monitor-addr"
)

// RegisterFlags adds the configuration flags to fs with the built-in
// defaults. Only flags the user sets override the file and environment.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(FlagConfig, "", "path to a TOML configuration file")
	fs.Int(FlagQueueCapacity, d.Pipeline.QueueCapacity, "capacity of every packet and frame queue")
	fs.Duration(FlagPollInterval, d.Pipeline.PollInterval.Std(), "upper bound of a single queue wait")
	fs.String(FlagErrorPolicy, d.Pipeline.ErrorPolicy, "what a decode error does: abort or skip")
	fs.Duration(FlagShutdownTimeout, d.Pipeline.ShutdownTimeout.Std(), "time allowed for the stages to exit on stop")
	fs.Int(FlagReorderDepth, d.Pipeline.ReorderDepth, "pictures the video decoder holds back for reordering")
	fs.Bool(FlagCaptions, d.Pipeline.Captions, "extract CEA-608/708 captions")
	fs.StringSlice(FlagStreams, d.Pipeline.Streams, "media types to play, in order")
	fs.Int(FlagWidth, d.Presenter.Width, "window width used when the stream size is unknown")
	fs.Int(FlagHeight, d.Presenter.Height, "window height")
	fs.String(FlagLogLevel, d.Logging.Level, "log level: debug, info, warn or error")
	fs.String(FlagLogFormat, d.Logging.Format, "log format: text or json")
	fs.String(FlagMetricsAddr, d.Metrics.Addr, "address of the Prometheus endpoint; empty disables it")
	fs.String(FlagMonitorAddr, d.Monitor.Addr, "address of the QUIC monitor")
}

// ApplyFlags copies the flags that were set on the command line into c.
func ApplyFlags(c *Config, fs *pflag.FlagSet) error {
	var err error
	set := func(name string, apply func() error) {
		if err != nil || fs.Lookup(name) == nil || !fs.Changed(name) {
			return
		}
		if e := apply(); e != nil {
			err = fmt.Errorf("flag --%s: %w", name, e)
		}
	}

	set(FlagQueueCapacity, func() (e error) { c.Pipeline.QueueCapacity, e = fs.GetInt(FlagQueueCapacity); return })
	set(FlagPollInterval, func() error {
		d, e := fs.GetDuration(FlagPollInterval)
		c.Pipeline.PollInterval = Duration(d)
		return e
	})
	set(FlagErrorPolicy, func() (e error) { c.Pipeline.ErrorPolicy, e = fs.GetString(FlagErrorPolicy); return })
	set(FlagShutdownTimeout, func() error {
		d, e := fs.GetDuration(FlagShutdownTimeout)
		c.Pipeline.ShutdownTimeout = Duration(d)
		return e
	})
	set(FlagReorderDepth, func() (e error) { c.Pipeline.ReorderDepth, e = fs.GetInt(FlagReorderDepth); return })
	set(FlagCaptions, func() (e error) { c.Pipeline.Captions, e = fs.GetBool(FlagCaptions); return })
	set(FlagStreams, func() (e error) { c.Pipeline.Streams, e = fs.GetStringSlice(FlagStreams); return })
	set(FlagWidth, func() (e error) { c.Presenter.Width, e = fs.GetInt(FlagWidth); return })
	set(FlagHeight, func() (e error) { c.Presenter.Height, e = fs.GetInt(FlagHeight); return })
	set(FlagLogLevel, func() (e error) { c.Logging.Level, e = fs.GetString(FlagLogLevel); return })
	set(FlagLogFormat, func() (e error) { c.Logging.Format, e = fs.GetString(FlagLogFormat); return })
	set(FlagMetricsAddr, func() (e error) { c.Metrics.Addr, e = fs.GetString(FlagMetricsAddr); return })
	set(FlagMonitorAddr, func() (e error) { c.Monitor.Addr, e = fs.GetString(FlagMonitorAddr); return })
	return err
}

// FromFlags loads the file named by --config, applies the environment and
// the changed flags, and validates the result.
func FromFlags(fs *pflag.FlagSet) (Config, string, error) {
	path, _ := fs.GetString(FlagConfig)
	c, err := Load(path)
	if err != nil {
		return c, path, err
	}
	if err := ApplyFlags(&c, fs); err != nil {
		return c, path, err
	}
	return c, path, c.Validate()
}
