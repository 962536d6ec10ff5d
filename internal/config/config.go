// Package config loads the player configuration. Values come from, in
// increasing precedence: built-in defaults, a TOML file, REEL_* environment
// variables, and command line flags that were set explicitly.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/zsiec/reel/internal/logging"
	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/pipeline"
	"github.com/zsiec/reel/internal/present"
)

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "REEL_"

// Duration is a time.Duration written as a string such as "100ms" in TOML
// and in the environment.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the whole configuration file.
type Config struct {
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Presenter PresenterConfig `toml:"presenter"`
	Input     InputConfig     `toml:"input"`
	Logging   logging.Config  `toml:"logging"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Monitor   MonitorConfig   `toml:"monitor"`
}

// PipelineConfig is the [pipeline] section.
type PipelineConfig struct {
	QueueCapacity   int      `toml:"queue_capacity" env:"QUEUE_CAPACITY"`
	PollInterval    Duration `toml:"poll_interval" env:"POLL_INTERVAL"`
	ErrorPolicy     string   `toml:"error_policy" env:"ERROR_POLICY"`
	ShutdownTimeout Duration `toml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	ReorderDepth    int      `toml:"reorder_depth" env:"REORDER_DEPTH"`
	Captions        bool     `toml:"captions" env:"CAPTIONS"`
	Streams         []string `toml:"streams" env:"STREAMS"`
}

// PresenterConfig is the [presenter] section.
type PresenterConfig struct {
	Width        int      `toml:"width" env:"WIDTH"`
	Height       int      `toml:"height" env:"HEIGHT"`
	InitialDelay Duration `toml:"initial_delay" env:"INITIAL_DELAY"`
	MinDelay     Duration `toml:"min_delay" env:"MIN_DELAY"`
	IdleDelay    Duration `toml:"idle_delay" env:"IDLE_DELAY"`
}

// InputConfig is the [input] section.
type InputConfig struct {
	DialTimeout Duration `toml:"dial_timeout" env:"DIAL_TIMEOUT"`
}

// MetricsConfig is the [metrics] section. An empty address disables the
// endpoint.
type MetricsConfig struct {
	Addr string `toml:"addr" env:"METRICS_ADDR"`
}

// MonitorConfig is the [monitor] section.
type MonitorConfig struct {
	Addr         string   `toml:"addr" env:"MONITOR_ADDR"`
	Fingerprint  string   `toml:"fingerprint" env:"MONITOR_FINGERPRINT"`
	CertValidity Duration `toml:"cert_validity" env:"MONITOR_CERT_VALIDITY"`
}

// Default returns the built-in configuration.
func Default() Config {
	pc := pipeline.DefaultConfig()
	prc := present.DefaultConfig()
	return Config{
		Pipeline: PipelineConfig{
			QueueCapacity:   pc.QueueCapacity,
			PollInterval:    Duration(pc.PollInterval),
			ErrorPolicy:     string(pc.ErrorPolicy),
			ShutdownTimeout: Duration(pc.ShutdownTimeout),
			ReorderDepth:    pc.ReorderDepth,
			Captions:        pc.Captions,
			Streams:         []string{"video", "audio"},
		},
		Presenter: PresenterConfig{
			Width:        640,
			Height:       480,
			InitialDelay: Duration(prc.InitialDelay),
			MinDelay:     Duration(prc.MinDelay),
			IdleDelay:    Duration(prc.IdleDelay),
		},
		Input: InputConfig{
			DialTimeout: Duration(10 * time.Second),
		},
		Logging: logging.DefaultConfig(),
		Monitor: MonitorConfig{
			Addr:         "127.0.0.1:4443",
			CertValidity: Duration(14 * 24 * time.Hour),
		},
	}
}

// Load returns the defaults overlaid with the file at path (if path is not
// empty) and the environment. Unknown keys in the file are an error.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		if err := c.loadFile(path); err != nil {
			return c, err
		}
	}
	if err := applyEnv(&c, os.LookupEnv); err != nil {
		return c, err
	}
	return c, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("parse config %s: %s", path, strict.String())
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if _, err := c.PipelineConfig(); err != nil {
		errs = append(errs, err)
	}
	if c.Presenter.Width < 1 || c.Presenter.Height < 1 {
		errs = append(errs, fmt.Errorf("presenter size must be positive, got %dx%d", c.Presenter.Width, c.Presenter.Height))
	}
	if c.Presenter.MinDelay < 0 || c.Presenter.IdleDelay <= 0 {
		errs = append(errs, errors.New("presenter delays must be positive"))
	}
	if c.Logging.Level != "" && !logging.ValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Logging.Level))
	}
	if f := c.Logging.Format; f != "" && f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q (want text or json)", f))
	}
	return errors.Join(errs...)
}

// PipelineConfig converts the [pipeline] section.
func (c Config) PipelineConfig() (pipeline.Config, error) {
	policy, err := pipeline.ParsePolicy(c.Pipeline.ErrorPolicy)
	if err != nil {
		return pipeline.Config{}, err
	}
	types, err := ParseStreamTypes(c.Pipeline.Streams)
	if err != nil {
		return pipeline.Config{}, err
	}
	pc := pipeline.Config{
		QueueCapacity:   c.Pipeline.QueueCapacity,
		PollInterval:    c.Pipeline.PollInterval.Std(),
		ErrorPolicy:     policy,
		ShutdownTimeout: c.Pipeline.ShutdownTimeout.Std(),
		ReorderDepth:    c.Pipeline.ReorderDepth,
		Captions:        c.Pipeline.Captions,
		Types:           types,
	}
	return pc, pc.Validate()
}

// PresenterConfig converts the [presenter] section.
func (c Config) PresenterConfig() present.Config {
	return present.Config{
		InitialDelay: c.Presenter.InitialDelay.Std(),
		MinDelay:     c.Presenter.MinDelay.Std(),
		IdleDelay:    c.Presenter.IdleDelay.Std(),
	}
}

// ParseStreamTypes converts names such as "video" to media types, keeping
// their order.
func ParseStreamTypes(names []string) ([]media.Type, error) {
	out := make([]media.Type, 0, len(names))
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "video":
			out = append(out, media.Video)
		case "audio":
			out = append(out, media.Audio)
		default:
			return nil, fmt.Errorf("unknown stream type %q (want video or audio)", n)
		}
	}
	return out, nil
}
