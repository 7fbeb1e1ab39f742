// Package config loads the settings of the ragtime command: defaults,
// overlaid by an optional TOML file, overlaid by RAGTIME_* environment
// variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	gojafs "github.com/joeycumines/go-ragtime/goja-fs"
	gojahttp "github.com/joeycumines/go-ragtime/goja-http"
	"github.com/joeycumines/go-ragtime/internal/logging"
	"github.com/joeycumines/go-ragtime/ragtime"
	"github.com/joeycumines/go-ragtime/streams"
	"github.com/joeycumines/go-ragtime/timers"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix prefixes every environment variable, e.g. RAGTIME_LOG_LEVEL.
const EnvPrefix = `RAGTIME`

// Config holds all settings. Field tags name the TOML key and the
// environment variable (after the prefix).
type Config struct {
	MaxFileSize         int      `toml:"max_file_size" envconfig:"MAX_FILE_SIZE"`
	TimerCapacity       int      `toml:"timer_capacity" envconfig:"TIMER_CAPACITY"`
	StreamHighWatermark int      `toml:"stream_high_watermark" envconfig:"STREAM_HIGH_WATERMARK"`
	StreamChunkSize     int      `toml:"stream_chunk_size" envconfig:"STREAM_CHUNK_SIZE"`
	DialTimeout         Duration `toml:"dial_timeout" envconfig:"DIAL_TIMEOUT"`
	ListenHost          string   `toml:"listen_host" envconfig:"LISTEN_HOST"`
	LogLevel            string   `toml:"log_level" envconfig:"LOG_LEVEL"`
	MetricsAddr         string   `toml:"metrics_addr" envconfig:"METRICS_ADDR"`
	// AcceptRate limits connections per second from each remote host to
	// script servers. Zero is unlimited.
	AcceptRate int `toml:"accept_rate" envconfig:"ACCEPT_RATE"`
}

// Duration is a time.Duration written as a string, e.g. "30s".
type Duration time.Duration

// MarshalText implements [encoding.TextMarshaler], e.g. "30s".
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler], accepting any
// [time.ParseDuration] string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		MaxFileSize:         gojafs.DefaultMaxFileSize,
		TimerCapacity:       timers.DefaultCapacity,
		StreamHighWatermark: streams.DefaultHighWatermark,
		StreamChunkSize:     streams.DefaultChunkSize,
		DialTimeout:         Duration(gojahttp.DefaultDialTimeout),
		LogLevel:            `warning`,
	}
}

// Load returns the defaults overlaid by the TOML file at path, if path is
// not empty, then by the environment. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != `` {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := cfg.decodeTOML(data); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeTOML(data []byte) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(c)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.MaxFileSize <= 0:
		return errors.New("config: max_file_size must be positive")
	case c.TimerCapacity <= 0:
		return errors.New("config: timer_capacity must be positive")
	case c.StreamHighWatermark <= 0:
		return errors.New("config: stream_high_watermark must be positive")
	case c.StreamChunkSize <= 0:
		return errors.New("config: stream_chunk_size must be positive")
	case c.DialTimeout < 0:
		return errors.New("config: dial_timeout must not be negative")
	case c.AcceptRate < 0:
		return errors.New("config: accept_rate must not be negative")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// RuntimeOptions returns the runtime options for c.
func (c *Config) RuntimeOptions() []ragtime.Option {
	opts := []ragtime.Option{
		ragtime.WithMaxFileSize(c.MaxFileSize),
		ragtime.WithTimerCapacity(c.TimerCapacity),
		ragtime.WithStreamOptions(
			streams.WithHighWatermark(c.StreamHighWatermark),
			streams.WithChunkSize(c.StreamChunkSize),
		),
		ragtime.WithDialTimeout(time.Duration(c.DialTimeout)),
		ragtime.WithListenHost(c.ListenHost),
	}
	if c.AcceptRate > 0 {
		opts = append(opts, ragtime.WithAcceptRates(map[time.Duration]int{time.Second: c.AcceptRate}))
	}
	return opts
}

// Encode renders c as TOML, e.g. to print the effective settings.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}

