package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/edgekv/internal/logging"
	"github.com/danmuck/edgekv/internal/server"
)

var ErrInvalidConfig = errors.New("config: invalid")

// ServerConfig is the resolved kvserver configuration.
type ServerConfig struct {
	Name             string
	Addr             string
	AdminAddr        string
	Workers          int
	Shards           int
	MaxFrameBytes    uint32
	IdleTimeout      time.Duration
	SubscriberBuffer int
	CORSOrigins      []string
	Log              LogConfig
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	NoColor    bool
}

type fileConfig struct {
	Name             string   `toml:"name"`
	Addr             string   `toml:"addr"`
	AdminAddr        string   `toml:"admin_addr"`
	Workers          int      `toml:"workers"`
	Shards           int      `toml:"shards"`
	MaxFrameBytes    int64    `toml:"max_frame_bytes"`
	IdleTimeout      string   `toml:"idle_timeout"`
	SubscriberBuffer int      `toml:"subscriber_buffer"`
	CORSOrigins      []string `toml:"cors_origins"`
	Log              fileLog  `toml:"log"`
}

type fileLog struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
	NoColor    bool   `toml:"no_color"`
}

func Default() ServerConfig {
	d := server.DefaultConfig()
	return ServerConfig{
		Name:             d.Name,
		Addr:             d.Addr,
		Workers:          d.Workers,
		Shards:           d.Shards,
		MaxFrameBytes:    d.MaxFrameBytes,
		IdleTimeout:      d.IdleTimeout,
		SubscriberBuffer: d.SubscriberBuffer,
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// Load reads path and applies every key it defines on top of Default.
func Load(path string) (ServerConfig, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("load server config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return ServerConfig{}, fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, undecoded[0].String())
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("workers") {
		cfg.Workers = raw.Workers
	}
	if meta.IsDefined("shards") {
		cfg.Shards = raw.Shards
	}
	if meta.IsDefined("max_frame_bytes") {
		if raw.MaxFrameBytes <= 0 || raw.MaxFrameBytes > int64(^uint32(0)) {
			return ServerConfig{}, fmt.Errorf("%w: max_frame_bytes out of range: %d", ErrInvalidConfig, raw.MaxFrameBytes)
		}
		cfg.MaxFrameBytes = uint32(raw.MaxFrameBytes)
	}
	if meta.IsDefined("idle_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.IdleTimeout))
		if err != nil {
			return ServerConfig{}, fmt.Errorf("parse idle_timeout: %w", err)
		}
		cfg.IdleTimeout = d
	}
	if meta.IsDefined("subscriber_buffer") {
		cfg.SubscriberBuffer = raw.SubscriberBuffer
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = normalizeList(raw.CORSOrigins)
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "file") {
		cfg.Log.File = strings.TrimSpace(raw.Log.File)
	}
	if meta.IsDefined("log", "max_size_mb") {
		cfg.Log.MaxSizeMB = raw.Log.MaxSizeMB
	}
	if meta.IsDefined("log", "max_backups") {
		cfg.Log.MaxBackups = raw.Log.MaxBackups
	}
	if meta.IsDefined("log", "max_age_days") {
		cfg.Log.MaxAgeDays = raw.Log.MaxAgeDays
	}
	if meta.IsDefined("log", "compress") {
		cfg.Log.Compress = raw.Log.Compress
	}
	if meta.IsDefined("log", "no_color") {
		cfg.Log.NoColor = raw.Log.NoColor
	}

	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func (c ServerConfig) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr is required", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, c.Workers)
	case c.Shards < 1:
		return fmt.Errorf("%w: shards must be at least 1, got %d", ErrInvalidConfig, c.Shards)
	case c.MaxFrameBytes == 0:
		return fmt.Errorf("%w: max_frame_bytes must be positive", ErrInvalidConfig)
	case c.IdleTimeout < 0:
		return fmt.Errorf("%w: idle_timeout must not be negative", ErrInvalidConfig)
	case c.SubscriberBuffer < 1:
		return fmt.Errorf("%w: subscriber_buffer must be at least 1, got %d", ErrInvalidConfig, c.SubscriberBuffer)
	}
	if _, ok := logging.ParseLevel(c.Log.Level); !ok {
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Log.Level)
	}
	return nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
