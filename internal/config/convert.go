package config

import (
	"github.com/danmuck/edgekv/internal/logging"
	"github.com/danmuck/edgekv/internal/server"
)

// Server maps the file config onto server options.
func (c ServerConfig) Server() server.Config {
	return server.Config{
		Name:             c.Name,
		Addr:             c.Addr,
		AdminAddr:        c.AdminAddr,
		Workers:          c.Workers,
		Shards:           c.Shards,
		MaxFrameBytes:    c.MaxFrameBytes,
		IdleTimeout:      c.IdleTimeout,
		SubscriberBuffer: c.SubscriberBuffer,
		CORSOrigins:      append([]string(nil), c.CORSOrigins...),
	}
}

// Logging maps the [log] table onto a runtime logging config for app.
// Environment overrides are applied last.
func (c ServerConfig) Logging(app string) logging.Config {
	cfg := logging.DefaultConfig(logging.ProfileRuntime)
	cfg.App = app
	if lvl, ok := logging.ParseLevel(c.Log.Level); ok {
		cfg.Level = lvl
	}
	cfg.NoColor = c.Log.NoColor
	cfg.File = logging.FileConfig{
		Path:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
	logging.ApplyEnvOverrides(&cfg)
	return cfg
}
