package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/edgekv/internal/config"
	"github.com/danmuck/edgekv/internal/logging"
	"github.com/danmuck/edgekv/internal/server"
	"github.com/rs/zerolog/log"
)

type overrides struct {
	addr    string
	admin   string
	workers int
}

func main() {
	var (
		configPath string
		initPath   string
		force      bool
		ov         overrides
	)
	flag.StringVar(&configPath, "config", "", "path to a TOML config file")
	flag.StringVar(&ov.addr, "addr", "", "listen address (overrides config)")
	flag.StringVar(&ov.admin, "admin", "", "admin HTTP address (overrides config)")
	flag.IntVar(&ov.workers, "workers", 0, "worker pool size (overrides config)")
	flag.StringVar(&initPath, "init", "", "write a config template to this path and exit")
	flag.BoolVar(&force, "force", false, "overwrite an existing file with -init")
	flag.Parse()

	if initPath != "" {
		if err := config.WriteTemplate(initPath, "server", force); err != nil {
			fmt.Fprintf(os.Stderr, "kvserver: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote server config template to %s\n", initPath)
		return
	}

	cfg, err := resolveConfig(configPath, ov)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kvserver: %v\n", err)
		os.Exit(2)
	}
	logging.Apply(cfg.Logging("kvserver"))

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("kvserver stopped")
		os.Exit(1)
	}
}

// resolveConfig loads path when set, else defaults, then applies flag overrides.
func resolveConfig(path string, ov overrides) (config.ServerConfig, error) {
	cfg := config.Default()
	if strings.TrimSpace(path) != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.ServerConfig{}, err
		}
		cfg = loaded
	}
	if v := strings.TrimSpace(ov.addr); v != "" {
		cfg.Addr = v
	}
	if v := strings.TrimSpace(ov.admin); v != "" {
		cfg.AdminAddr = v
	}
	if ov.workers != 0 {
		cfg.Workers = ov.workers
	}
	if err := cfg.Validate(); err != nil {
		return config.ServerConfig{}, err
	}
	return cfg, nil
}

func run(cfg config.ServerConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(cfg.Server())
	if err != nil {
		return err
	}
	log.Info().
		Str("addr", cfg.Addr).
		Str("admin", cfg.AdminAddr).
		Int("workers", cfg.Workers).
		Int("shards", cfg.Shards).
		Msg("kvserver starting")

	err = srv.ListenAndServe(ctx)
	srv.Shutdown()
	return err
}
