package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "server", "kvserver":
		return serverTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const serverTemplate = `name = "edgekv"
addr = "127.0.0.1:6379"
admin_addr = "127.0.0.1:6380"
workers = 4
shards = 32
max_frame_bytes = 8388608
idle_timeout = "5m"
subscriber_buffer = 64
cors_origins = ["http://localhost:3000"]

[log]
level = "info"
file = ""
max_size_mb = 10
max_backups = 3
max_age_days = 7
compress = false
no_color = false
`
