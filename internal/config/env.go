package config

import (
	"os"
	"time"
)

// applyEnv overlays settings from CODESHARE_* environment variables.
// Durations use Go syntax, e.g. "24h" or "90m". Unparseable values are
// ignored and the previous value stands.
func applyEnv(cfg *Config) {
	if v := os.Getenv("CODESHARE_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("CODESHARE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("CODESHARE_SNIPPET_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SnippetTTL = d
		}
	}
	if v := os.Getenv("CODESHARE_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SweepInterval = d
		}
	}
	if v := os.Getenv("CODESHARE_ALLOWED_ORIGIN"); v != "" {
		cfg.AllowedOrigin = v
	}
}
