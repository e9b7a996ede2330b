// Package config handles runtime settings for the codeshare server,
// including defaults, environment overrides, and command-line flags.
package config

import (
	"os"
	"time"
)

// Config holds runtime settings for the codeshare server.
type Config struct {
	Addr          string
	DBPath        string
	SnippetTTL    time.Duration
	SweepInterval time.Duration
	AllowedOrigin string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.Addr = ":8080"
	c.DBPath = "./data/codeshare.db"
	c.SnippetTTL = 24 * time.Hour
	c.SweepInterval = time.Hour
	c.AllowedOrigin = "*"
}

// Load builds a Config by applying defaults, then overlaying values from
// the environment and finally from command-line flags.
func Load() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	applyEnv(cfg)
	parseFlags(cfg, os.Args[1:])
	return cfg
}
