package config

import "flag"

// parseFlags populates Config fields from command-line flags. Flags win
// over environment variables, which win over defaults.
func parseFlags(cfg *Config, args []string) {
	fs := flag.NewFlagSet("codeshare-server", flag.ExitOnError)

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "address and port to listen on")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the sqlite database file")
	fs.DurationVar(&cfg.SnippetTTL, "ttl", cfg.SnippetTTL, "snippet time-to-live")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "how often expired snippets are purged")
	fs.StringVar(&cfg.AllowedOrigin, "origin", cfg.AllowedOrigin, "allowed CORS origin")

	fs.Parse(args)
}
