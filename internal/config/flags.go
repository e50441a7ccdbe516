package config

import (
	"flag"
	"os"

	"github.com/aegisdns/syncd/internal/flagx"
)

// parseFlags overlays selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   backend API base URL
//	-b string   SQLite database path
//	-m string   metrics listen address ("" disables)
//	-n string   device name for DNS profiles
//	-t string   backend auth token
//
// Only the flags handled here are parsed (via flagx.FilterArgs) so flags
// owned by main or other packages pass through untouched.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-b", "-m", "-n", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.APIBaseURL, "a", cfg.APIBaseURL, "backend API base URL")
	fs.StringVar(&cfg.DatabasePath, "b", cfg.DatabasePath, "sqlite database path")
	fs.StringVar(&cfg.MetricsAddr, "m", cfg.MetricsAddr, "metrics listen address")
	fs.StringVar(&cfg.DeviceName, "n", cfg.DeviceName, "device name")
	fs.StringVar(&cfg.AuthToken, "t", cfg.AuthToken, "backend auth token")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
