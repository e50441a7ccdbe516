// Package config holds runtime settings for the syncd daemon. Values are
// resolved in three layers: built-in defaults, an optional JSON file, then
// command-line flags. Later layers win.
package config

import (
	"os"
	"time"
)

type Config struct {
	// APIBaseURL is the backend REST endpoint.
	APIBaseURL string
	// AuthToken is the bearer token attached to backend requests; may be
	// empty for anonymous installs.
	AuthToken string
	// DatabasePath is the SQLite file backing both persistence stores.
	DatabasePath string
	// DNSProfilePath is where the private-DNS profile document is written.
	DNSProfilePath string
	// DNSDomain is the resolver domain device tags are scoped under.
	DNSDomain string
	// DeviceName is the human-readable name stamped on DNS profiles.
	DeviceName string
	// MetricsAddr is the Prometheus listen address; empty disables it.
	MetricsAddr string

	// UserDebounce coalesces user-driven requests (restore, propose,
	// retention changes).
	UserDebounce time.Duration
	// DeviceRefreshDebounce coalesces device refresh triggers.
	DeviceRefreshDebounce time.Duration
	// AccountRefreshInterval is the minimum account age before a wake
	// triggers an implicit refresh.
	AccountRefreshInterval time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.APIBaseURL = "https://api.aegisdns.io"
	c.DatabasePath = "syncd.db"
	c.DNSProfilePath = "dns-profile.json"
	c.DNSDomain = "d.aegisdns.io"
	c.MetricsAddr = "127.0.0.1:9100"
	c.UserDebounce = time.Second
	c.DeviceRefreshDebounce = 3 * time.Second
	c.AccountRefreshInterval = 600 * time.Second

	if host, err := os.Hostname(); err == nil {
		c.DeviceName = host
	} else {
		c.DeviceName = "aegisdns-device"
	}
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present).
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
