package config

import (
	"encoding/json"
	"os"

	"github.com/aegisdns/syncd/internal/flagx"
	"github.com/aegisdns/syncd/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations
// rely on timex.Duration so the file can say "3s" or integer nanoseconds.
type JsonConfig struct {
	APIBaseURL             string         `json:"api_base_url"`
	AuthToken              string         `json:"auth_token"`
	DatabasePath           string         `json:"database_path"`
	DNSProfilePath         string         `json:"dns_profile_path"`
	DNSDomain              string         `json:"dns_domain"`
	DeviceName             string         `json:"device_name"`
	MetricsAddr            string         `json:"metrics_addr"`
	UserDebounce           timex.Duration `json:"user_debounce"`
	DeviceRefreshDebounce  timex.Duration `json:"device_refresh_debounce"`
	AccountRefreshInterval timex.Duration `json:"account_refresh_interval"`
}

// parseJson overlays cfg with values from the JSON file named by the -c or
// -config flag. Absent flag means no JSON layer. Only fields present in the
// file override defaults; read or parse errors panic (the daemon should not
// start on a broken config).
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.APIBaseURL != "" {
		cfg.APIBaseURL = jc.APIBaseURL
	}
	if jc.AuthToken != "" {
		cfg.AuthToken = jc.AuthToken
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.DNSProfilePath != "" {
		cfg.DNSProfilePath = jc.DNSProfilePath
	}
	if jc.DNSDomain != "" {
		cfg.DNSDomain = jc.DNSDomain
	}
	if jc.DeviceName != "" {
		cfg.DeviceName = jc.DeviceName
	}
	if jc.MetricsAddr != "" {
		cfg.MetricsAddr = jc.MetricsAddr
	}
	if jc.UserDebounce.Duration > 0 {
		cfg.UserDebounce = jc.UserDebounce.Duration
	}
	if jc.DeviceRefreshDebounce.Duration > 0 {
		cfg.DeviceRefreshDebounce = jc.DeviceRefreshDebounce.Duration
	}
	if jc.AccountRefreshInterval.Duration > 0 {
		cfg.AccountRefreshInterval = jc.AccountRefreshInterval.Duration
	}
}
