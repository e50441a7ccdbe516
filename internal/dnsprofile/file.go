package dnsprofile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// profile is the on-disk document consumed by the host resolver hook.
type profile struct {
	ServerName string    `json:"server_name"`
	DeviceName string    `json:"device_name"`
	SavedAt    time.Time `json:"saved_at"`
}

// FileManager persists the DNS profile as a JSON file. The DoT server name
// is derived from the device tag under the given resolver domain.
type FileManager struct {
	path   string
	domain string
}

func NewFileManager(path, domain string) *FileManager {
	return &FileManager{path: path, domain: domain}
}

func (m *FileManager) IsProfileActive(_ context.Context) (bool, error) {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read dns profile: %w", err)
	}

	var p profile
	if err := json.Unmarshal(data, &p); err != nil {
		// A mangled profile is treated as inactive rather than an error;
		// the next save overwrites it.
		return false, nil
	}
	return p.ServerName != "", nil
}

func (m *FileManager) SaveProfile(_ context.Context, tag, deviceName string) error {
	p := profile{
		ServerName: fmt.Sprintf("%s.%s", tag, m.domain),
		DeviceName: deviceName,
		SavedAt:    time.Now().UTC(),
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode dns profile: %w", err)
	}

	// Write-then-rename so the resolver hook never reads a partial file.
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write dns profile: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("failed to install dns profile: %w", err)
	}
	return nil
}

// ServerName reports the DoT endpoint that SaveProfile would install for
// the given tag. Exposed for status output.
func (m *FileManager) ServerName(tag string) string {
	return fmt.Sprintf("%s.%s", tag, m.domain)
}
