// Package dnsprofile abstracts the OS private-DNS integration. The device
// tag names a per-device DNS-over-TLS endpoint; saving a profile points the
// host resolver at it.
package dnsprofile

import "context"

type Manager interface {
	// IsProfileActive reports whether a profile saved by us is currently
	// in place. Queried on each foreground entry; never cached.
	IsProfileActive(ctx context.Context) (bool, error)

	// SaveProfile installs (or replaces) the profile for the given device
	// tag and human-readable device name.
	SaveProfile(ctx context.Context, tag, deviceName string) error
}
