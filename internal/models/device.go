package models

import "slices"

// BlocklistID identifies one content blocklist enabled for the device.
type BlocklistID string

// RetentionPolicy is the activity-log retention choice. The backend is
// authoritative; the client treats the value as opaque apart from the
// known constants below.
type RetentionPolicy string

const (
	RetentionNone   RetentionPolicy = "none"
	Retention24h    RetentionPolicy = "24h"
	Retention7Days  RetentionPolicy = "7d"
	Retention30Days RetentionPolicy = "30d"
	Retention90Days RetentionPolicy = "90d"
)

// DevicePayload is the backend-authoritative device/subscription bundle.
// It is always fetched wholesale; retention is the only field with a
// client-side write path, and even that is reconciled by a full re-fetch.
type DevicePayload struct {
	Tag       string          `json:"device_tag"`
	Lists     []BlocklistID   `json:"lists"`
	Retention RetentionPolicy `json:"retention"`
	Paused    bool            `json:"paused"`
}

// Equal reports whether two payloads carry the same values. Used for
// duplicate suppression on the device stream.
func (d DevicePayload) Equal(other DevicePayload) bool {
	return d.Tag == other.Tag &&
		d.Retention == other.Retention &&
		d.Paused == other.Paused &&
		slices.Equal(d.Lists, other.Lists)
}
