// Package kv provides the string-keyed persistence contract the stores use
// for identity state, plus SQLite-backed and in-memory implementations.
//
// Two instances are wired in production: a device-local store and a synced
// ("remote") store. Either may fail or miss; a read-miss is reported as
// common.ErrNotFound so callers can distinguish "empty" from "broken".
package kv

import "context"

type Store interface {
	// Get returns the value for key, or an error wrapping
	// common.ErrNotFound when the key has never been set.
	Get(ctx context.Context, key string) (string, error)

	// Set writes the value for key, replacing any previous value.
	Set(ctx context.Context, key string, value string) error
}
