// Package logging defines the minimal structured-logging interface used by
// the synchronization core. The stores and gateways log through it so tests
// and embedders can substitute their own backend.
package logging

import "context"

// Logger is a context-aware, structured logger. The variadic args are
// key-value pairs:
//
//	log.Info(ctx, "device refreshed", "tag", tag, "lists", len(lists))
type Logger interface {
	// Debug logs fine-grained pipeline events (enqueues, coalesced bursts).
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs state transitions worth recording in production.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs unusual but non-fatal conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key-value
	// pairs.
	With(args ...any) Logger
}
