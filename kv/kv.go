// Package kv provides the per-client persistence medium behind the session store and the
// redirect memory: a small string key/value space scoped to one client ID.
//
// # Implementations
//
//   - [RedisSpace]: go-redis backed, one key namespace per client, TTL refreshed on write.
//   - [MemorySpace]: process-local maps, used by tests and single-node development.
//
// # What this package must NOT do
//
//   - Interpret stored values (encoding belongs to the callers).
//   - Import session, redirect, or the root package.
package kv

import (
	"context"
	"errors"
)

// ErrUnavailable wraps every failure of the underlying storage backend.
var ErrUnavailable = errors.New("storage unavailable")

// Medium is the key/value view of one client's persisted state.
type Medium interface {
	// Get returns the stored value and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// GetMany reads keys in one atomic step. Missing keys are absent from the result.
	GetMany(ctx context.Context, keys ...string) (map[string]string, error)
	// SetMany writes all values in one atomic step.
	SetMany(ctx context.Context, values map[string]string) error
	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// DeleteIf removes keys only while each still holds its value in seen, or is still
	// missing when seen has no entry for it. It reports whether anything was removed.
	DeleteIf(ctx context.Context, seen map[string]string, keys ...string) (bool, error)
	// Take reads and removes key atomically.
	Take(ctx context.Context, key string) (string, bool, error)
}

// Space hands out the [Medium] of a single client.
type Space interface {
	For(clientID string) Medium
}
