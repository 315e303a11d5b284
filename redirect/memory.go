// Package redirect holds the one-slot "return-to" memory that survives the login detour,
// and the route table shared by the guard and the authentication flow.
package redirect

import (
	"context"
	"fmt"

	"github.com/aircare/otpauth/kv"
)

// DefaultKey is the medium key holding the remembered path.
const DefaultKey = "redirectAfterLogin"

// Memory remembers at most one destination per client.
//
// Writes are last-writer-wins. Reads clear the slot in the same atomic step, so a
// remembered path is handed out at most once.
type Memory struct {
	medium kv.Medium
	key    string
	routes Routes
}

// NewMemory creates a [Memory] that refuses to remember the login paths of routes.
func NewMemory(medium kv.Medium, routes Routes) *Memory {
	return &Memory{
		medium: medium,
		key:    DefaultKey,
		routes: routes,
	}
}

// WithKey returns a copy of m persisting under key.
func (m *Memory) WithKey(key string) *Memory {
	if key == "" {
		return m
	}
	cp := *m
	cp.key = key
	return &cp
}

// Remember overwrites the slot with path. Login destinations, empty paths and
// anything that is not a same-origin path are ignored; the returned bool reports
// whether path was stored.
func (m *Memory) Remember(ctx context.Context, path string) (bool, error) {
	if path == "" || !LocalPath(path) || m.routes.IsLoginPath(path) {
		return false, nil
	}
	if err := m.medium.SetMany(ctx, map[string]string{m.key: path}); err != nil {
		return false, fmt.Errorf("redirect remember: %w", err)
	}
	return true, nil
}

// ConsumeIfPresent returns the remembered path and clears the slot.
func (m *Memory) ConsumeIfPresent(ctx context.Context) (string, bool, error) {
	path, ok, err := m.medium.Take(ctx, m.key)
	if err != nil {
		return "", false, fmt.Errorf("redirect consume: %w", err)
	}
	if !ok || path == "" {
		return "", false, nil
	}
	return path, true, nil
}

// Routes returns the route table m was built with.
func (m *Memory) Routes() Routes {
	return m.routes
}
