package otp

import (
	"context"
	"errors"
	"sync"

	"github.com/aircare/otpauth/identity"
)

var (
	// ErrUserNotFound is returned by a [Directory] when no account owns the phone.
	ErrUserNotFound = errors.New("otp: user not found")
	// ErrPhoneTaken is returned by [Directory.Create] for an already registered phone.
	ErrPhoneTaken = errors.New("otp: phone already registered")
)

// Directory is the account registry keyed by 10-digit phone.
type Directory interface {
	FindByPhone(ctx context.Context, phone string) (identity.Identity, error)
	Create(ctx context.Context, id identity.Identity) (identity.Identity, error)
}

// MemoryDirectory is an in-process [Directory].
type MemoryDirectory struct {
	mu      sync.RWMutex
	byPhone map[string]identity.Identity
}

// NewMemoryDirectory returns a directory seeded with accounts.
func NewMemoryDirectory(accounts ...identity.Identity) *MemoryDirectory {
	d := &MemoryDirectory{byPhone: make(map[string]identity.Identity, len(accounts))}
	for _, a := range accounts {
		d.byPhone[a.Phone] = a
	}
	return d
}

func (d *MemoryDirectory) FindByPhone(ctx context.Context, phone string) (identity.Identity, error) {
	if err := ctx.Err(); err != nil {
		return identity.Identity{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byPhone[phone]
	if !ok {
		return identity.Identity{}, ErrUserNotFound
	}
	return id, nil
}

func (d *MemoryDirectory) Create(ctx context.Context, id identity.Identity) (identity.Identity, error) {
	if err := ctx.Err(); err != nil {
		return identity.Identity{}, err
	}
	if err := id.Validate(); err != nil {
		return identity.Identity{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byPhone[id.Phone]; ok {
		return identity.Identity{}, ErrPhoneTaken
	}
	d.byPhone[id.Phone] = id
	return id, nil
}
