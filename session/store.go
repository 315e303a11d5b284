package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aircare/otpauth/identity"
	"github.com/aircare/otpauth/kv"
)

const (
	// DefaultIdentityKey is the medium key holding the encoded identity.
	DefaultIdentityKey = "identity"
	// DefaultTokenKey is the medium key holding the credential token.
	DefaultTokenKey = "credentialToken"
)

// ErrInvalidToken is returned by [Store.Commit] for an unusable credential token.
var ErrInvalidToken = errors.New("invalid credential token")

// Corruption reasons passed to the corruption hook.
const (
	ReasonHalfWritten = "half_written"
	ReasonIdentity    = "identity_unparseable"
	ReasonToken       = "token_rejected"
	ReasonUnavailable = "medium_unavailable"
)

// Option configures a [Store].
type Option func(*Store)

// WithKeys overrides the medium keys used for the identity and the token.
func WithKeys(identityKey, tokenKey string) Option {
	return func(s *Store) {
		if identityKey != "" {
			s.identityKey = identityKey
		}
		if tokenKey != "" {
			s.tokenKey = tokenKey
		}
	}
}

// WithTokenCheck installs an extra well-formedness check for persisted tokens.
// A token rejected by check is treated like any other corrupted entry.
func WithTokenCheck(check func(token string) error) Option {
	return func(s *Store) {
		s.tokenCheck = check
	}
}

// WithCorruptionHook installs a callback invoked whenever Initialize discards
// persisted data or fails to read it.
func WithCorruptionHook(hook func(ctx context.Context, reason string)) Option {
	return func(s *Store) {
		s.onCorrupt = hook
	}
}

// WithCommitHook installs a callback invoked after every successful Commit.
func WithCommitHook(hook func(ctx context.Context, id identity.Identity)) Option {
	return func(s *Store) {
		s.onCommit = hook
	}
}

// WithClearHook installs a callback invoked after every Clear, successful or not.
func WithClearHook(hook func(ctx context.Context)) Option {
	return func(s *Store) {
		s.onClear = hook
	}
}

// Store is the session store of one client.
//
// All methods are safe for concurrent use. Commit and Initialize are serialized so a
// reader never observes an identity without its token.
type Store struct {
	medium      kv.Medium
	identityKey string
	tokenKey    string
	tokenCheck  func(string) error
	onCorrupt   func(context.Context, string)
	onCommit    func(context.Context, identity.Identity)
	onClear     func(context.Context)

	once sync.Once
	mu   sync.RWMutex
	snap Snapshot
}

// NewStore creates a [Store] in [StatusLoading] backed by medium.
func NewStore(medium kv.Medium, opts ...Option) *Store {
	s := &Store{
		medium:      medium,
		identityKey: DefaultIdentityKey,
		tokenKey:    DefaultTokenKey,
		snap:        Snapshot{Status: StatusLoading},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Initialize reads the persisted session once and resolves the status.
//
// Later calls return the current snapshot without touching the medium. Corrupted or
// half-written data is erased and reported as [StatusAbsent]; read failures also
// resolve to [StatusAbsent] so callers are never left loading.
func (s *Store) Initialize(ctx context.Context) Snapshot {
	s.once.Do(func() {
		s.mu.Lock()
		if s.snap.Status != StatusLoading {
			s.mu.Unlock()
			return
		}
		snap, reason := s.restore(ctx)
		s.snap = snap
		s.mu.Unlock()

		if reason != "" && s.onCorrupt != nil {
			s.onCorrupt(ctx, reason)
		}
	})
	return s.Snapshot()
}

// restore reads both fields in one atomic medium read. A non-empty reason reports
// discarded or unreadable data.
func (s *Store) restore(ctx context.Context) (Snapshot, string) {
	absent := Snapshot{Status: StatusAbsent}

	seen, err := s.medium.GetMany(ctx, s.identityKey, s.tokenKey)
	if err != nil {
		return absent, ReasonUnavailable
	}
	rawIdentity, hasIdentity := seen[s.identityKey]
	token, hasToken := seen[s.tokenKey]

	switch {
	case !hasIdentity && !hasToken:
		return absent, ""
	case hasIdentity != hasToken:
		return s.erase(ctx, seen, ReasonHalfWritten)
	}

	id, err := DecodeIdentity(rawIdentity)
	if err != nil {
		return s.erase(ctx, seen, ReasonIdentity)
	}
	if !ValidToken(token) {
		return s.erase(ctx, seen, ReasonToken)
	}
	if s.tokenCheck != nil {
		if err := s.tokenCheck(token); err != nil {
			return s.erase(ctx, seen, ReasonToken)
		}
	}

	return Snapshot{Status: StatusPresent, Identity: id, Token: token}, ""
}

// erase deletes the fields only if they still hold what restore read, so a session
// committed meanwhile by another store survives.
func (s *Store) erase(ctx context.Context, seen map[string]string, reason string) (Snapshot, string) {
	// Best effort: a failed delete still leaves the in-memory session absent.
	_, _ = s.medium.DeleteIf(ctx, seen, s.identityKey, s.tokenKey)
	return Snapshot{Status: StatusAbsent}, reason
}

// Commit persists id and token in one atomic write and marks the session present.
//
// On a storage failure the previous session is left untouched.
func (s *Store) Commit(ctx context.Context, id identity.Identity, token string) error {
	if !ValidToken(token) {
		return ErrInvalidToken
	}
	encoded, err := EncodeIdentity(id)
	if err != nil {
		return err
	}

	// Resolve first so a later Initialize can never overwrite this commit.
	s.Initialize(ctx)

	s.mu.Lock()
	if err := s.medium.SetMany(ctx, map[string]string{
		s.identityKey: encoded,
		s.tokenKey:    token,
	}); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("session commit: %w", err)
	}
	s.snap = Snapshot{Status: StatusPresent, Identity: id, Token: token}
	s.mu.Unlock()

	if s.onCommit != nil {
		s.onCommit(ctx, id)
	}
	return nil
}

// Clear marks the session absent and removes both persisted entries.
//
// The in-memory session is cleared even when the medium delete fails; the error
// is returned so callers can surface it.
func (s *Store) Clear(ctx context.Context) error {
	s.Initialize(ctx)

	s.mu.Lock()
	s.snap = Snapshot{Status: StatusAbsent}
	err := s.medium.Delete(ctx, s.identityKey, s.tokenKey)
	s.mu.Unlock()

	if s.onClear != nil {
		s.onClear(ctx)
	}
	if err != nil {
		return fmt.Errorf("session clear: %w", err)
	}
	return nil
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Status returns the current resolution state.
func (s *Store) Status() Status {
	return s.Snapshot().Status
}

// IsAuthenticated reports whether a session is present.
func (s *Store) IsAuthenticated() bool {
	return s.Snapshot().IsAuthenticated()
}

// IsAdmin reports whether the present session belongs to an admin.
func (s *Store) IsAdmin() bool {
	return s.Snapshot().IsAdmin()
}

// IsUser reports whether the present session belongs to a regular user.
func (s *Store) IsUser() bool {
	return s.Snapshot().IsUser()
}
