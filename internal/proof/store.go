// Package proof persists the state token, nonce and PKCE verifier of a login
// across the browser round trip. Storage failures are logged and never
// returned: a lost proof surfaces later as a missing proof on completion.
package proof

import (
	"context"
	"errors"
	"log/slog"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/oidc-login/internal/storage"
)

const (
	KeyState = "authState"
	KeyNonce = "authNonce"
	KeyPKCE  = "authPkce"
)

const DefaultTTL = 10 * time.Minute

// Record is the persisted form of a pending login.
type Record struct {
	State        string
	Nonce        string
	PKCEVerifier string
}

// Complete reports whether all three values are present.
func (r Record) Complete() bool {
	return r.State != "" && r.Nonce != "" && r.PKCEVerifier != ""
}

func (r Record) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("state", r.State != ""),
		slog.Bool("nonce", r.Nonce != ""),
		slog.Bool("pkce", r.PKCEVerifier != ""),
	)
}

type Store struct {
	backend storage.Store
	scope   string
	ttl     time.Duration
}

type Option func(*Store)

func WithScope(scope string) Option {
	return func(s *Store) {
		if scope != "" {
			s.scope = scope
		}
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewStore(backend storage.Store, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		scope:   storage.DefaultScope,
		ttl:     DefaultTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

func (s *Store) Scope() string {
	return s.scope
}

func (s *Store) Put(ctx context.Context, key, value string) {
	if err := s.backend.Set(ctx, storage.Key(s.scope, key), value, s.ttl); err != nil {
		slogctx.Warn(ctx, "Failed to persist login proof", "scope", s.scope, "key", key, "error", err)
	}
}

func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	val, err := s.backend.Get(ctx, storage.Key(s.scope, key))
	if errors.Is(err, storage.ErrNotFound) {
		return "", false
	}
	if err != nil {
		slogctx.Warn(ctx, "Failed to read login proof", "scope", s.scope, "key", key, "error", err)
		return "", false
	}

	return val, val != ""
}

func (s *Store) Delete(ctx context.Context, key string) {
	if err := s.backend.Delete(ctx, storage.Key(s.scope, key)); err != nil {
		slogctx.Warn(ctx, "Failed to remove login proof", "scope", s.scope, "key", key, "error", err)
	}
}

// Save overwrites any proof already live in the scope.
func (s *Store) Save(ctx context.Context, r Record) {
	s.Put(ctx, KeyState, r.State)
	s.Put(ctx, KeyNonce, r.Nonce)
	s.Put(ctx, KeyPKCE, r.PKCEVerifier)

	slogctx.Debug(ctx, "Saved login proof", "scope", s.scope, "proof", r)
}

// Take reads the proof and then deletes all three keys, whatever was found.
// A proof can be taken only once.
func (s *Store) Take(ctx context.Context) Record {
	var r Record
	r.State, _ = s.Get(ctx, KeyState)
	r.Nonce, _ = s.Get(ctx, KeyNonce)
	r.PKCEVerifier, _ = s.Get(ctx, KeyPKCE)

	s.Clear(ctx)

	return r
}

// Clear deletes all three keys.
func (s *Store) Clear(ctx context.Context) {
	s.Delete(ctx, KeyState)
	s.Delete(ctx, KeyNonce)
	s.Delete(ctx, KeyPKCE)
}
