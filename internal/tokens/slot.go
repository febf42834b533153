// Package tokens holds the tokens of the current login. The Slot is handed to
// every component that authenticates requests; the Writer is held only by
// login and logout.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"sync"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/oidc-login/internal/storage"
)

const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyIDToken      = "idToken"
)

type Tokens struct {
	AccessToken  Secret
	RefreshToken Secret
	IDToken      Secret
}

func (t Tokens) Authenticated() bool {
	return !t.AccessToken.IsEmpty()
}

type Slot struct {
	mu     sync.RWMutex
	tokens Tokens
	subs   map[chan Tokens]struct{}

	store storage.Store
	scope string
}

type Writer struct {
	slot *Slot
}

type Option func(*Slot)

// WithStore persists tokens under the given scope so that a later process can
// Restore them.
func WithStore(store storage.Store, scope string) Option {
	return func(s *Slot) {
		s.store = store
		s.scope = scope
	}
}

func New(opts ...Option) (*Slot, *Writer) {
	s := &Slot{
		subs:  make(map[chan Tokens]struct{}),
		scope: storage.DefaultScope,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s, &Writer{slot: s}
}

func (s *Slot) AccessToken() (Secret, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.tokens.AccessToken, s.tokens.Authenticated()
}

func (s *Slot) Tokens() Tokens {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.tokens
}

// Subscribe returns a channel that receives the tokens whenever they change,
// starting with the current value. Only the latest value is kept for slow
// readers. The channel is closed once ctx is done.
func (s *Slot) Subscribe(ctx context.Context) <-chan Tokens {
	ch := make(chan Tokens, 1)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	ch <- s.tokens
	s.mu.Unlock()

	go func() {
		<-ctx.Done()

		s.mu.Lock()
		delete(s.subs, ch)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Restore loads persisted tokens into the slot. It reports false when no
// access token was persisted.
func (s *Slot) Restore(ctx context.Context) (bool, error) {
	if s.store == nil {
		return false, nil
	}

	var t Tokens
	for key, dst := range map[string]*Secret{
		KeyAccessToken:  &t.AccessToken,
		KeyRefreshToken: &t.RefreshToken,
		KeyIDToken:      &t.IDToken,
	} {
		val, err := s.store.Get(ctx, storage.Key(s.scope, key))
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("loading %s: %w", key, err)
		}
		*dst = NewSecret(val)
	}

	if !t.Authenticated() {
		return false, nil
	}

	s.publish(t)
	slogctx.Debug(ctx, "Restored persisted tokens", "scope", s.scope)

	return true, nil
}

func (s *Slot) publish(t Tokens) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens = t
	for ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- t
	}
}

// Set publishes the tokens to every reader and persists them when the slot
// has a store. Readers see the new tokens even if persisting fails.
func (w *Writer) Set(ctx context.Context, t Tokens) error {
	w.slot.publish(t)

	s := w.slot
	if s.store == nil {
		return nil
	}

	var errs []error
	for key, val := range map[string]Secret{
		KeyAccessToken:  t.AccessToken,
		KeyRefreshToken: t.RefreshToken,
		KeyIDToken:      t.IDToken,
	} {
		k := storage.Key(s.scope, key)
		var err error
		if val.IsEmpty() {
			err = s.store.Delete(ctx, k)
		} else {
			err = s.store.Set(ctx, k, val.Value(), 0)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("persisting %s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

// Clear empties the slot and removes persisted tokens. It is safe to call
// when nothing is set.
func (w *Writer) Clear(ctx context.Context) error {
	w.slot.publish(Tokens{})

	s := w.slot
	if s.store == nil {
		return nil
	}

	var errs []error
	for _, key := range []string{KeyAccessToken, KeyRefreshToken, KeyIDToken} {
		if err := s.store.Delete(ctx, storage.Key(s.scope, key)); err != nil {
			errs = append(errs, fmt.Errorf("removing %s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}
