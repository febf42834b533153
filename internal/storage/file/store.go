// Package storagefile keeps each storage scope in one JSON document on disk,
// so a login begun by one process can be completed by another on the same
// machine without a shared server.
package storagefile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/openkcm/oidc-login/internal/storage"
)

const DefaultDir = ".config/oidc-login"

type entry struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

type document map[string]entry

// Store writes scope files with 0600 permissions inside a 0700 directory.
// Expiry is checked on read.
type Store struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

type Option func(*Store)

// WithClock replaces the clock used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates the directory if needed. An empty dir resolves to
// DefaultDir below the user's home.
func NewStore(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		dir = filepath.Join(home, DefaultDir)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	s := &Store{dir: dir, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s, nil
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	scope, name := storage.SplitKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read(scope)
	if err != nil {
		return "", err
	}

	e, ok := doc[name]
	if !ok {
		return "", storage.ErrNotFound
	}

	if !e.ExpiresAt.IsZero() && !s.now().Before(e.ExpiresAt) {
		delete(doc, name)
		if err := s.write(scope, doc); err != nil {
			return "", err
		}

		return "", storage.ErrNotFound
	}

	return e.Value, nil
}

func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	scope, name := storage.SplitKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read(scope)
	if err != nil {
		return err
	}

	e := entry{Value: value}
	if ttl > 0 {
		e.ExpiresAt = s.now().Add(ttl)
	}
	doc[name] = e

	return s.write(scope, doc)
}

func (s *Store) Delete(_ context.Context, key string) error {
	scope, name := storage.SplitKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read(scope)
	if err != nil {
		return err
	}

	if _, ok := doc[name]; !ok {
		return nil
	}
	delete(doc, name)

	return s.write(scope, doc)
}

func (s *Store) path(scope string) string {
	return filepath.Join(s.dir, filepath.Base(scope)+".json")
}

func (s *Store) read(scope string) (document, error) {
	data, err := os.ReadFile(s.path(scope))
	if errors.Is(err, fs.ErrNotExist) {
		return document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading scope file: %w", err)
	}

	doc := document{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling scope file: %w", err)
	}

	return doc, nil
}

func (s *Store) write(scope string, doc document) error {
	if len(doc) == 0 {
		err := os.Remove(s.path(scope))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing scope file: %w", err)
		}

		return nil
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling scope file: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".scope-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("setting file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path(scope)); err != nil {
		return fmt.Errorf("replacing scope file: %w", err)
	}

	return nil
}
