package storagemock

import (
	"context"
	"sync"
	"time"

	"github.com/openkcm/oidc-login/internal/storage"
)

type StoreOption func(*Store)

// Store is an in-memory storage.Store with error injection and call counters
// for tests.
type Store struct {
	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	deletes map[string]int

	getErr, setErr, deleteErr error
}

var _ = storage.Store(&Store{})

func WithValue(key, value string) StoreOption {
	return func(s *Store) { s.values[key] = value }
}
func WithGetError(err error) StoreOption {
	return func(s *Store) { s.getErr = err }
}
func WithSetError(err error) StoreOption {
	return func(s *Store) { s.setErr = err }
}
func WithDeleteError(err error) StoreOption {
	return func(s *Store) { s.deleteErr = err }
}

func NewInMemStore(opts ...StoreOption) *Store {
	s := &Store{
		values:  make(map[string]string),
		ttls:    make(map[string]time.Duration),
		deletes: make(map[string]int),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.getErr != nil {
		return "", s.getErr
	}
	if v, ok := s.values[key]; ok {
		return v, nil
	}
	return "", storage.ErrNotFound
}

func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.setErr != nil {
		return s.setErr
	}
	s.values[key] = value
	s.ttls[key] = ttl
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deletes[key]++
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.values, key)
	return nil
}

// Value reports the stored value without going through Get's error injection.
func (s *Store) Value(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	return v, ok
}

func (s *Store) TTL(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ttls[key]
}

// Deletes reports how many times Delete was called for the key.
func (s *Store) Deletes(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deletes[key]
}
