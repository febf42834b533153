package storagemem

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/openkcm/oidc-login/internal/storage"
)

// Store keeps values in process memory. It only carries a login across the
// two halves when both run in the same process.
type Store struct {
	cache *cache.Cache
}

var _ storage.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		cache: cache.New(cache.NoExpiration, time.Minute),
	}
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	val, ok := s.cache.Get(key)
	if !ok {
		return "", storage.ErrNotFound
	}

	//nolint:forcetypeassert
	return val.(string), nil
}

func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}

	s.cache.Set(key, value, ttl)

	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}
