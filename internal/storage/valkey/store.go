package storagevalkey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/oidc-login/internal/storage"
)

// Store keeps proof and token values in Valkey. Expiry is delegated to the
// server, so a value outlives the process that wrote it.
type Store struct {
	valkey valkey.Client
	prefix string
}

var _ storage.Store = (*Store)(nil)

func NewStore(valkeyClient valkey.Client, prefix string) *Store {
	prefix = strings.TrimSuffix(prefix, ":")
	return &Store{
		valkey: valkeyClient,
		prefix: prefix,
	}
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	val, err := s.valkey.Do(ctx, s.valkey.B().Get().Key(s.key(key)).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return "", errors.Join(err, storage.ErrNotFound)
		}

		return "", fmt.Errorf("executing get command: %w", err)
	}

	return val, nil
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	var cmd valkey.Completed
	if ttl > 0 {
		cmd = s.valkey.B().Set().Key(s.key(key)).Value(value).PxMilliseconds(max(ttl.Milliseconds(), 1)).Build()
	} else {
		cmd = s.valkey.B().Set().Key(s.key(key)).Value(value).Build()
	}

	if err := s.valkey.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("executing set command: %w", err)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.valkey.Do(ctx, s.valkey.B().Del().Key(s.key(key)).Build()).Error(); err != nil {
		return fmt.Errorf("executing del command: %w", err)
	}

	return nil
}

func (s *Store) key(key string) string {
	if s.prefix == "" {
		return key
	}

	return s.prefix + ":" + key
}
