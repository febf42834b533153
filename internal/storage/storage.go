// Package storage defines the key/value contract the proof store and the
// token slot persist through. Backends live in the sub packages.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openkcm/oidc-login/internal/serviceerr"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = serviceerr.ErrNotFound

const DefaultScope = "default"

// Store is a scoped key/value store. A ttl of zero keeps the value until it is
// deleted.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

var ErrInvalidScope = errors.New("invalid scope")

// ValidateScope rejects scopes that would not round trip through Key and
// SplitKey or that are unsafe as a file name.
func ValidateScope(scope string) error {
	if scope == "" {
		return nil
	}
	if strings.ContainsAny(scope, ":/\\") || scope == "." || scope == ".." {
		return fmt.Errorf("%w %q: must not contain ':', '/' or '\\'", ErrInvalidScope, scope)
	}

	return nil
}

// Key joins a scope and a name into a storage key.
func Key(scope, name string) string {
	if scope == "" {
		scope = DefaultScope
	}

	return scope + ":" + name
}

// SplitKey is the inverse of Key. Keys without a scope fall into the default one.
func SplitKey(key string) (scope, name string) {
	scope, name, ok := strings.Cut(key, ":")
	if !ok {
		return DefaultScope, key
	}

	return scope, name
}
