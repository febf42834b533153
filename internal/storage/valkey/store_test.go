package storagevalkey_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/oidc-login/internal/dbtest/valkeytest"
	"github.com/openkcm/oidc-login/internal/storage"
	storagevalkey "github.com/openkcm/oidc-login/internal/storage/valkey"
	"github.com/openkcm/oidc-login/internal/tokens"
)

func TestStore_SetGet(t *testing.T) {
	client, srv := valkeytest.Start(t)
	s := storagevalkey.NewStore(client, "oidc-login:")

	require.NoError(t, s.Set(t.Context(), "default:authState", "xyz", 0))

	got, err := s.Get(t.Context(), "default:authState")
	require.NoError(t, err)
	assert.Equal(t, "xyz", got)

	raw, err := srv.Get("oidc-login:default:authState")
	require.NoError(t, err, "value should be stored under the prefixed key")
	assert.Equal(t, "xyz", raw)
}

func TestStore_GetMissing(t *testing.T) {
	client, _ := valkeytest.Start(t)
	s := storagevalkey.NewStore(client, "test")

	_, err := s.Get(t.Context(), "default:authNonce")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_TTL(t *testing.T) {
	client, srv := valkeytest.Start(t)
	s := storagevalkey.NewStore(client, "test")

	require.NoError(t, s.Set(t.Context(), "default:authPkce", "v1", 10*time.Minute))
	assert.Equal(t, 10*time.Minute, srv.TTL("test:default:authPkce"))

	srv.FastForward(11 * time.Minute)

	_, err := s.Get(t.Context(), "default:authPkce")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_Delete(t *testing.T) {
	client, srv := valkeytest.Start(t)
	s := storagevalkey.NewStore(client, "test")

	require.NoError(t, s.Set(t.Context(), "default:accessToken", "at", 0))
	require.NoError(t, s.Delete(t.Context(), "default:accessToken"))
	assert.False(t, srv.Exists("test:default:accessToken"))

	// deleting an absent key is not an error
	assert.NoError(t, s.Delete(t.Context(), "default:accessToken"))
}

func TestStore_RestoreWithAbsentTokens(t *testing.T) {
	client, _ := valkeytest.Start(t)
	s := storagevalkey.NewStore(client, "oidc-login")

	_, writer := tokens.New(tokens.WithStore(s, "default"))
	require.NoError(t, writer.Set(t.Context(), tokens.Tokens{AccessToken: tokens.NewSecret("at")}))

	restored, _ := tokens.New(tokens.WithStore(s, "default"))
	ok, err := restored.Restore(t.Context())
	require.NoError(t, err)
	require.True(t, ok)

	at, _ := restored.AccessToken()
	assert.Equal(t, "at", at.Value())
	assert.True(t, restored.Tokens().RefreshToken.IsEmpty())
	assert.True(t, restored.Tokens().IDToken.IsEmpty())
}
