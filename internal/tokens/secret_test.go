package tokens_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/oidc-login/internal/tokens"
)

func TestSecret_Redaction(t *testing.T) {
	s := tokens.NewSecret("eyJhbGciOi.secret")

	assert.Equal(t, "eyJhbGciOi.secret", s.Value())
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.NotContains(t, fmt.Sprintf("%#v", s), "secret")

	data, err := json.Marshal(tokens.Tokens{AccessToken: s})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "eyJhbGciOi")

	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("tokens", "access_token", s)
	assert.NotContains(t, buf.String(), "eyJhbGciOi")
	assert.Contains(t, buf.String(), "[REDACTED]")
}

func TestSecret_IsEmpty(t *testing.T) {
	assert.True(t, tokens.Secret{}.IsEmpty())
	assert.False(t, tokens.NewSecret("x").IsEmpty())
}
