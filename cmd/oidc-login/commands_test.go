package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/oidc-login/internal/dispatcher"
)

func TestParseParams(t *testing.T) {
	tests := []struct {
		name      string
		pairs     []string
		expected  []dispatcher.Param
		assertErr assert.ErrorAssertionFunc
	}{
		{
			name:      "empty",
			expected:  []dispatcher.Param{},
			assertErr: assert.NoError,
		},
		{
			name:  "typed values",
			pairs: []string{"reads=s3://bucket/x", "cpus=4", "dry=true"},
			expected: []dispatcher.Param{
				{Name: "reads", Value: "s3://bucket/x"},
				{Name: "cpus", Value: float64(4)},
				{Name: "dry", Value: true},
			},
			assertErr: assert.NoError,
		},
		{
			name:      "value keeps equals signs",
			pairs:     []string{"expr=a=b"},
			expected:  []dispatcher.Param{{Name: "expr", Value: "a=b"}},
			assertErr: assert.NoError,
		},
		{
			name:      "missing separator",
			pairs:     []string{"reads"},
			assertErr: assert.Error,
		},
		{
			name:      "missing name",
			pairs:     []string{"=x"},
			assertErr: assert.Error,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParams(tt.pairs)
			if !tt.assertErr(t, err) || err != nil {
				return
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestRootCmd(t *testing.T) {
	cmd := rootCmd()

	names := make([]string, 0, len(cmd.Commands()))
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"version", "login", "logout", "call", "dispatcher", "workflows"}, names)

	login, _, err := cmd.Find([]string{"login", "complete"})
	require.NoError(t, err)
	assert.Equal(t, "complete", login.Name())

	dispatch, _, err := cmd.Find([]string{"dispatcher", "dispatch"})
	require.NoError(t, err)
	assert.NotNil(t, dispatch.Flags().Lookup("what-if"))
}
