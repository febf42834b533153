package cmdutils

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/oidc-login/internal/config"
)

func validConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Logger.Format = "json"
	cfg.Logger.Level = "info"
	cfg.Auth.ClientID = "client-x"
	cfg.Auth.IssuerURL = "https://idp.example/issuer"
	cfg.Auth.RedirectURL = "http://localhost:8400/callback"

	return cfg
}

func TestCobraCommand(t *testing.T) {
	t.Run("creates command with correct properties", func(t *testing.T) {
		fn := func(context.Context, *config.Config, []string) error {
			return nil
		}

		cmd := CobraCommand("test-cmd", "short desc", "long description", "v1.0.0", cobra.NoArgs, fn)

		assert.Equal(t, "test-cmd", cmd.Use)
		assert.Equal(t, "short desc", cmd.Short)
		assert.Equal(t, "long description", cmd.Long)
		assert.NotNil(t, cmd.RunE)
		assert.NotNil(t, cmd.Args)
	})

	t.Run("RunE returns error when config loading fails", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("HOME", t.TempDir())

		called := false
		fn := func(context.Context, *config.Config, []string) error {
			called = true
			return nil
		}

		cmd := CobraCommand("test", "short", "long", "v1.0.0", nil, fn)
		cmd.SetArgs([]string{})

		// Execute will fail because no config file exists
		err := cmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "loading config")
		assert.False(t, called)
	})
}

func TestRun(t *testing.T) {
	t.Run("passes config and arguments", func(t *testing.T) {
		cfg := validConfig()

		var gotArgs []string
		err := Run(t.Context(), cfg, []string{"begin"}, func(_ context.Context, got *config.Config, args []string) error {
			assert.Same(t, cfg, got)
			gotArgs = args
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"begin"}, gotArgs)
	})

	t.Run("wraps the business error", func(t *testing.T) {
		cause := errors.New("boom")

		err := Run(t.Context(), validConfig(), nil, func(context.Context, *config.Config, []string) error {
			return cause
		})
		require.ErrorIs(t, err, cause)
	})

	t.Run("rejects an invalid configuration", func(t *testing.T) {
		cfg := validConfig()
		cfg.Auth.ClientID = ""

		called := false
		err := Run(t.Context(), cfg, nil, func(context.Context, *config.Config, []string) error {
			called = true
			return nil
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "auth.clientID is required")
		assert.False(t, called)
	})
}

func ExampleCobraCommand() {
	fn := func(ctx context.Context, cfg *config.Config, args []string) error {
		fmt.Println("Running business logic")
		return nil
	}

	cmd := CobraCommand(
		"example",
		"Example command",
		"This is an example of how to use CobraCommand",
		"v1.0.0",
		cobra.NoArgs,
		fn,
	)

	fmt.Printf("Command use: %s\n", cmd.Use)
	// Output: Command use: example
}
