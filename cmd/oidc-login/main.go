package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/openkcm/common-sdk/pkg/utils"
	"github.com/spf13/cobra"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/oidc-login/internal/business"
	"github.com/openkcm/oidc-login/internal/cmdutils"
	"github.com/openkcm/oidc-login/internal/config"
)

var (
	// BuildInfo will be set by the build system
	BuildInfo = "{}"

	scope    string
	newScope bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "OIDC Login Version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		value, err := utils.ExtractFromComplexValue(BuildInfo)
		if err != nil {
			return err
		}

		slog.InfoContext(cmd.Context(), value)

		return nil
	},
}

// withApp builds the application for a command, applying the scope flags.
func withApp(fn func(context.Context, *business.App, []string) error) cmdutils.BusinessFunc {
	return func(ctx context.Context, cfg *config.Config, args []string) error {
		switch {
		case newScope:
			cfg.ProofStore.Scope = uuid.NewString()
			_, _ = fmt.Fprintf(os.Stderr, "Using scope %s\n", cfg.ProofStore.Scope)
		case scope != "":
			cfg.ProofStore.Scope = scope
		}

		app, err := business.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		return fn(ctx, app, args)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "oidc-login",
		Short:         "OIDC Login",
		Long:          "Logs in with the OIDC authorization code flow and PKCE, then calls APIs with the access token.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&scope, "scope", "", "storage scope of the login proof and tokens")
	cmd.PersistentFlags().BoolVar(&newScope, "new-scope", false, "use a fresh random storage scope")
	cmd.MarkFlagsMutuallyExclusive("scope", "new-scope")

	cmd.AddCommand(
		versionCmd,
		loginCmd(BuildInfo),
		logoutCmd(BuildInfo),
		callCmd(BuildInfo),
		dispatcherCmd(BuildInfo),
		workflowsCmd(BuildInfo),
	)

	return cmd
}

func execute() error {
	ctx, cancelOnSignal := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer cancelOnSignal()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		slogctx.Error(ctx, "command failed", "error", err)
		_, _ = fmt.Fprintln(os.Stderr, err)

		return err
	}

	return nil
}

func main() {
	if err := execute(); err != nil {
		os.Exit(1)
	}
}
