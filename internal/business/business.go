// Package business wires the login components from the configuration and
// implements the operations behind the CLI commands.
package business

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/oidc-login/internal/authflow"
	"github.com/openkcm/oidc-login/internal/browser"
	"github.com/openkcm/oidc-login/internal/config"
	"github.com/openkcm/oidc-login/internal/discovery"
	"github.com/openkcm/oidc-login/internal/dispatcher"
	"github.com/openkcm/oidc-login/internal/httpclient"
	"github.com/openkcm/oidc-login/internal/proof"
	"github.com/openkcm/oidc-login/internal/storage"
	storagefile "github.com/openkcm/oidc-login/internal/storage/file"
	storagemem "github.com/openkcm/oidc-login/internal/storage/memory"
	storagevalkey "github.com/openkcm/oidc-login/internal/storage/valkey"
	"github.com/openkcm/oidc-login/internal/tokens"
	"github.com/openkcm/oidc-login/internal/workflows"
)

type App struct {
	cfg *config.Config

	flow       *authflow.Flow
	client     authflow.Client
	proofs     *proof.Store
	slot       *tokens.Slot
	writer     *tokens.Writer
	api        *httpclient.Client
	dispatcher *dispatcher.Client
	workflows  *workflows.Client
	navigator  browser.Navigator
	out        io.Writer

	store   storage.Store
	closeFn func()
}

type Option func(*App)

// WithStore replaces the configured storage backend.
func WithStore(store storage.Store) Option {
	return func(a *App) { a.store = store }
}

func WithNavigator(nav browser.Navigator) Option {
	return func(a *App) { a.navigator = nav }
}

// WithOutput sets where user facing messages are written.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// New builds the application. Persisted tokens are restored, so commands that
// only call APIs work in a process that did not log in.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:     cfg,
		out:     os.Stdout,
		closeFn: func() {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	if err := storage.ValidateScope(cfg.ProofStore.Scope); err != nil {
		return nil, err
	}

	if a.navigator == nil {
		a.navigator = browser.PrintAndOpen{Printer: browser.Printer{Out: a.out}, Opener: browser.System{}}
	}

	if a.store == nil {
		store, closeFn, err := newStore(cfg)
		if err != nil {
			return nil, fmt.Errorf("initialising the %s store: %w", cfg.ProofStore.Type, err)
		}
		a.store = store
		a.closeFn = closeFn
	}

	secret, err := config.LoadClientSecret(cfg.Auth)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.client = authflow.Client{
		ID:          cfg.Auth.ClientID,
		Secret:      tokens.NewSecret(secret),
		IssuerURL:   cfg.Auth.IssuerURL,
		RedirectURL: cfg.Auth.RedirectURL,
	}

	api, exchange, err := newHTTPClients(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.api = api

	a.proofs = proof.NewStore(a.store,
		proof.WithScope(cfg.ProofStore.Scope),
		proof.WithTTL(cfg.ProofStore.TTL),
	)

	scopes := append([]string{cfg.Auth.APIScope}, cfg.Auth.Scopes...)
	a.flow = authflow.NewFlow(
		discovery.NewClient(api, discovery.WithCacheTTL(cfg.Discovery.CacheTTL)),
		a.proofs,
		authflow.WithScopes(scopes...),
		authflow.WithTokenExchangeClient(exchange),
	)

	a.slot, a.writer = tokens.New(tokens.WithStore(a.store, a.proofs.Scope()))
	if ok, err := a.slot.Restore(ctx); err != nil {
		slogctx.Warn(ctx, "Failed to restore persisted tokens", "error", err)
	} else if ok {
		slogctx.Debug(ctx, "Using persisted tokens", "scope", a.proofs.Scope())
	}

	a.dispatcher = dispatcher.NewClient(api, a.slot)

	a.workflows, err = workflows.NewClient(api, cfg.GitHub.APIURL)
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *App) Close() {
	a.closeFn()
}

// Tokens is the reader side of the token slot.
func (a *App) Tokens() *tokens.Slot {
	return a.slot
}

func newStore(cfg *config.Config) (storage.Store, func(), error) {
	switch cfg.ProofStore.Type {
	case config.ProofStoreValKey:
		opts, err := config.MakeValKeyClientOption(cfg.ValKey)
		if err != nil {
			return nil, nil, err
		}

		valkeyClient, err := valkey.NewClient(opts)
		if err != nil {
			return nil, nil, fmt.Errorf("creating a new valkey client: %w", err)
		}

		return storagevalkey.NewStore(valkeyClient, cfg.ValKey.Prefix), valkeyClient.Close, nil
	case config.ProofStoreMemory:
		return storagemem.NewStore(), func() {}, nil
	default:
		store, err := storagefile.NewStore(cfg.ProofStore.Dir)
		if err != nil {
			return nil, nil, err
		}

		return store, func() {}, nil
	}
}

// newHTTPClients returns the client for discovery and API calls and the one
// for the token exchange.
func newHTTPClients(cfg *config.Config) (api, exchange *httpclient.Client, _ error) {
	retryable, err := httpclient.PredicateFor(cfg.Retry.Mode)
	if err != nil {
		return nil, nil, err
	}

	policy := httpclient.DefaultPolicy()
	policy.Retryable = retryable
	if cfg.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.InitialDelay > 0 {
		policy.InitialDelay = cfg.Retry.InitialDelay
	}

	exchangePolicy := policy
	exchangePolicy.MaxAttempts = max(cfg.Retry.TokenExchangeMaxAttempts, 1)

	api = httpclient.New(httpclient.WithPolicy(policy), httpclient.WithTimeout(cfg.HTTP.Timeout))
	exchange = httpclient.New(httpclient.WithPolicy(exchangePolicy), httpclient.WithTimeout(cfg.HTTP.Timeout))

	return api, exchange, nil
}
