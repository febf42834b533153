package business_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/oidc-login/internal/business"
	"github.com/openkcm/oidc-login/internal/config"
	"github.com/openkcm/oidc-login/internal/dispatcher"
	"github.com/openkcm/oidc-login/internal/oidctest"
	"github.com/openkcm/oidc-login/internal/serviceerr"
	"github.com/openkcm/oidc-login/internal/storage"
	storagemem "github.com/openkcm/oidc-login/internal/storage/memory"
)

// followNavigator plays the browser: it opens the URL and follows redirects,
// which ends on the local callback listener.
type followNavigator struct {
	t *testing.T
}

func (n followNavigator) Navigate(ctx context.Context, u string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	require.NoError(n.t, err)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}

	return resp.Body.Close()
}

// recordNavigator keeps the URL for the test to act on.
type recordNavigator struct {
	mu  sync.Mutex
	url string
}

func (n *recordNavigator) Navigate(_ context.Context, u string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.url = u

	return nil
}

func newConfig(issuer string) *config.Config {
	cfg := &config.Config{}
	cfg.Auth.ClientID = "client-x"
	cfg.Auth.IssuerURL = issuer
	cfg.Auth.RedirectURL = "http://127.0.0.1:0/callback"
	cfg.Auth.APIScope = "api://dispatcher/.default"
	cfg.Auth.CallbackTimeout = 10 * time.Second
	cfg.ProofStore.Type = config.ProofStoreMemory
	cfg.ProofStore.Scope = "default"
	cfg.ProofStore.TTL = time.Minute
	cfg.Retry.MaxAttempts = 1
	cfg.Retry.TokenExchangeMaxAttempts = 1
	cfg.Retry.Mode = "strict"
	cfg.HTTP.Timeout = 5 * time.Second

	return cfg
}

// authorize sends the authorization request without following the redirect
// and returns the callback URL the provider answered with.
func authorize(t *testing.T, authURL string) string {
	t.Helper()

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Get(authURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	return resp.Header.Get("Location")
}

func dispatcherServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+oidctest.AccessToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]dispatcher.Message{{Event: "completed", RunID: "run-1"}})
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestApp_Login(t *testing.T) {
	provider := oidctest.Start(t)
	out := &bytes.Buffer{}

	app, err := business.New(t.Context(), newConfig(provider.Issuer()),
		business.WithNavigator(followNavigator{t: t}),
		business.WithOutput(out),
	)
	require.NoError(t, err)
	defer app.Close()

	require.NoError(t, app.Login(t.Context()))

	tok := app.Tokens().Tokens()
	assert.Equal(t, oidctest.AccessToken, tok.AccessToken.Value())
	assert.Equal(t, oidctest.RefreshToken, tok.RefreshToken.Value())
	assert.False(t, tok.IDToken.IsEmpty())
	assert.Contains(t, out.String(), "Login successful.")

	requests := provider.TokenRequests()
	require.Len(t, requests, 1)
	assert.Equal(t, "client-x", requests[0].Form.Get("client_id"))
	assert.Contains(t, requests[0].Form.Get("redirect_uri"), "http://127.0.0.1:")
}

func TestApp_SplitLoginAcrossProcesses(t *testing.T) {
	provider := oidctest.Start(t)
	api := dispatcherServer(t)

	newApp := func(cfg *config.Config, nav *recordNavigator) *business.App {
		app, err := business.New(t.Context(), cfg,
			business.WithNavigator(nav),
			business.WithOutput(&bytes.Buffer{}),
		)
		require.NoError(t, err)
		t.Cleanup(app.Close)

		return app
	}

	cfg := newConfig(provider.Issuer())
	cfg.Auth.RedirectURL = "https://app.example/callback"
	cfg.ProofStore.Type = config.ProofStoreFile
	cfg.ProofStore.Dir = t.TempDir()
	cfg.Dispatcher.APIURL = api.URL

	nav := &recordNavigator{}
	authURL, err := newApp(cfg, nav).LoginBegin(t.Context())
	require.NoError(t, err)
	assert.Equal(t, authURL, nav.url)

	callbackURL := authorize(t, authURL)

	second := newApp(cfg, &recordNavigator{})
	require.NoError(t, second.LoginComplete(t.Context(), callbackURL))

	// the proof was consumed
	err = second.LoginComplete(t.Context(), callbackURL)
	require.ErrorIs(t, err, serviceerr.ErrMissingProof)

	third := newApp(cfg, &recordNavigator{})
	msgs, err := third.DispatcherStatus(t.Context(), dispatcher.DefaultStatusRequest())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "run-1", msgs[0].RunID)
}

func TestApp_LoginCompleteWithWrongState(t *testing.T) {
	provider := oidctest.Start(t)
	store := storagemem.NewStore()

	cfg := newConfig(provider.Issuer())
	cfg.Auth.RedirectURL = "https://app.example/callback"

	app, err := business.New(t.Context(), cfg,
		business.WithStore(store),
		business.WithNavigator(&recordNavigator{}),
		business.WithOutput(&bytes.Buffer{}),
	)
	require.NoError(t, err)

	_, err = app.LoginBegin(t.Context())
	require.NoError(t, err)

	err = app.LoginComplete(t.Context(), "https://app.example/callback?code=abc&state=wrong")
	require.ErrorIs(t, err, serviceerr.ErrInvalidState)
	assert.Empty(t, provider.TokenRequests())
	assert.False(t, app.Tokens().Tokens().Authenticated())
}

func TestApp_Logout(t *testing.T) {
	provider := oidctest.Start(t)
	store := storagemem.NewStore()
	out := &bytes.Buffer{}

	app, err := business.New(t.Context(), newConfig(provider.Issuer()),
		business.WithStore(store),
		business.WithNavigator(followNavigator{t: t}),
		business.WithOutput(out),
	)
	require.NoError(t, err)

	require.NoError(t, app.Login(t.Context()))
	require.True(t, app.Tokens().Tokens().Authenticated())

	require.NoError(t, app.Logout(t.Context()))
	assert.False(t, app.Tokens().Tokens().Authenticated())

	// idempotent
	require.NoError(t, app.Logout(t.Context()))

	restored, err := business.New(t.Context(), newConfig(provider.Issuer()), business.WithStore(store))
	require.NoError(t, err)
	assert.False(t, restored.Tokens().Tokens().Authenticated())
}

func TestApp_Call(t *testing.T) {
	provider := oidctest.Start(t)
	api := dispatcherServer(t)
	out := &bytes.Buffer{}

	app, err := business.New(t.Context(), newConfig(provider.Issuer()),
		business.WithNavigator(followNavigator{t: t}),
		business.WithOutput(out),
	)
	require.NoError(t, err)

	_, err = app.Call(t.Context(), http.MethodGet, api.URL, nil)
	require.ErrorIs(t, err, dispatcher.ErrNotLoggedIn)

	require.NoError(t, app.Login(t.Context()))

	status, err := app.Call(t.Context(), http.MethodGet, api.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, out.String(), "run-1")

	require.NoError(t, app.Logout(t.Context()))
	_, err = app.Call(t.Context(), http.MethodGet, api.URL, nil)
	require.ErrorIs(t, err, dispatcher.ErrNotLoggedIn)
}

func TestApp_DispatcherNotConfigured(t *testing.T) {
	provider := oidctest.Start(t)

	app, err := business.New(t.Context(), newConfig(provider.Issuer()), business.WithOutput(&bytes.Buffer{}))
	require.NoError(t, err)

	_, err = app.DispatcherStatus(t.Context(), dispatcher.DefaultStatusRequest())
	require.ErrorIs(t, err, business.ErrNoDispatcherURL)

	_, err = app.Dispatch(t.Context(), true, dispatcher.DispatchRequest{})
	require.ErrorIs(t, err, business.ErrNoDispatcherURL)
}

func TestNew_InvalidRetryMode(t *testing.T) {
	cfg := newConfig("https://idp.example")
	cfg.Retry.Mode = "sometimes"

	_, err := business.New(t.Context(), cfg, business.WithOutput(&bytes.Buffer{}))
	require.Error(t, err)
}

func TestNew_InvalidScope(t *testing.T) {
	cfg := newConfig("https://idp.example")
	cfg.ProofStore.Scope = "a:b"

	_, err := business.New(t.Context(), cfg, business.WithOutput(&bytes.Buffer{}))
	require.ErrorIs(t, err, storage.ErrInvalidScope)
}

func TestApp_Workflows(t *testing.T) {
	provider := oidctest.Start(t)
	gh := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/repos/org/repo/contents/nextflow/pipelines":
			_, _ = w.Write([]byte(`[{"type":"dir","name":"rnaseq","path":"nextflow/pipelines/rnaseq"}]`))
		case "/repos/org/repo/contents/nextflow/pipelines/rnaseq":
			_, _ = w.Write([]byte(`[
				{"type":"file","name":"main.nf","download_url":"https://raw.example/main.nf"},
				{"type":"file","name":"params.json","download_url":"https://raw.example/params.json"}
			]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(gh.Close)

	cfg := newConfig(provider.Issuer())
	cfg.GitHub.APIURL = gh.URL

	app, err := business.New(t.Context(), cfg, business.WithOutput(&bytes.Buffer{}))
	require.NoError(t, err)

	wfs, err := app.Workflows(t.Context(), "org", "repo")
	require.NoError(t, err)
	require.Len(t, wfs, 1)
	assert.Equal(t, "https://raw.example/main.nf", wfs[0].Pipeline.URL)
	assert.Equal(t, "https://raw.example/params.json", wfs[0].Parameters.URL)
	assert.Equal(t, "rnaseq", wfs[0].Project.Name)
}
