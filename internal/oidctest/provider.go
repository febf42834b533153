// Package oidctest runs a fake OpenID provider for tests.
package oidctest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/openkcm/oidc-login/internal/pkce"
)

const (
	AuthorizePath = "/oauth2/authorize"
	TokenPath     = "/oauth2/token"

	AccessToken  = "access-token"
	RefreshToken = "refresh-token"
	Subject      = "user-1"
)

// TokenRequest is a request received by the token endpoint.
type TokenRequest struct {
	Form      url.Values
	BasicUser string
	BasicPass string
	HasBasic  bool
}

type Provider struct {
	*httptest.Server

	mu            sync.Mutex
	tokenRequests []TokenRequest
	challenges    map[string]string

	discoveryCalls atomic.Int32
	codes          atomic.Int32

	issuer          string
	discoveryStatus int
	tokenStatus     int
	tokenBody       map[string]any
	omitEndpoints   bool

	challengeMethods []oidc.CodeChallengeMethod
}

type Option func(*Provider)

// WithIssuer makes the metadata announce a different issuer.
func WithIssuer(issuer string) Option {
	return func(p *Provider) { p.issuer = issuer }
}

func WithDiscoveryStatus(status int) Option {
	return func(p *Provider) { p.discoveryStatus = status }
}

// WithoutEndpoints drops the authorization and token endpoints from the metadata.
func WithoutEndpoints() Option {
	return func(p *Provider) { p.omitEndpoints = true }
}

// WithCodeChallengeMethods replaces the advertised PKCE methods. No
// arguments advertises none.
func WithCodeChallengeMethods(methods ...oidc.CodeChallengeMethod) Option {
	return func(p *Provider) {
		p.challengeMethods = append([]oidc.CodeChallengeMethod{}, methods...)
	}
}

// WithTokenResponse replaces the token endpoint response.
func WithTokenResponse(status int, body map[string]any) Option {
	return func(p *Provider) {
		p.tokenStatus = status
		p.tokenBody = body
	}
}

func Start(t *testing.T, opts ...Option) *Provider {
	t.Helper()

	p := &Provider{
		challenges:       make(map[string]string),
		discoveryStatus:  http.StatusOK,
		tokenStatus:      http.StatusOK,
		challengeMethods: []oidc.CodeChallengeMethod{oidc.CodeChallengeMethodS256},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc(oidc.DiscoveryEndpoint, p.discovery)
	mux.HandleFunc(AuthorizePath, p.authorize)
	mux.HandleFunc(TokenPath, p.token)

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)

	if p.tokenBody == nil {
		p.tokenBody = map[string]any{
			"access_token":  AccessToken,
			"refresh_token": RefreshToken,
			"token_type":    "Bearer",
			"expires_in":    3600,
			"id_token":      IDToken(t, p.URL, Subject),
		}
	}

	return p
}

func (p *Provider) Issuer() string {
	return p.URL
}

func (p *Provider) AuthorizationEndpoint() string {
	return p.URL + AuthorizePath
}

func (p *Provider) TokenEndpoint() string {
	return p.URL + TokenPath
}

func (p *Provider) DiscoveryCalls() int {
	return int(p.discoveryCalls.Load())
}

func (p *Provider) TokenRequests() []TokenRequest {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]TokenRequest(nil), p.tokenRequests...)
}

func (p *Provider) discovery(w http.ResponseWriter, _ *http.Request) {
	p.discoveryCalls.Add(1)

	if p.discoveryStatus != http.StatusOK {
		w.WriteHeader(p.discoveryStatus)
		return
	}

	issuer := p.issuer
	if issuer == "" {
		issuer = p.URL
	}

	conf := oidc.DiscoveryConfiguration{
		Issuer:                        issuer,
		JwksURI:                       p.URL + "/.well-known/jwks.json",
		CodeChallengeMethodsSupported: p.challengeMethods,
	}
	if !p.omitEndpoints {
		conf.AuthorizationEndpoint = p.AuthorizationEndpoint()
		conf.TokenEndpoint = p.TokenEndpoint()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(conf)
}

// authorize approves every request and redirects back with a fresh code.
func (p *Provider) authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	redirect, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || redirect.Scheme == "" {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}

	code := "code-" + strconv.Itoa(int(p.codes.Add(1)))

	p.mu.Lock()
	p.challenges[code] = q.Get("code_challenge")
	p.mu.Unlock()

	cb := redirect.Query()
	cb.Set("code", code)
	cb.Set("state", q.Get("state"))
	redirect.RawQuery = cb.Encode()

	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (p *Provider) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req := TokenRequest{Form: r.PostForm}
	req.BasicUser, req.BasicPass, req.HasBasic = r.BasicAuth()

	p.mu.Lock()
	p.tokenRequests = append(p.tokenRequests, req)
	challenge, issued := p.challenges[r.PostForm.Get("code")]
	delete(p.challenges, r.PostForm.Get("code"))
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if issued && !pkce.Verify(challenge, r.PostForm.Get("code_verifier")) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code verifier mismatch"}`))
		return
	}

	w.WriteHeader(p.tokenStatus)
	_ = json.NewEncoder(w).Encode(p.tokenBody)
}

// IDToken returns a signed ID token for the subject. The signature uses a
// throwaway key, as ID tokens are not verified.
func IDToken(t *testing.T, issuer, subject string) string {
	t.Helper()

	signer, err := jose.NewSigner(jose.SigningKey{
		Algorithm: jose.HS256,
		Key:       []byte("0123456789abcdef0123456789abcdef"),
	}, (&jose.SignerOptions{}).WithType("JWT"))
	require.NoError(t, err)

	now := time.Now()
	raw, err := jwt.Signed(signer).Claims(jwt.Claims{
		Issuer:   issuer,
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(time.Hour)),
	}).Serialize()
	require.NoError(t, err)

	return raw
}
