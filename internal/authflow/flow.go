// Package authflow drives the OpenID Connect authorization code flow with
// PKCE. Begin prepares the authorization request, PersistBeforeNavigate
// stores its secrets out of process, and Complete validates the callback and
// exchanges the code.
//
// ID tokens are not verified. The subject is only read for debug logging.
package authflow

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"golang.org/x/oauth2"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/oidc-login/internal/discovery"
	"github.com/openkcm/oidc-login/internal/httpclient"
	"github.com/openkcm/oidc-login/internal/pkce"
	"github.com/openkcm/oidc-login/internal/proof"
	"github.com/openkcm/oidc-login/internal/serviceerr"
	"github.com/openkcm/oidc-login/internal/tokens"
)

const ScopeOpenID = "openid"

type Flow struct {
	discovery *discovery.Client
	proofs    *proof.Store
	exchange  *httpclient.Client
	source    pkce.Source
	scopes    []string
}

type Option func(*Flow)

// WithScopes adds scopes to the authorization request. openid is always
// requested.
func WithScopes(scopes ...string) Option {
	return func(f *Flow) {
		for _, s := range scopes {
			if s != "" && !slices.Contains(f.scopes, s) {
				f.scopes = append(f.scopes, s)
			}
		}
	}
}

// WithTokenExchangeClient sets the client the code exchange is sent with.
// A code can be redeemed once, so its policy normally has a single attempt.
func WithTokenExchangeClient(c *httpclient.Client) Option {
	return func(f *Flow) { f.exchange = c }
}

func NewFlow(disc *discovery.Client, proofs *proof.Store, opts ...Option) *Flow {
	f := &Flow{
		discovery: disc,
		proofs:    proofs,
		scopes:    []string{ScopeOpenID},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	if f.exchange == nil {
		f.exchange = httpclient.New(httpclient.WithPolicy(httpclient.RetryPolicy{MaxAttempts: 1}))
	}

	return f
}

// Begin builds the authorization URL and the secrets bound to it. The secrets
// are not persisted; call PersistBeforeNavigate before leaving for the
// provider.
func (f *Flow) Begin(ctx context.Context, c Client) (AuthSession, error) {
	ep, err := f.discovery.Discover(ctx, c.IssuerURL)
	if err != nil {
		return AuthSession{}, err
	}

	pair := f.source.PKCE()
	p := &pending{
		state:    f.source.State(),
		nonce:    f.source.Nonce(),
		verifier: pair.Verifier,
	}

	authURL := f.oauth2Config(c, ep).AuthCodeURL(p.state,
		oauth2.SetAuthURLParam("code_challenge", pair.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", pair.Method),
		oauth2.SetAuthURLParam("nonce", p.nonce),
	)

	slogctx.Debug(ctx, "Prepared authorization request", "issuer", c.IssuerURL, "scopes", f.scopes)

	return AuthSession{
		AuthorizationURL: authURL,
		pending:          p,
	}, nil
}

// PersistBeforeNavigate writes the pending secrets of the session to the
// proof store. Storage failures are logged by the store and surface later as
// a missing proof.
func (f *Flow) PersistBeforeNavigate(ctx context.Context, s AuthSession) error {
	rec, ok := s.proofRecord()
	if !ok || !rec.Complete() {
		return fmt.Errorf("%w: session has no pending login", serviceerr.ErrMissingProof)
	}

	f.proofs.Save(ctx, rec)

	return nil
}

// Complete consumes the persisted proof, validates the callback and exchanges
// the code for tokens. The proof is gone afterwards whatever the outcome, so a
// failed completion needs a new Begin.
func (f *Flow) Complete(ctx context.Context, c Client, callbackURL *url.URL) (AuthSession, error) {
	rec := f.proofs.Take(ctx)
	if !rec.Complete() {
		slogctx.Debug(ctx, "Login proof incomplete", "proof", rec)
		return AuthSession{}, serviceerr.ErrMissingProof
	}

	q := callbackURL.Query()
	if code := q.Get("error"); code != "" {
		return AuthSession{}, serviceerr.FromOAuth(code, q.Get("error_description"))
	}

	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		return AuthSession{}, serviceerr.ErrMissingCallbackParams
	}

	if subtle.ConstantTimeCompare([]byte(state), []byte(rec.State)) != 1 {
		return AuthSession{}, serviceerr.ErrInvalidState
	}

	ep, err := f.discovery.Discover(ctx, c.IssuerURL)
	if err != nil {
		return AuthSession{}, err
	}

	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, f.exchange.HTTPClient())
	tok, err := f.oauth2Config(c, ep).Exchange(exchangeCtx, code, oauth2.VerifierOption(rec.PKCEVerifier))
	if err != nil {
		return AuthSession{}, exchangeError(err)
	}

	s := AuthSession{
		AccessToken:  tokens.NewSecret(tok.AccessToken),
		RefreshToken: tokens.NewSecret(tok.RefreshToken),
	}
	if raw, ok := tok.Extra("id_token").(string); ok && raw != "" {
		s.IDToken = tokens.NewSecret(raw)
		logSubject(ctx, raw)
	}

	slogctx.Debug(ctx, "Exchanged authorization code", "issuer", c.IssuerURL,
		"has_refresh_token", !s.RefreshToken.IsEmpty(), "expiry", tok.Expiry)

	return s, nil
}

// Logout clears the tokens and any proof left by an abandoned login. It is
// safe to call when nobody is logged in. The slot is always emptied; the
// returned error only reports persisted tokens that could not be removed.
func (f *Flow) Logout(ctx context.Context, w *tokens.Writer) error {
	err := w.Clear(ctx)
	f.proofs.Clear(ctx)

	if err != nil {
		return fmt.Errorf("clearing persisted tokens: %w", err)
	}

	return nil
}

func (f *Flow) oauth2Config(c Client, ep discovery.Endpoints) *oauth2.Config {
	style := oauth2.AuthStyleInParams
	if !c.Secret.IsEmpty() {
		style = oauth2.AuthStyleInHeader
	}

	return &oauth2.Config{
		ClientID:     c.ID,
		ClientSecret: c.Secret.Value(),
		Endpoint:     ep.OAuth2(style),
		RedirectURL:  c.RedirectURL,
		Scopes:       f.scopes,
	}
}

func exchangeError(err error) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) && rErr.ErrorCode != "" {
		return fmt.Errorf("%w: %w", serviceerr.ErrTokenExchange,
			serviceerr.FromOAuth(rErr.ErrorCode, rErr.ErrorDescription))
	}

	return fmt.Errorf("%w: %w", serviceerr.ErrTokenExchange, err)
}

var idTokenAlgs = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.PS256, jose.PS384, jose.PS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.EdDSA, jose.HS256,
}

func logSubject(ctx context.Context, raw string) {
	parsed, err := jwt.ParseSigned(raw, idTokenAlgs)
	if err != nil {
		slogctx.Debug(ctx, "ID token is not a JWS", "error", err)
		return
	}

	var claims jwt.Claims
	if err := parsed.UnsafeClaimsWithoutVerification(&claims); err != nil {
		slogctx.Debug(ctx, "ID token claims unreadable", "error", err)
		return
	}

	slogctx.Debug(ctx, "Received ID token (unverified)", "subject", claims.Subject, "issuer", claims.Issuer)
}
