// Package discovery fetches and caches the OpenID provider metadata.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/zitadel/oidc/v3/pkg/oidc"
	"golang.org/x/oauth2"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/oidc-login/internal/httpclient"
	"github.com/openkcm/oidc-login/internal/serviceerr"
	"github.com/openkcm/oidc-login/internal/tokens"
)

const DefaultCacheTTL = time.Hour

// Endpoints are the parts of the provider metadata a login needs.
type Endpoints struct {
	Issuer                string
	AuthorizationEndpoint string
	TokenEndpoint         string
	CodeChallengeMethods  []string
}

// OAuth2 returns the endpoints in the form golang.org/x/oauth2 expects.
func (e Endpoints) OAuth2(authStyle oauth2.AuthStyle) oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   e.AuthorizationEndpoint,
		TokenURL:  e.TokenEndpoint,
		AuthStyle: authStyle,
	}
}

type Client struct {
	http  *httpclient.Client
	cache *cache.Cache
}

type Option func(*Client)

// WithCacheTTL sets how long metadata is reused. Zero or less disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl <= 0 {
			c.cache = nil
			return
		}
		c.cache = cache.New(ttl, 2*ttl)
	}
}

func NewClient(httpClient *httpclient.Client, opts ...Option) *Client {
	c := &Client{
		http:  httpClient,
		cache: cache.New(DefaultCacheTTL, 2*DefaultCacheTTL),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// Discover returns the endpoints of the issuer. Every failure is a
// DiscoveryError.
func (c *Client) Discover(ctx context.Context, issuerURL string) (Endpoints, error) {
	const wkocPrefix = "wkoc_"

	cacheKey := wkocPrefix + issuerURL
	if c.cache != nil {
		if cached, ok := c.cache.Get(cacheKey); ok {
			//nolint:forcetypeassert
			return cached.(Endpoints), nil
		}
	}

	conf, err := c.fetch(ctx, issuerURL)
	if err != nil {
		return Endpoints{}, fmt.Errorf("%w: %w", serviceerr.ErrDiscovery, err)
	}

	ep := Endpoints{
		Issuer:                conf.Issuer,
		AuthorizationEndpoint: conf.AuthorizationEndpoint,
		TokenEndpoint:         conf.TokenEndpoint,
	}
	for _, m := range conf.CodeChallengeMethodsSupported {
		ep.CodeChallengeMethods = append(ep.CodeChallengeMethods, string(m))
	}

	if c.cache != nil {
		c.cache.Set(cacheKey, ep, cache.DefaultExpiration)
	}

	slogctx.Debug(ctx, "Discovered provider endpoints", "issuer", ep.Issuer,
		"authorization_endpoint", ep.AuthorizationEndpoint, "token_endpoint", ep.TokenEndpoint)

	return ep, nil
}

func (c *Client) fetch(ctx context.Context, issuerURL string) (*oidc.DiscoveryConfiguration, error) {
	u, err := url.JoinPath(issuerURL, oidc.DiscoveryEndpoint)
	if err != nil {
		return nil, fmt.Errorf("building path to the well-known openid-config endpoint: %w", err)
	}

	resp, err := c.http.Get(ctx, u, tokens.Secret{})
	if err != nil {
		return nil, fmt.Errorf("doing an HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("well-known openid config returned status: %d", resp.StatusCode)
	}

	var conf oidc.DiscoveryConfiguration
	if err := json.NewDecoder(resp.Body).Decode(&conf); err != nil {
		return nil, fmt.Errorf("decoding a well-known openid config: %w", err)
	}

	if conf.Issuer != issuerURL {
		return nil, fmt.Errorf("issuer mismatch: got %q, want %q", conf.Issuer, issuerURL)
	}
	if conf.AuthorizationEndpoint == "" {
		return nil, errors.New("missing authorization_endpoint")
	}
	if conf.TokenEndpoint == "" {
		return nil, errors.New("missing token_endpoint")
	}
	// an empty list means the provider does not advertise its methods
	if len(conf.CodeChallengeMethodsSupported) > 0 &&
		!slices.Contains(conf.CodeChallengeMethodsSupported, oidc.CodeChallengeMethodS256) {
		return nil, fmt.Errorf("provider does not support the %s code challenge method", oidc.CodeChallengeMethodS256)
	}

	return &conf, nil
}
