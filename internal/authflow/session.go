package authflow

import (
	"github.com/openkcm/oidc-login/internal/proof"
	"github.com/openkcm/oidc-login/internal/tokens"
)

// Client identifies the relying party at the provider. An empty Secret makes
// it a public client.
type Client struct {
	ID          string
	Secret      tokens.Secret
	IssuerURL   string
	RedirectURL string
}

type Phase int

const (
	PhaseAnonymous Phase = iota
	PhaseAuthorizationPrepared
	PhaseAuthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseAuthorizationPrepared:
		return "authorization_prepared"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// pending holds the secrets of a begun login until they are persisted.
type pending struct {
	state    string
	nonce    string
	verifier string
}

// AuthSession is the result of Begin or Complete. Begin sets the
// authorization URL and the pending secrets; Complete sets the tokens.
type AuthSession struct {
	AuthorizationURL string
	AccessToken      tokens.Secret
	RefreshToken     tokens.Secret
	IDToken          tokens.Secret

	pending *pending
}

func (s AuthSession) Phase() Phase {
	switch {
	case !s.AccessToken.IsEmpty():
		return PhaseAuthenticated
	case s.pending != nil:
		return PhaseAuthorizationPrepared
	default:
		return PhaseAnonymous
	}
}

func (s AuthSession) Tokens() tokens.Tokens {
	return tokens.Tokens{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		IDToken:      s.IDToken,
	}
}

// proofRecord converts the pending secrets into their persisted form.
func (s AuthSession) proofRecord() (proof.Record, bool) {
	if s.pending == nil {
		return proof.Record{}, false
	}

	return proof.Record{
		State:        s.pending.state,
		Nonce:        s.pending.nonce,
		PKCEVerifier: s.pending.verifier,
	}, true
}
