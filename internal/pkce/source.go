package pkce

import (
	"crypto/rand"
	"math/big"

	"github.com/zitadel/oidc/v3/pkg/oidc"
	"golang.org/x/oauth2"
)

const MethodS256 = string(oidc.CodeChallengeMethodS256)

type PKCE struct {
	Verifier  string
	Challenge string
	Method    string
}

// Source generates the random values of a login. The zero value is ready to use.
type Source struct{}

func (p Source) randString(n int) string {
	const letters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-"

	ret := make([]byte, n)
	for i := range n {
		num, _ := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		ret[i] = letters[num.Int64()]
	}

	return string(ret)
}

// PKCE returns a 43 character verifier (32 random bytes, base64url) and its
// S256 challenge.
func (p Source) PKCE() PKCE {
	verifier := oauth2.GenerateVerifier()

	return PKCE{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
		Method:    MethodS256,
	}
}

func (p Source) State() string {
	return p.randString(64)
}

func (p Source) Nonce() string {
	return p.randString(32) // Entropy E = L * log2(63) = 32 * log2(63) = 191.3 bits
}

// Verify reports whether the verifier hashes to the challenge.
func Verify(challenge, verifier string) bool {
	return oidc.VerifyCodeChallenge(&oidc.CodeChallenge{
		Challenge: challenge,
		Method:    oidc.CodeChallengeMethodS256,
	}, verifier)
}
