// Package testutil issues signed identity tokens and matching verifiers for
// provider and exchange tests.
package testutil

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// Issuer signs RS256 identity tokens the way Google and Apple do.
type Issuer struct {
	URL string
	key *rsa.PrivateKey
}

func NewIssuer(t *testing.T, url string) *Issuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &Issuer{URL: url, key: key}
}

// Sign issues a token for audience with the given subject, nonce and extra claims.
func (i *Issuer) Sign(t *testing.T, audience, subject, nonce string, extra map[string]any) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": i.URL,
		"aud": audience,
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(10 * time.Minute).Unix(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	for k, v := range extra {
		claims[k] = v
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "test-key"
	signed, err := token.SignedString(i.key)
	require.NoError(t, err)
	return signed
}

// Verifier returns a go-oidc verifier that trusts this issuer for clientID.
func (i *Issuer) Verifier(clientID string) *oidc.IDTokenVerifier {
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&i.key.PublicKey}}
	return oidc.NewVerifier(i.URL, keySet, &oidc.Config{ClientID: clientID})
}
