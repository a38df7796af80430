// provider.go -- OAuth provider interface and shared types.
package oauth

import (
	"context"
	"errors"
)

// ErrExchange wraps failures of the authorization-code exchange. Codes are
// single-use; callers must not retry a failed exchange.
var ErrExchange = errors.New("authorization code exchange failed")

// ErrIdentity wraps failures after the exchange: profile fetch, ID token
// verification, or claim decoding.
var ErrIdentity = errors.New("fetching provider identity failed")

// Claims holds the raw identity claims returned by a provider, verified
// server-side. Email, Name, and Picture are optional -- empty string means
// the provider did not supply them.
type Claims struct {
	Sub     string // provider-specific stable user ID
	Email   string
	Name    string // display name (Google "name", Discord username)
	Picture string // avatar URL
}

// Provider is an OAuth2 identity provider.
// Implementations handle provider-specific auth URLs, code exchange, and
// identity verification. Providers that support PKCE (RFC 7636) report it via
// UsesPKCE; callers pass the code_challenge to AuthCodeURL and the matching
// code_verifier to Exchange, and pass empty strings for the rest.
type Provider interface {
	// Name returns the provider identifier used as the URL param and stored in the DB.
	Name() string

	// UsesPKCE reports whether the provider's code flow carries a PKCE verifier.
	UsesPKCE() bool

	// AuthCodeURL returns the consent page redirect URL with state (and, for
	// PKCE providers, the code_challenge) embedded.
	AuthCodeURL(state, codeChallenge string) string

	// Exchange trades the authorization code for verified identity claims.
	// Failures are wrapped in ErrExchange or ErrIdentity; never retried.
	Exchange(ctx context.Context, code, codeVerifier string) (*Claims, error)
}
