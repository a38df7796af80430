// google.go -- Google OAuth2 + OIDC provider implementation.
package oauth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// GoogleProvider implements Provider using Google's OIDC discovery + OAuth2
// code flow with PKCE (S256). Identity comes from the signed ID token, never
// from an unauthenticated profile call.
type GoogleProvider struct {
	config   *oauth2.Config
	verifier *oidc.IDTokenVerifier
	client   *http.Client
}

// NewGoogleProvider creates a GoogleProvider by fetching Google's OIDC
// discovery document. Makes an outbound HTTP request to accounts.google.com at
// startup; returns an error if unreachable. timeout bounds that request and
// every later exchange and JWKS fetch.
func NewGoogleProvider(ctx context.Context, clientID, clientSecret, redirectURL string, timeout time.Duration) (*GoogleProvider, error) {
	client := &http.Client{Timeout: timeout}
	p, err := oidc.NewProvider(oidc.ClientContext(ctx, client), "https://accounts.google.com")
	if err != nil {
		return nil, fmt.Errorf("google oidc discovery: %w", err)
	}
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     p.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
		verifier: p.Verifier(&oidc.Config{ClientID: clientID}),
		client:   client,
	}, nil
}

// Name returns "google".
func (p *GoogleProvider) Name() string { return "google" }

// UsesPKCE returns true; every Google authorization request carries an S256 challenge.
func (p *GoogleProvider) UsesPKCE() bool { return true }

// AuthCodeURL builds the Google consent page URL with state and PKCE S256
// challenge embedded.
func (p *GoogleProvider) AuthCodeURL(state, codeChallenge string) string {
	return p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// Exchange trades an authorization code for verified identity claims.
// Verifies the returned ID token signature against Google's JWKS and checks
// issuer, audience, and expiry before trusting any claim.
func (p *GoogleProvider) Exchange(ctx context.Context, code, codeVerifier string) (*Claims, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	token, err := p.config.Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: exchanging code: %v", ErrExchange, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("%w: no id_token in token response", ErrIdentity)
	}

	idToken, err := p.verifier.Verify(oidc.ClientContext(ctx, p.client), rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: verifying id token: %v", ErrIdentity, err)
	}

	var c struct {
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := idToken.Claims(&c); err != nil {
		return nil, fmt.Errorf("%w: extracting id token claims: %v", ErrIdentity, err)
	}
	if c.Sub == "" {
		return nil, fmt.Errorf("%w: id token has no sub claim", ErrIdentity)
	}

	return &Claims{
		Sub:     c.Sub,
		Email:   c.Email,
		Name:    c.Name,
		Picture: c.Picture,
	}, nil
}
