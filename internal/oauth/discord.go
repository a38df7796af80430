// discord.go -- Discord OAuth2 provider implementation.
//
// Discord issues no ID token; identity comes from the /users/@me profile
// endpoint, authenticated with the freshly exchanged access token.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const discordAPIBase = "https://discord.com/api/v10"

var discordEndpoint = oauth2.Endpoint{
	AuthURL:  "https://discord.com/oauth2/authorize",
	TokenURL: "https://discord.com/api/oauth2/token",
}

// DiscordProvider implements Provider using Discord's plain OAuth2 code flow
// (no PKCE).
type DiscordProvider struct {
	config  *oauth2.Config
	apiBase string
	client  *http.Client
}

// NewDiscordProvider creates a DiscordProvider. No startup network calls;
// timeout bounds the code exchange and the profile fetch.
func NewDiscordProvider(clientID, clientSecret, redirectURL string, timeout time.Duration) *DiscordProvider {
	return &DiscordProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     discordEndpoint,
			Scopes:       []string{"identify", "email"},
		},
		apiBase: discordAPIBase,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns "discord".
func (p *DiscordProvider) Name() string { return "discord" }

// UsesPKCE returns false; Discord's code flow here is state-only.
func (p *DiscordProvider) UsesPKCE() bool { return false }

// AuthCodeURL builds the Discord consent page URL with state embedded.
// The codeChallenge argument is ignored.
func (p *DiscordProvider) AuthCodeURL(state, _ string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for identity claims by exchanging the
// code and then fetching the user's profile. The codeVerifier argument is ignored.
func (p *DiscordProvider) Exchange(ctx context.Context, code, _ string) (*Claims, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: exchanging code: %v", ErrExchange, err)
	}
	return p.fetchIdentity(ctx, token.AccessToken)
}

// fetchIdentity calls GET /users/@me with the access token and normalizes the
// response into Claims.
func (p *DiscordProvider) fetchIdentity(ctx context.Context, accessToken string) (*Claims, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+"/users/@me", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building profile request: %v", ErrIdentity, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching profile: %v", ErrIdentity, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: profile endpoint returned %d", ErrIdentity, resp.StatusCode)
	}

	var u struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Email    string `json:"email"`
		Avatar   string `json:"avatar"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("%w: decoding profile response: %v", ErrIdentity, err)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("%w: profile response missing id", ErrIdentity)
	}

	return &Claims{
		Sub:     u.ID,
		Email:   u.Email,
		Name:    u.Username,
		Picture: discordAvatarURL(u.ID, u.Avatar),
	}, nil
}

// discordAvatarURL builds the CDN URL for an avatar hash. Discord returns the
// bare hash; an empty hash means the user has no custom avatar.
func discordAvatarURL(userID, hash string) string {
	if hash == "" {
		return ""
	}
	return fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.png", userID, hash)
}
