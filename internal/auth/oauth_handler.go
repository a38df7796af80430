// oauth_handler.go -- Generic OAuth2 login and callback handlers.
// Provider-specific logic lives in internal/oauth/*.go.
// Adding a new provider: implement oauth.Provider, register it in Providers in main.go.
package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gatehouse-dev/gatehouse/internal/oauth"
	"github.com/gatehouse-dev/gatehouse/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// OAuthLogin handles GET /login/{provider} -- generates the state token (and,
// for PKCE providers, a code verifier), stores them in short-lived HttpOnly
// cookies, and redirects the browser to the provider's consent page.
func (h *AuthHandler) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(r, w)
	if !ok {
		return
	}

	state, err := generateRawToken()
	if err != nil {
		logError(r, "oauth login: generating state failed", "error", err)
		internalError(w)
		return
	}

	maxAge := int(h.StateTTL.Seconds())
	challenge := ""
	if provider.UsesPKCE() {
		verifier, err := generateRawToken()
		if err != nil {
			logError(r, "oauth login: generating verifier failed", "error", err)
			internalError(w)
			return
		}
		setFlowCookie(w, verifierCookieName(provider.Name()), verifier, maxAge)
		challenge = codeChallenge(verifier)
	}
	setFlowCookie(w, stateCookieName(provider.Name()), state, maxAge)

	http.Redirect(w, r, provider.AuthCodeURL(state, challenge), http.StatusFound)
}

// OAuthCallback handles GET /callback/{provider} -- verifies state, exchanges
// the authorization code for identity claims, finds-or-creates the user, and
// issues a session. Every failure, whatever the step, is the same 400 with an
// empty body; no step is retried.
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(r, w)
	if !ok {
		return
	}

	// Read then immediately clear the flow cookies -- state is single-use,
	// success or not.
	in := readCallbackInput(r, provider)
	clearFlowCookie(w, stateCookieName(provider.Name()))
	if provider.UsesPKCE() {
		clearFlowCookie(w, verifierCookieName(provider.Name()))
	}

	if err := verifyCallback(in, provider.UsesPKCE()); err != nil {
		logWarn(r, "oauth callback rejected", "provider", provider.Name(), "error", err)
		badRequest(w)
		return
	}

	claims, err := provider.Exchange(r.Context(), in.Code, in.Verifier)
	if err != nil {
		logWarn(r, "oauth callback: provider exchange failed", "provider", provider.Name(), "error", err)
		badRequest(w)
		return
	}

	user, err := h.findOrCreateUser(r, provider.Name(), resolveIdentity(claims))
	if err != nil {
		logError(r, "oauth callback: find or create user failed", "provider", provider.Name(), "error", err)
		badRequest(w)
		return
	}

	if err := h.issueSession(w, r, user.ID); err != nil {
		logError(r, "oauth callback: issuing session failed", "error", err)
		badRequest(w)
		return
	}

	logInfo(r, "oauth user logged in", "user_id", user.ID, "provider", provider.Name())
	http.Redirect(w, r, "/", http.StatusFound)
}

// findOrCreateUser looks a user up by (provider, providerUserID) and creates
// one on miss. Keyed by provider id, never by email: the same email through a
// different provider is a different user. Safe under concurrent first logins:
// a provider-id unique violation means another request won the race, so the
// existing row is re-fetched and used. Username collisions retry with a
// numeric suffix, then a random one.
func (h *AuthHandler) findOrCreateUser(r *http.Request, provider string, ident Identity) (*store.User, error) {
	ctx := r.Context()

	user, err := h.PS.GetUserByProviderID(ctx, provider, ident.ProviderUserID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	username := ident.Username
	for attempt := 0; attempt < 5; attempt++ {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generating user id: %w", err)
		}
		u := &store.User{
			ID:          id,
			Email:       ident.Email,
			Username:    username,
			DisplayName: ident.DisplayName,
			AvatarURL:   ident.AvatarURL,
		}
		switch provider {
		case "discord":
			u.DiscordID = &ident.ProviderUserID
		case "google":
			u.GoogleID = &ident.ProviderUserID
		default:
			return nil, fmt.Errorf("unknown provider %q", provider)
		}

		err = h.PS.CreateUser(ctx, u)
		if err == nil {
			logInfo(r, "oauth user created", "user_id", id, "provider", provider)
			return u, nil
		}

		constraint, ok := store.UniqueViolation(err)
		if !ok {
			return nil, fmt.Errorf("creating user: %w", err)
		}
		if constraint == "users_username_key" {
			if attempt < 3 {
				username = fmt.Sprintf("%s%d", ident.Username, attempt+2)
			} else {
				username = ident.Username + "_" + randomSuffix()
			}
			continue
		}

		// Provider-id violation: a concurrent first login created this user
		// between our lookup and insert. Use the winner's row.
		existing, err := h.PS.GetUserByProviderID(ctx, provider, ident.ProviderUserID)
		if err != nil {
			return nil, fmt.Errorf("refetching user after create race: %w", err)
		}
		return existing, nil
	}
	return nil, fmt.Errorf("could not allocate a unique username for %q", ident.Username)
}

// issueSession creates a session row for userID (Postgres first, Redis cache
// best-effort) and hands the raw token to the client as the session cookie.
func (h *AuthHandler) issueSession(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
	token, tokenHash, err := GenerateToken()
	if err != nil {
		return err
	}

	expiresAt := time.Now().Add(h.SessionTTL)
	if err := h.PS.CreateSession(r.Context(), tokenHash, userID, expiresAt); err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	cacheKey := base64.RawURLEncoding.EncodeToString(tokenHash)
	if err := h.RS.SetSession(r.Context(), cacheKey, store.CachedSession{
		UserID: userID, ExpiresAt: expiresAt,
	}, h.SessionTTL); err != nil {
		logWarn(r, "failed to cache session in redis", "error", err)
	}

	SetSessionCookie(w, token, expiresAt)
	return nil
}

// provider reads the {provider} URL param and looks it up in Providers.
// Writes 404 and returns (nil, false) when the provider is not configured.
func (h *AuthHandler) provider(r *http.Request, w http.ResponseWriter) (oauth.Provider, bool) {
	name := chi.URLParam(r, "provider")
	p, ok := h.Providers[name]
	if !ok {
		notFound(w)
		return nil, false
	}
	return p, true
}
