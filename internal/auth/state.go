// state.go -- CSRF state and PKCE verifier handling for the OAuth round-trip.
//
// State and verifier live only in short-lived HttpOnly cookies; nothing is
// persisted server-side. Cookie names follow the provider
// (discord_oauth_state, google_oauth_state, google_code_verifier).
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/gatehouse-dev/gatehouse/internal/oauth"
)

// ErrInvalidState covers every state-verification failure: state missing on
// either side, mismatch, or a required verifier that is absent. One error for
// all of them -- the callback must not reveal which check failed.
var ErrInvalidState = errors.New("invalid oauth callback state")

// ErrMissingCode is returned when the callback carries no authorization code.
var ErrMissingCode = errors.New("missing authorization code")

// generateRawToken returns 32 bytes of crypto/rand as raw-URL base64.
// Used for state tokens and PKCE verifiers.
func generateRawToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generating token with rand: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

// codeChallenge derives the S256 PKCE challenge from a verifier.
func codeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func stateCookieName(provider string) string {
	return provider + "_oauth_state"
}

func verifierCookieName(provider string) string {
	return provider + "_code_verifier"
}

// setFlowCookie writes a short-lived HttpOnly cookie carrying OAuth flow state.
func setFlowCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

// clearFlowCookie expires a flow cookie immediately. State is single-use;
// the callback clears its cookies before deciding anything else.
func clearFlowCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// callbackInput is the request-scoped flow state of one callback: query
// params plus the matching flow cookies, read once at the handler boundary.
type callbackInput struct {
	Code        string
	State       string
	StoredState string
	Verifier    string
}

// readCallbackInput extracts the code/state query params and the provider's
// flow cookies from the request. Absent cookies read as empty strings;
// verifyCallback treats empty as invalid.
func readCallbackInput(r *http.Request, provider oauth.Provider) callbackInput {
	in := callbackInput{
		Code:  r.URL.Query().Get("code"),
		State: r.URL.Query().Get("state"),
	}
	if c, err := r.Cookie(stateCookieName(provider.Name())); err == nil {
		in.StoredState = c.Value
	}
	if provider.UsesPKCE() {
		if c, err := r.Cookie(verifierCookieName(provider.Name())); err == nil {
			in.Verifier = c.Value
		}
	}
	return in
}

// verifyCallback fails closed: missing code, missing state on either side,
// state mismatch, or a required-but-absent verifier each reject the callback.
// The state comparison is constant-time and exact (case-sensitive, no
// normalization).
func verifyCallback(in callbackInput, needVerifier bool) error {
	if in.Code == "" {
		return ErrMissingCode
	}
	if in.State == "" || in.StoredState == "" {
		return ErrInvalidState
	}
	if subtle.ConstantTimeCompare([]byte(in.State), []byte(in.StoredState)) != 1 {
		return ErrInvalidState
	}
	if needVerifier && in.Verifier == "" {
		return ErrInvalidState
	}
	return nil
}
