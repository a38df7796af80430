// session.go

// Session token generation and cookie management.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"
)

// sessionCookieName is the cookie carrying the raw bearer token.
const sessionCookieName = "session"

// GenerateToken returns a 256-bit random session token and its SHA-256 hash.
// Token goes in the cookie; only the hash goes in storage, so a leaked
// sessions table cannot reconstruct a valid cookie value.
func GenerateToken() (token, hash []byte, err error) {
	token = make([]byte, 32)
	if _, err := rand.Read(token); err != nil {
		return nil, nil, fmt.Errorf("generating token with rand: %w", err)
	}
	sum := sha256.Sum256(token)
	return token, sum[:], nil
}

// SetSessionCookie writes the session cookie with HttpOnly, SameSite=Lax, and
// a max age capped to the session's own expiry.
func SetSessionCookie(w http.ResponseWriter, rawToken []byte, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(rawToken),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
	})
}
