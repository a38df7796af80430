// validate_handler.go -- session validation with sliding renewal.
//
// Checks Redis first, Postgres as fallback. The response is a verdict only:
// absent, malformed, and expired sessions are externally identical.
package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/gatehouse-dev/gatehouse/internal/store"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// Validate handles GET /validate. Always answers 200 with
// {"unauthorized": true|false}; internal failures collapse to unauthorized.
// When the session is inside its renewal window (less than half the TTL
// remaining), its expiry is extended atomically and the cookie re-issued with
// the same token value and the new expiry.
func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	sessCookie, err := r.Cookie(sessionCookieName)
	if err != nil || sessCookie.Value == "" {
		writeVerdict(w, true)
		return
	}
	rawToken, err := base64.RawURLEncoding.DecodeString(sessCookie.Value)
	if err != nil {
		logWarn(r, "validate: invalid session cookie encoding")
		writeVerdict(w, true)
		return
	}

	// Storage knows only the hash; compute the lookup key from the cookie.
	tokenHash := sha256.Sum256(rawToken)
	cacheKey := base64.RawURLEncoding.EncodeToString(tokenHash[:])
	now := time.Now()

	var userID uuid.UUID
	var expiresAt time.Time

	cached, err := h.RS.GetSession(r.Context(), cacheKey)
	if err == nil && now.Before(cached.ExpiresAt) {
		userID = cached.UserID
		expiresAt = cached.ExpiresAt
	} else {
		if err != nil && !errors.Is(err, store.ErrCacheMiss) {
			// Real Redis failure -- Postgres covers it, but this warrants attention.
			logError(r, "redis session lookup failed, falling back to postgres", "error", err)
		}
		sess, err := h.PS.GetSessionByTokenHash(r.Context(), tokenHash[:])
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				logWarn(r, "validate: session not found or expired")
			} else {
				logError(r, "validate: session lookup failed", "error", err)
			}
			writeVerdict(w, true)
			return
		}
		userID = sess.UserID
		expiresAt = sess.ExpiresAt

		// Repopulate cache with the remaining lifetime; non-fatal on failure.
		if err := h.RS.SetSession(r.Context(), cacheKey, store.CachedSession{
			UserID: userID, ExpiresAt: expiresAt,
		}, time.Until(expiresAt)); err != nil {
			logWarn(r, "failed to repopulate session cache", "error", err)
		}
	}

	// Sliding renewal: only once remaining lifetime drops below half the TTL.
	// The store's conditional UPDATE re-checks the window, so concurrent
	// validations of the same token extend it exactly once.
	if expiresAt.Sub(now) < h.SessionTTL/2 {
		newExpiry := now.Add(h.SessionTTL)
		renewed, err := h.PS.RenewSession(r.Context(), tokenHash[:], newExpiry, now.Add(h.SessionTTL/2))
		if err != nil {
			// Session is still valid; renewal just didn't happen this time.
			logError(r, "validate: session renewal failed", "error", err)
		} else if renewed {
			if err := h.RS.SetSession(r.Context(), cacheKey, store.CachedSession{
				UserID: userID, ExpiresAt: newExpiry,
			}, h.SessionTTL); err != nil {
				logWarn(r, "failed to update session cache after renewal", "error", err)
			}
			// Token value unchanged; only the cookie lifetime moves.
			SetSessionCookie(w, rawToken, newExpiry)
			logInfo(r, "session renewed", "user_id", userID)
		}
	}

	writeVerdict(w, false)
}
