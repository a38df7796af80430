// handler.go -- AuthHandler dependencies and consumer-side interfaces.
package auth

import (
	"context"
	"time"

	"github.com/gatehouse-dev/gatehouse/internal/oauth"
	"github.com/gatehouse-dev/gatehouse/internal/store"
	"github.com/gofrs/uuid/v5"
)

// Store defines database operations needed by auth handlers.
// Satisfied by *store.PostgresStore -- defined here (at consumer) per Go convention.
type Store interface {
	// GetUserByProviderID fetches a user by the provider-specific id column.
	// Returns pgx.ErrNoRows if no user has this provider identity.
	GetUserByProviderID(ctx context.Context, provider, providerID string) (*store.User, error)

	// CreateUser inserts a new user row. Unique violations come back as raw
	// pgx errors for the caller to inspect with store.UniqueViolation.
	CreateUser(ctx context.Context, u *store.User) error

	// CreateSession inserts a new session row keyed by token hash.
	CreateSession(ctx context.Context, tokenHash []byte, userID uuid.UUID, expiresAt time.Time) error

	// GetSessionByTokenHash fetches a valid (non-expired) session by token hash.
	// Returns pgx.ErrNoRows if not found or expired.
	GetSessionByTokenHash(ctx context.Context, tokenHash []byte) (*store.Session, error)

	// RenewSession atomically extends a session to newExpiry if it is valid
	// and expires before renewBefore. Reports whether this call renewed it.
	RenewSession(ctx context.Context, tokenHash []byte, newExpiry, renewBefore time.Time) (bool, error)
}

// SessionCache defines session cache operations needed by auth handlers.
// Satisfied by *store.RedisStore -- defined here (at consumer) per Go convention.
type SessionCache interface {
	// GetSession retrieves a cached session by token hash.
	// Returns store.ErrCacheMiss when absent.
	GetSession(ctx context.Context, tokenHash string) (*store.CachedSession, error)

	// SetSession caches a session with the given TTL.
	SetSession(ctx context.Context, tokenHash string, sess store.CachedSession, ttl time.Duration) error
}

// AuthHandler holds dependencies for all HTTP handlers.
// Providers is keyed by provider name and matched against the {provider} URL param.
type AuthHandler struct {
	PS        Store
	RS        SessionCache
	Providers map[string]oauth.Provider

	// SessionTTL is the full session lifetime; renewal triggers once less
	// than half of it remains.
	SessionTTL time.Duration

	// StateTTL is the max age of the state and verifier cookies.
	StateTTL time.Duration
}
