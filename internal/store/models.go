// models.go -- Shared domain types for the store package.
// Used by both Postgres (durable store) and Redis (cache layer).
package store

import (
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrCacheMiss is returned by GetSession when the key is not in Redis.
// Callers use errors.Is to distinguish a true miss from a Redis infrastructure failure.
var ErrCacheMiss = errors.New("cache miss")

// User represents a row in the users table.
// Exactly one of DiscordID / GoogleID is set (enforced by a DB CHECK);
// nil means SQL NULL.
type User struct {
	ID          uuid.UUID
	Email       string
	Username    string
	DisplayName string
	AvatarURL   string
	DiscordID   *string
	GoogleID    *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Session represents a row in the sessions table. TokenHash is the SHA-256 of
// the bearer token and doubles as the primary key; the raw token is never stored.
type Session struct {
	TokenHash []byte
	UserID    uuid.UUID
	ExpiresAt time.Time
	CreatedAt time.Time
}

// CachedSession is the JSON shape stored in Redis for cached sessions.
// Only the fields needed for fast validation -- the durable row lives in Postgres.
type CachedSession struct {
	UserID    uuid.UUID `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UniqueViolation reports whether err is a Postgres unique constraint
// violation, and if so which constraint. Callers branch on the constraint name
// to tell a provider-id create race from a username collision.
func UniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	return "", false
}
