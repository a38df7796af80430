// Package store handles all database and cache interactions.
//
// postgres.go -- pgxpool connection setup and queries.
// Creates a connection pool at startup, shared across all handlers.
// All queries use parameterized statements (no string concatenation of input).
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the durable store for users and sessions.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a verified connection pool to PostgreSQL and
// returns a ready-to-use store. Call once at startup from main.go; the
// returned store is safe for concurrent use.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool}, nil
}

// Close shuts down the connection pool and releases all resources.
// Call via defer in main.go after creating the store.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// providerColumn maps a provider name to its users column. Only values from
// this table are ever interpolated into SQL.
func providerColumn(provider string) (string, error) {
	switch provider {
	case "discord":
		return "discord_id", nil
	case "google":
		return "google_id", nil
	default:
		return "", fmt.Errorf("unknown provider %q", provider)
	}
}

// GetUserByProviderID fetches a user by the provider-specific id column.
// Returns pgx.ErrNoRows if no user has this provider identity.
func (s *PostgresStore) GetUserByProviderID(ctx context.Context, provider, providerID string) (*User, error) {
	col, err := providerColumn(provider)
	if err != nil {
		return nil, err
	}
	var u User
	err = s.pool.QueryRow(ctx,
		`SELECT id, email, username, display_name, avatar_url, discord_id, google_id, created_at, updated_at
		   FROM users WHERE `+col+` = $1`,
		providerID,
	).Scan(&u.ID, &u.Email, &u.Username, &u.DisplayName, &u.AvatarURL, &u.DiscordID, &u.GoogleID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user row. The caller generates the UUID v7 first.
// Returns the raw pgx error; callers inspect it with UniqueViolation to tell
// a provider-id create race from a username collision.
func (s *PostgresStore) CreateUser(ctx context.Context, u *User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, username, display_name, avatar_url, discord_id, google_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.Username, u.DisplayName, u.AvatarURL, u.DiscordID, u.GoogleID)
	return err
}

// CreateSession inserts a new session row keyed by the token hash.
func (s *PostgresStore) CreateSession(ctx context.Context, tokenHash []byte, userID uuid.UUID, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO sessions (token_hash, user_id, expires_at) VALUES ($1, $2, $3)",
		tokenHash, userID, expiresAt)
	return err
}

// GetSessionByTokenHash fetches a valid (non-expired) session by token hash.
// Returns pgx.ErrNoRows if not found or expired -- callers cannot tell the two
// apart, which is the intended external behavior.
func (s *PostgresStore) GetSessionByTokenHash(ctx context.Context, tokenHash []byte) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx,
		"SELECT token_hash, user_id, expires_at, created_at FROM sessions WHERE token_hash = $1 AND expires_at > now()",
		tokenHash,
	).Scan(&sess.TokenHash, &sess.UserID, &sess.ExpiresAt, &sess.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// RenewSession extends a session to newExpiry, but only if the session is
// still valid and already inside the renewal window (expires before
// renewBefore). The single conditional UPDATE makes renewal atomic under
// concurrent validations of the same token; at most one of them updates the row.
// Returns whether this call performed the renewal.
func (s *PostgresStore) RenewSession(ctx context.Context, tokenHash []byte, newExpiry, renewBefore time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		"UPDATE sessions SET expires_at = $2 WHERE token_hash = $1 AND expires_at > now() AND expires_at < $3",
		tokenHash, newExpiry, renewBefore)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CleanupExpiredSessions deletes sessions that expired more than retention ago.
// Recently expired rows are kept around so investigations can still see them.
// Returns the number of rows deleted.
func (s *PostgresStore) CleanupExpiredSessions(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM sessions WHERE expires_at < $1",
		time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
