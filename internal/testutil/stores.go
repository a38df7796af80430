// stores.go
//
// Shared mock implementations of auth.Store, auth.SessionCache, and
// oauth.Provider. Imported by test files across packages to avoid duplicate
// mock definitions.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/gatehouse-dev/gatehouse/internal/oauth"
	"github.com/gatehouse-dev/gatehouse/internal/store"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// UniqueViolationErr fabricates the pgconn error shape the Postgres store
// surfaces for a 23505 unique constraint violation.
func UniqueViolationErr(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

// MockStore implements auth.Store for tests.
//
// Stateful: Users and Sessions behave like a real store, including unique
// constraint checks on username and provider ids. Use the *Err fields to
// inject errors for specific operations.
type MockStore struct {
	GetUserErr       error
	CreateUserErr    error
	CreateSessionErr error
	GetSessionErr    error
	RenewSessionErr  error

	// LookupMissOnce makes the next GetUserByProviderID report pgx.ErrNoRows
	// even when the user exists, to simulate losing a create race.
	LookupMissOnce bool

	Users    map[string]*store.User    // keyed by provider:providerID
	Sessions map[string]*store.Session // keyed by string(tokenHash)

	mu sync.Mutex
}

// NewMockStore returns a MockStore seeded with the given users.
func NewMockStore(users ...*store.User) *MockStore {
	ms := &MockStore{
		Users:    make(map[string]*store.User),
		Sessions: make(map[string]*store.Session),
	}
	for _, u := range users {
		ms.Users[userKey(u)] = u
	}
	return ms
}

func userKey(u *store.User) string {
	if u.DiscordID != nil {
		return "discord:" + *u.DiscordID
	}
	if u.GoogleID != nil {
		return "google:" + *u.GoogleID
	}
	return "none:" + u.ID.String()
}

func (m *MockStore) GetUserByProviderID(_ context.Context, provider, providerID string) (*store.User, error) {
	if m.GetUserErr != nil {
		return nil, m.GetUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LookupMissOnce {
		m.LookupMissOnce = false
		return nil, pgx.ErrNoRows
	}
	u, ok := m.Users[provider+":"+providerID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return u, nil
}

func (m *MockStore) CreateUser(_ context.Context, u *store.User) error {
	if m.CreateUserErr != nil {
		return m.CreateUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.Users {
		if ex.Username == u.Username {
			return UniqueViolationErr("users_username_key")
		}
		if u.DiscordID != nil && ex.DiscordID != nil && *ex.DiscordID == *u.DiscordID {
			return UniqueViolationErr("users_discord_id_key")
		}
		if u.GoogleID != nil && ex.GoogleID != nil && *ex.GoogleID == *u.GoogleID {
			return UniqueViolationErr("users_google_id_key")
		}
	}
	cp := *u
	m.Users[userKey(u)] = &cp
	return nil
}

func (m *MockStore) CreateSession(_ context.Context, tokenHash []byte, userID uuid.UUID, expiresAt time.Time) error {
	if m.CreateSessionErr != nil {
		return m.CreateSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sessions[string(tokenHash)] = &store.Session{
		TokenHash: tokenHash,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	return nil
}

func (m *MockStore) GetSessionByTokenHash(_ context.Context, tokenHash []byte) (*store.Session, error) {
	if m.GetSessionErr != nil {
		return nil, m.GetSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.Sessions[string(tokenHash)]
	if !ok || !sess.ExpiresAt.After(time.Now()) {
		// Absent and expired are the same answer, as in the real store.
		return nil, pgx.ErrNoRows
	}
	return sess, nil
}

func (m *MockStore) RenewSession(_ context.Context, tokenHash []byte, newExpiry, renewBefore time.Time) (bool, error) {
	if m.RenewSessionErr != nil {
		return false, m.RenewSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.Sessions[string(tokenHash)]
	if !ok || !sess.ExpiresAt.After(time.Now()) || !sess.ExpiresAt.Before(renewBefore) {
		return false, nil
	}
	sess.ExpiresAt = newExpiry
	return true, nil
}

// MockCache implements auth.SessionCache for tests.
type MockCache struct {
	GetErr error
	SetErr error

	Sessions map[string]*store.CachedSession

	mu sync.Mutex
}

// NewMockCache returns an empty MockCache.
func NewMockCache() *MockCache {
	return &MockCache{Sessions: make(map[string]*store.CachedSession)}
}

func (m *MockCache) GetSession(_ context.Context, tokenHash string) (*store.CachedSession, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.Sessions[tokenHash]
	if !ok {
		return nil, store.ErrCacheMiss
	}
	return sess, nil
}

func (m *MockCache) SetSession(_ context.Context, tokenHash string, sess store.CachedSession, _ time.Duration) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sessions[tokenHash] = &sess
	return nil
}

// FakeProvider implements oauth.Provider for tests.
type FakeProvider struct {
	ProviderName string
	PKCE         bool
	BaseURL      string
	Claims       *oauth.Claims
	ExchangeErr  error

	// LastCode and LastVerifier record the most recent Exchange call.
	LastCode     string
	LastVerifier string
}

func (f *FakeProvider) Name() string   { return f.ProviderName }
func (f *FakeProvider) UsesPKCE() bool { return f.PKCE }

func (f *FakeProvider) AuthCodeURL(state, codeChallenge string) string {
	u := f.BaseURL + "?state=" + state
	if codeChallenge != "" {
		u += "&code_challenge=" + codeChallenge
	}
	return u
}

func (f *FakeProvider) Exchange(_ context.Context, code, codeVerifier string) (*oauth.Claims, error) {
	f.LastCode = code
	f.LastVerifier = codeVerifier
	if f.ExchangeErr != nil {
		return nil, f.ExchangeErr
	}
	return f.Claims, nil
}
