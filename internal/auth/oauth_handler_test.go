// oauth_handler_test.go -- unit tests for OAuthLogin, OAuthCallback, and findOrCreateUser.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gatehouse-dev/gatehouse/internal/oauth"
	"github.com/gatehouse-dev/gatehouse/internal/store"
	"github.com/gatehouse-dev/gatehouse/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
)

// --- Shared helpers ---

// newHandler returns an AuthHandler wired with the given store, cache, and providers.
func newHandler(ms *testutil.MockStore, mc *testutil.MockCache, providers ...oauth.Provider) AuthHandler {
	pm := make(map[string]oauth.Provider, len(providers))
	for _, p := range providers {
		pm[p.Name()] = p
	}
	return AuthHandler{
		PS:         ms,
		RS:         mc,
		Providers:  pm,
		SessionTTL: 720 * time.Hour,
		StateTTL:   10 * time.Minute,
	}
}

// withProviderParam attaches a chi route context carrying the {provider} URL param.
func withProviderParam(r *http.Request, provider string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("provider", provider)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// makeCallbackRequest builds a GET callback request with the given flow
// cookies and ?state=<state>&code=<code> query params.
func makeCallbackRequest(provider, state, code string, cookies map[string]string) *http.Request {
	r := httptest.NewRequest("GET", "/callback/"+provider+"?state="+state+"&code="+code, nil)
	for name, val := range cookies {
		r.AddCookie(&http.Cookie{Name: name, Value: val})
	}
	return withProviderParam(r, provider)
}

// assertCallbackRejected checks for the uniform failure: 400, empty body, no
// session cookie.
func assertCallbackRejected(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: expected 400, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body: expected empty, got %q", w.Body.String())
	}
	if c := findCookie(w, "session"); c != nil {
		t.Error("expected no session cookie on rejection")
	}
}

// findCookie returns the named cookie from the response, or nil.
func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func discordClaims() *oauth.Claims {
	return &oauth.Claims{Sub: "discord-sub-1", Email: "user@example.com", Name: "cooluser", Picture: "https://cdn.discordapp.com/avatars/discord-sub-1/abc.png"}
}

// --- OAuthLogin ---

// TestOAuthLogin_UnknownProvider expects 404 when the provider is not registered.
func TestOAuthLogin_UnknownProvider(t *testing.T) {
	h := newHandler(testutil.NewMockStore(), testutil.NewMockCache())

	r := withProviderParam(httptest.NewRequest(http.MethodGet, "/login/github", nil), "github")
	w := httptest.NewRecorder()
	h.OAuthLogin(w, r)

	if w.Code != http.StatusNotFound {
		t.Errorf("status: expected 404, got %d", w.Code)
	}
}

// TestOAuthLogin_Plain expects 302 with a state cookie and no verifier cookie
// for a provider without PKCE.
func TestOAuthLogin_Plain(t *testing.T) {
	p := &testutil.FakeProvider{ProviderName: "discord", BaseURL: "https://mock.provider.test/auth"}
	h := newHandler(testutil.NewMockStore(), testutil.NewMockCache(), p)

	r := withProviderParam(httptest.NewRequest(http.MethodGet, "/login/discord", nil), "discord")
	w := httptest.NewRecorder()
	h.OAuthLogin(w, r)

	if w.Code != http.StatusFound {
		t.Fatalf("status: expected 302, got %d", w.Code)
	}
	loc := w.Header().Get("Location")
	if !strings.HasPrefix(loc, "https://mock.provider.test/auth") {
		t.Errorf("Location: expected provider URL, got %q", loc)
	}

	stateCookie := findCookie(w, "discord_oauth_state")
	if stateCookie == nil {
		t.Fatal("discord_oauth_state cookie not set")
	}
	if !stateCookie.HttpOnly {
		t.Error("cookie: expected HttpOnly=true")
	}
	if stateCookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie: expected SameSite=Lax, got %v", stateCookie.SameSite)
	}
	if stateCookie.MaxAge != 600 {
		t.Errorf("cookie: expected MaxAge=600, got %d", stateCookie.MaxAge)
	}
	if stateCookie.Path != "/" {
		t.Errorf("cookie: expected Path=/, got %q", stateCookie.Path)
	}
	if !strings.Contains(loc, "state="+stateCookie.Value) {
		t.Errorf("Location state mismatch: cookie state %q not found in %q", stateCookie.Value, loc)
	}
	if findCookie(w, "discord_code_verifier") != nil {
		t.Error("expected no verifier cookie for a non-PKCE provider")
	}
}

// TestOAuthLogin_PKCE expects a verifier cookie and a matching S256 challenge
// embedded in the redirect URL.
func TestOAuthLogin_PKCE(t *testing.T) {
	p := &testutil.FakeProvider{ProviderName: "google", PKCE: true, BaseURL: "https://mock.provider.test/auth"}
	h := newHandler(testutil.NewMockStore(), testutil.NewMockCache(), p)

	r := withProviderParam(httptest.NewRequest(http.MethodGet, "/login/google", nil), "google")
	w := httptest.NewRecorder()
	h.OAuthLogin(w, r)

	if w.Code != http.StatusFound {
		t.Fatalf("status: expected 302, got %d", w.Code)
	}
	verifierCookie := findCookie(w, "google_code_verifier")
	if verifierCookie == nil {
		t.Fatal("google_code_verifier cookie not set")
	}
	if verifierCookie.MaxAge != 600 {
		t.Errorf("verifier cookie: expected MaxAge=600, got %d", verifierCookie.MaxAge)
	}
	loc := w.Header().Get("Location")
	if !strings.Contains(loc, "code_challenge="+codeChallenge(verifierCookie.Value)) {
		t.Errorf("Location: challenge does not match verifier cookie, got %q", loc)
	}
	if findCookie(w, "google_oauth_state") == nil {
		t.Error("google_oauth_state cookie not set")
	}
}

// --- OAuthCallback ---

// TestOAuthCallback_MissingStateCookie verifies an absent state cookie rejects uniformly.
func TestOAuthCallback_MissingStateCookie(t *testing.T) {
	p := &testutil.FakeProvider{ProviderName: "discord", Claims: discordClaims()}
	h := newHandler(testutil.NewMockStore(), testutil.NewMockCache(), p)

	w := httptest.NewRecorder()
	h.OAuthCallback(w, makeCallbackRequest("discord", "abc", "code", nil))

	assertCallbackRejected(t, w)
}

// TestOAuthCallback_StateMismatch verifies a state differing from the cookie rejects.
func TestOAuthCallback_StateMismatch(t *testing.T) {
	p := &testutil.FakeProvider{ProviderName: "discord", Claims: discordClaims()}
	h := newHandler(testutil.NewMockStore(), testutil.NewMockCache(), p)

	w := httptest.NewRecorder()
	h.OAuthCallback(w, makeCallbackRequest("discord", "xyz", "code",
		map[string]string{"discord_oauth_state": "abc"}))

	assertCallbackRejected(t, w)
}

// TestOAuthCallback_MissingCode verifies an absent code rejects.
func TestOAuthCallback_MissingCode(t *testing.T) {
	p := &testutil.FakeProvider{ProviderName: "discord", Claims: discordClaims()}
	h := newHandler(testutil.NewMockStore(), testutil.NewMockCache(), p)

	w := httptest.NewRecorder()
	h.OAuthCallback(w, makeCallbackRequest("discord", "abc", "",
		map[string]string{"discord_oauth_state": "abc"}))

	assertCallbackRejected(t, w)
}

// TestOAuthCallback_MissingVerifier verifies a PKCE provider without its
// verifier cookie rejects even when the state matches.
func TestOAuthCallback_MissingVerifier(t *testing.T) {
	p := &testutil.FakeProvider{ProviderName: "google", PKCE: true, Claims: discordClaims()}
	h := newHandler(testutil.NewMockStore(), testutil.NewMockCache(), p)

	w := httptest.NewRecorder()
	h.OAuthCallback(w, makeCallbackRequest("google", "abc", "code",
		map[string]string{"google_oauth_state": "abc"}))

	assertCallbackRejected(t, w)
}

// TestOAuthCallback_ExchangeError verifies a failed provider exchange rejects
// with the same uniform response.
func TestOAuthCallback_ExchangeError(t *testing.T) {
	p := &testutil.FakeProvider{ProviderName: "discord", ExchangeErr: oauth.ErrExchange}
	h := newHandler(testutil.NewMockStore(), testutil.NewMockCache(), p)

	w := httptest.NewRecorder()
	h.OAuthCallback(w, makeCallbackRequest("discord", "abc", "code",
		map[string]string{"discord_oauth_state": "abc"}))

	assertCallbackRejected(t, w)
}

// TestOAuthCallback_CreateSessionError verifies a session store failure rejects.
func TestOAuthCallback_CreateSessionError(t *testing.T) {
	ms := testutil.NewMockStore()
	ms.CreateSessionErr = errors.New("db error")
	p := &testutil.FakeProvider{ProviderName: "discord", Claims: discordClaims()}
	h := newHandler(ms, testutil.NewMockCache(), p)

	w := httptest.NewRecorder()
	h.OAuthCallback(w, makeCallbackRequest("discord", "abc", "code",
		map[string]string{"discord_oauth_state": "abc"}))

	assertCallbackRejected(t, w)
}

// TestOAuthCallback_ClearsFlowCookies verifies the state cookie is expired by
// the callback response, success or not.
func TestOAuthCallback_ClearsFlowCookies(t *testing.T) {
	p := &testutil.FakeProvider{ProviderName: "google", PKCE: true, Claims: discordClaims()}
	h := newHandler(testutil.NewMockStore(), testutil.NewMockCache(), p)

	w := httptest.NewRecorder()
	h.OAuthCallback(w, makeCallbackRequest("google", "abc", "code", map[string]string{
		"google_oauth_state":   "abc",
		"google_code_verifier": "ver",
	}))

	for _, name := range []string{"google_oauth_state", "google_code_verifier"} {
		c := findCookie(w, name)
		if c == nil {
			t.Errorf("%s: expected clearing cookie in response", name)
			continue
		}
		if c.MaxAge >= 0 {
			t.Errorf("%s: expected negative MaxAge, got %d", name, c.MaxAge)
		}
	}
}

// TestOAuthCallback_NewUser_HappyPath verifies a first login creates the user,
// persists a hashed session, sets the cookie, and redirects to /.
func TestOAuthCallback_NewUser_HappyPath(t *testing.T) {
	ms := testutil.NewMockStore()
	p := &testutil.FakeProvider{ProviderName: "discord", Claims: discordClaims()}
	h := newHandler(ms, testutil.NewMockCache(), p)

	w := httptest.NewRecorder()
	h.OAuthCallback(w, makeCallbackRequest("discord", "abc", "code",
		map[string]string{"discord_oauth_state": "abc"}))

	if w.Code != http.StatusFound {
		t.Fatalf("status: expected 302, got %d (body %q)", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/" {
		t.Errorf("Location: expected /, got %q", loc)
	}

	sessCookie := findCookie(w, "session")
	if sessCookie == nil {
		t.Fatal("session cookie not set")
	}
	if !sessCookie.HttpOnly {
		t.Error("session cookie: expected HttpOnly=true")
	}

	// Only the SHA-256 of the cookie token may appear in storage.
	rawToken, err := base64.RawURLEncoding.DecodeString(sessCookie.Value)
	if err != nil {
		t.Fatalf("decoding session cookie: %v", err)
	}
	hash := sha256.Sum256(rawToken)
	if _, ok := ms.Sessions[string(hash[:])]; !ok {
		t.Error("expected session stored under the token hash")
	}
	if _, ok := ms.Sessions[string(rawToken)]; ok {
		t.Error("raw token must never be a storage key")
	}

	if len(ms.Users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(ms.Users))
	}
	u := ms.Users["discord:discord-sub-1"]
	if u == nil {
		t.Fatal("expected user keyed by discord id")
	}
	if u.Username != "user" {
		t.Errorf("username: expected email local-part %q, got %q", "user", u.Username)
	}
	if u.GoogleID != nil {
		t.Error("expected google id to stay unset for a discord signup")
	}
}

// TestOAuthCallback_ExistingUser verifies a returning login reuses the row.
func TestOAuthCallback_ExistingUser(t *testing.T) {
	providerID := "discord-sub-1"
	userID, _ := uuid.NewV7()
	ms := testutil.NewMockStore(&store.User{ID: userID, Username: "user", DiscordID: &providerID})
	p := &testutil.FakeProvider{ProviderName: "discord", Claims: discordClaims()}
	h := newHandler(ms, testutil.NewMockCache(), p)

	w := httptest.NewRecorder()
	h.OAuthCallback(w, makeCallbackRequest("discord", "abc", "code",
		map[string]string{"discord_oauth_state": "abc"}))

	if w.Code != http.StatusFound {
		t.Fatalf("status: expected 302, got %d", w.Code)
	}
	if len(ms.Users) != 1 {
		t.Errorf("expected no new user, got %d", len(ms.Users))
	}
	if len(ms.Sessions) != 1 {
		t.Errorf("expected 1 session, got %d", len(ms.Sessions))
	}
	for _, sess := range ms.Sessions {
		if sess.UserID != userID {
			t.Errorf("session user: expected %v, got %v", userID, sess.UserID)
		}
	}
}

// TestOAuthCallback_PassesVerifier verifies the PKCE verifier from the cookie
// reaches the provider exchange.
func TestOAuthCallback_PassesVerifier(t *testing.T) {
	p := &testutil.FakeProvider{ProviderName: "google", PKCE: true, Claims: discordClaims()}
	h := newHandler(testutil.NewMockStore(), testutil.NewMockCache(), p)

	w := httptest.NewRecorder()
	h.OAuthCallback(w, makeCallbackRequest("google", "abc", "thecode", map[string]string{
		"google_oauth_state":   "abc",
		"google_code_verifier": "theverifier",
	}))

	if w.Code != http.StatusFound {
		t.Fatalf("status: expected 302, got %d", w.Code)
	}
	if p.LastCode != "thecode" {
		t.Errorf("exchange code: expected %q, got %q", "thecode", p.LastCode)
	}
	if p.LastVerifier != "theverifier" {
		t.Errorf("exchange verifier: expected %q, got %q", "theverifier", p.LastVerifier)
	}
}

// --- findOrCreateUser ---

// TestFindOrCreateUser_Idempotent verifies two callbacks with the same
// provider id resolve to the same user id without a duplicate row.
func TestFindOrCreateUser_Idempotent(t *testing.T) {
	ms := testutil.NewMockStore()
	h := newHandler(ms, testutil.NewMockCache())
	ident := Identity{ProviderUserID: "sub-1", Email: "a@example.com", Username: "a"}

	r := httptest.NewRequest("GET", "/", nil)
	first, err := h.findOrCreateUser(r, "google", ident)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := h.findOrCreateUser(r, "google", ident)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("expected same user id, got %v and %v", first.ID, second.ID)
	}
	if len(ms.Users) != 1 {
		t.Errorf("expected 1 user, got %d", len(ms.Users))
	}
}

// TestFindOrCreateUser_CreateRace simulates losing the first-login race: the
// initial lookup misses, the insert hits the provider-id constraint, and the
// winner's row is re-fetched and used.
func TestFindOrCreateUser_CreateRace(t *testing.T) {
	providerID := "sub-race"
	winnerID, _ := uuid.NewV7()
	ms := testutil.NewMockStore(&store.User{ID: winnerID, Username: "winner", GoogleID: &providerID})
	ms.LookupMissOnce = true
	h := newHandler(ms, testutil.NewMockCache())

	user, err := h.findOrCreateUser(httptest.NewRequest("GET", "/", nil), "google",
		Identity{ProviderUserID: providerID, Username: "loser"})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if user.ID != winnerID {
		t.Errorf("expected winner's user id %v, got %v", winnerID, user.ID)
	}
	if len(ms.Users) != 1 {
		t.Errorf("expected 1 user, got %d", len(ms.Users))
	}
}

// TestFindOrCreateUser_UsernameCollision verifies the suffixing policy: a
// taken username gets a numeric suffix.
func TestFindOrCreateUser_UsernameCollision(t *testing.T) {
	otherID := "other-sub"
	existingID, _ := uuid.NewV7()
	ms := testutil.NewMockStore(&store.User{ID: existingID, Username: "alice", DiscordID: &otherID})
	h := newHandler(ms, testutil.NewMockCache())

	user, err := h.findOrCreateUser(httptest.NewRequest("GET", "/", nil), "google",
		Identity{ProviderUserID: "google-sub", Email: "alice@example.com", Username: "alice"})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if user.Username != "alice2" {
		t.Errorf("username: expected %q, got %q", "alice2", user.Username)
	}
	if len(ms.Users) != 2 {
		t.Errorf("expected 2 users, got %d", len(ms.Users))
	}
}

// TestFindOrCreateUser_LookupError propagates non-ErrNoRows lookup failures.
func TestFindOrCreateUser_LookupError(t *testing.T) {
	ms := testutil.NewMockStore()
	ms.GetUserErr = errors.New("db error")
	h := newHandler(ms, testutil.NewMockCache())

	user, err := h.findOrCreateUser(httptest.NewRequest("GET", "/", nil), "google",
		Identity{ProviderUserID: "sub", Username: "a"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if user != nil {
		t.Errorf("expected nil user, got %v", user)
	}
}

// TestFindOrCreateUser_UnknownProvider rejects providers with no id column.
func TestFindOrCreateUser_UnknownProvider(t *testing.T) {
	h := newHandler(testutil.NewMockStore(), testutil.NewMockCache())

	_, err := h.findOrCreateUser(httptest.NewRequest("GET", "/", nil), "github",
		Identity{ProviderUserID: "sub", Username: "a"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
