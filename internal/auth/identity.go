// identity.go -- normalization of provider claims into one identity shape.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/gatehouse-dev/gatehouse/internal/oauth"
)

// Identity is the normalized claim set handed to user provisioning. Every
// field is always set (possibly to ""), so provisioning never deals with
// absent values.
type Identity struct {
	ProviderUserID string
	Email          string
	Username       string
	DisplayName    string
	AvatarURL      string
}

// resolveIdentity maps verified provider claims to an Identity, deriving a
// username when the provider supplies none directly.
func resolveIdentity(c *oauth.Claims) Identity {
	return Identity{
		ProviderUserID: c.Sub,
		Email:          c.Email,
		Username:       deriveUsername(c),
		DisplayName:    c.Name,
		AvatarURL:      c.Picture,
	}
}

// deriveUsername picks a username base: the email local-part, else the first
// whitespace-delimited token of the display name, else a random fallback.
// Collisions are resolved at insert time by suffixing (see findOrCreateUser).
func deriveUsername(c *oauth.Claims) string {
	if local, _, ok := strings.Cut(c.Email, "@"); ok && local != "" {
		return local
	}
	if fields := strings.Fields(c.Name); len(fields) > 0 {
		return fields[0]
	}
	return "user_" + randomSuffix()
}

// randomSuffix returns 4 random bytes as hex, for username fallbacks and
// last-resort collision handling.
func randomSuffix() string {
	var b [4]byte
	// rand.Read never fails on supported platforms
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
