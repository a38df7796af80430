// config.go

// Environment variable loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all env configuration for the service.
// Provider credentials are loaded once here and passed into the handler at
// startup; nothing reads the environment after LoadConfig returns.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	RedisURL    string `env:"REDIS_URL,required,notEmpty"`
	Port        string `env:"PORT" envDefault:"7865"`

	// LogLevel parses "debug", "info", "warn", "error" via slog.Level.
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"info"`

	// Discord OAuth2 application credentials.
	DiscordClientID     string `env:"DISCORD_CLIENT_ID,required,notEmpty"`
	DiscordClientSecret string `env:"DISCORD_CLIENT_SECRET,required,notEmpty"`
	DiscordRedirectURL  string `env:"DISCORD_REDIRECT_URL,required,notEmpty"`

	// Google OAuth2 application credentials.
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID,required,notEmpty"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET,required,notEmpty"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL,required,notEmpty"`

	// SessionTTL is the full lifetime of a session. Validation extends a
	// session back to the full TTL once less than half of it remains.
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"720h"`

	// OAuthStateTTL bounds how long a login redirect stays completable.
	OAuthStateTTL time.Duration `env:"OAUTH_STATE_TTL" envDefault:"10m"`

	// ProviderTimeout caps every outbound call to a provider (code exchange,
	// profile fetch, JWKS fetch).
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
}

// LoadConfig reads environment variables and returns a validated Config.
// Returns an error if required variables are missing or durations are not positive.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive, got %s", cfg.SessionTTL)
	}
	if cfg.OAuthStateTTL <= 0 {
		return nil, fmt.Errorf("OAUTH_STATE_TTL must be positive, got %s", cfg.OAuthStateTTL)
	}
	if cfg.ProviderTimeout <= 0 {
		return nil, fmt.Errorf("PROVIDER_TIMEOUT must be positive, got %s", cfg.ProviderTimeout)
	}

	// Redirect URLs are registered with the providers; a scheme-less value
	// fails every login, so catch it at startup instead.
	for name, u := range map[string]string{
		"DISCORD_REDIRECT_URL": cfg.DiscordRedirectURL,
		"GOOGLE_REDIRECT_URL":  cfg.GoogleRedirectURL,
	} {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return nil, fmt.Errorf("%s must be an absolute http(s) URL, got %q", name, u)
		}
	}

	return cfg, nil
}
