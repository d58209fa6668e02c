// Package console implements the provider adapter and REST client for
// the internal developer console. The console backend pre-exchanges the
// session token during login and delivers it directly in the redirect,
// so there is no code exchange and no refresh.
package console

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/teemow/toolbridge/internal/authcore"
)

const (
	ProviderName = "console"

	DefaultCallbackPort = 8387

	callbackPath = "/auth/callback"

	// EnvSessionToken supplies a session token directly, bypassing the
	// browser flow entirely. Used in CI and on headless hosts.
	EnvSessionToken = "CONSOLE_SESSION_TOKEN"

	// DefaultSessionTTL is assumed when the redirect does not say how
	// long the session lives.
	DefaultSessionTTL = 12 * time.Hour

	defaultCookieName = "console_session"
)

// Config locates the console backend.
type Config struct {
	// BaseURL is the console backend, for example
	// https://console.internal.example.com.
	BaseURL      string
	CallbackPort int
	SessionTTL   time.Duration
}

// ConfigFromEnv reads the backend location from the environment.
func ConfigFromEnv() Config {
	return Config{BaseURL: os.Getenv("CONSOLE_BASE_URL")}
}

// Validate reports whether the config is usable for interactive login.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("console backend not configured: set CONSOLE_BASE_URL")
	}
	return nil
}

// Adapter implements authcore.Adapter for the console's session-cookie
// login.
type Adapter struct {
	cfg Config
}

// NewAdapter returns a console adapter, filling config defaults.
func NewAdapter(cfg Config) *Adapter {
	if cfg.CallbackPort == 0 {
		cfg.CallbackPort = DefaultCallbackPort
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	return &Adapter{cfg: cfg}
}

func (a *Adapter) Name() string         { return ProviderName }
func (a *Adapter) CallbackPort() int    { return a.cfg.CallbackPort }
func (a *Adapter) CallbackPath() string { return callbackPath }

// BuildConsentURL points the browser at the console login page, which
// authenticates the user (SSO upstream) and redirects back with the
// session token.
func (a *Adapter) BuildConsentURL(redirectURI, state string) string {
	q := url.Values{}
	q.Set("redirect", redirectURI)
	q.Set("state", state)
	return a.cfg.BaseURL + "/login?" + q.Encode()
}

// ParseCallback builds the final credential record from the redirect.
// The console delivers the token pre-exchanged, so ExchangeCode is never
// reached.
func (a *Adapter) ParseCallback(query url.Values) (*authcore.GrantResult, error) {
	token := query.Get("token")
	if token == "" {
		return nil, fmt.Errorf("%w: token", authcore.ErrMalformedCallback)
	}

	ttl := a.cfg.SessionTTL
	if raw := query.Get("expires_in"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			ttl = time.Duration(secs) * time.Second
		}
	}

	cookieName := query.Get("cookie_name")
	if cookieName == "" {
		cookieName = defaultCookieName
	}

	// The cookie name rides in the Scope field so the REST client knows
	// which cookie to attach without a second lookup.
	creds := &authcore.Credentials{
		AccessToken: token,
		ExpiresAt:   time.Now().Add(ttl),
		Scope:       cookieName,
	}
	if email := query.Get("email"); email != "" {
		creds.Identity = &authcore.Identity{Email: email}
	}
	return &authcore.GrantResult{Credentials: creds}, nil
}

func (a *Adapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*authcore.Credentials, error) {
	return nil, fmt.Errorf("console login never issues an authorization code")
}

func (a *Adapter) Refresh(ctx context.Context, current *authcore.Credentials) (*authcore.Credentials, error) {
	return nil, authcore.ErrRefreshNotSupported
}

// CredentialsFromEnv builds a credential record from CONSOLE_SESSION_TOKEN
// when set, or nil. Headless hosts use this instead of the browser flow.
func CredentialsFromEnv(ttl time.Duration) *authcore.Credentials {
	token := os.Getenv(EnvSessionToken)
	if token == "" {
		return nil
	}
	if ttl == 0 {
		ttl = DefaultSessionTTL
	}
	return &authcore.Credentials{
		AccessToken: token,
		ExpiresAt:   time.Now().Add(ttl),
		Scope:       defaultCookieName,
	}
}
