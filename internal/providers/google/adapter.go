// Package google implements the provider adapter and upstream service
// builders for the Google Workspace server (Calendar, Gmail, Drive).
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	drive "google.golang.org/api/drive/v3"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/toolbridge/internal/authcore"
)

const (
	// ProviderName names the credential file and shows up in logs.
	ProviderName = "google"

	// DefaultCallbackPort is the localhost port registered as the OAuth
	// app's redirect URI.
	DefaultCallbackPort = 8385

	callbackPath     = "/oauth/callback"
	userinfoEndpoint = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// defaultScopes covers the three exposed services plus the identity
// scopes used to record who logged in.
var defaultScopes = []string{
	calendar.CalendarScope,
	gmail.MailGoogleComScope,
	drive.DriveScope,
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// Config holds the OAuth app registration for the Google adapter.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackPort int
	Scopes       []string

	// Endpoint and UserinfoURL default to Google's endpoints. Tests point
	// them at local servers.
	Endpoint    oauth2.Endpoint
	UserinfoURL string
}

// ConfigFromEnv reads the app registration from the environment.
func ConfigFromEnv() Config {
	return Config{
		ClientID:     os.Getenv("GOOGLE_OAUTH_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_OAUTH_CLIENT_SECRET"),
	}
}

// Validate reports whether the config is usable for interactive login.
func (c Config) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("google OAuth app not configured: set GOOGLE_OAUTH_CLIENT_ID and GOOGLE_OAUTH_CLIENT_SECRET")
	}
	return nil
}

// Adapter implements authcore.Adapter for Google's authorization-code
// grant with offline access.
type Adapter struct {
	cfg Config
}

// NewAdapter returns a Google adapter, filling config defaults.
func NewAdapter(cfg Config) *Adapter {
	if cfg.CallbackPort == 0 {
		cfg.CallbackPort = DefaultCallbackPort
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = defaultScopes
	}
	if cfg.Endpoint.AuthURL == "" {
		cfg.Endpoint = googleoauth.Endpoint
	}
	if cfg.UserinfoURL == "" {
		cfg.UserinfoURL = userinfoEndpoint
	}
	return &Adapter{cfg: cfg}
}

func (a *Adapter) Name() string         { return ProviderName }
func (a *Adapter) CallbackPort() int    { return a.cfg.CallbackPort }
func (a *Adapter) CallbackPath() string { return callbackPath }

// RoundTripsState reports that the provider echoes the state parameter
// back on the redirect, so the login flow requires it.
func (a *Adapter) RoundTripsState() bool { return true }

func (a *Adapter) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     a.cfg.ClientID,
		ClientSecret: a.cfg.ClientSecret,
		Endpoint:     a.cfg.Endpoint,
		RedirectURL:  redirectURI,
		Scopes:       a.cfg.Scopes,
	}
}

// BuildConsentURL requests offline access with a forced consent screen so
// Google reissues a refresh token even for previously-consented apps.
func (a *Adapter) BuildConsentURL(redirectURI, state string) string {
	return a.oauthConfig(redirectURI).AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
}

func (a *Adapter) ParseCallback(query url.Values) (*authcore.GrantResult, error) {
	code := query.Get("code")
	if code == "" {
		return nil, fmt.Errorf("%w: code", authcore.ErrMalformedCallback)
	}
	return &authcore.GrantResult{Code: code}, nil
}

func (a *Adapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*authcore.Credentials, error) {
	tok, err := a.oauthConfig(redirectURI).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google token exchange: %w", err)
	}
	creds := a.credentialsFromToken(tok)
	// Identity is best effort. A userinfo failure never fails the login.
	creds.Identity = a.fetchIdentity(ctx, tok.AccessToken)
	return creds, nil
}

func (a *Adapter) Refresh(ctx context.Context, current *authcore.Credentials) (*authcore.Credentials, error) {
	if current.RefreshToken == "" {
		return nil, authcore.ErrRefreshNotSupported
	}
	// Expiry in the past forces the token source to hit the token
	// endpoint instead of handing back the stale access token.
	seed := &oauth2.Token{
		RefreshToken: current.RefreshToken,
		Expiry:       time.Unix(1, 0),
	}
	tok, err := a.oauthConfig("").TokenSource(ctx, seed).Token()
	if err != nil {
		return nil, fmt.Errorf("google token refresh: %w", err)
	}
	creds := a.credentialsFromToken(tok)
	creds.Identity = current.Identity
	return creds, nil
}

func (a *Adapter) credentialsFromToken(tok *oauth2.Token) *authcore.Credentials {
	return &authcore.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		Scope:        strings.Join(a.cfg.Scopes, " "),
	}
}

func (a *Adapter) fetchIdentity(ctx context.Context, accessToken string) *authcore.Identity {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.UserinfoURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var info struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil
	}
	if info.Email == "" {
		return nil
	}
	return &authcore.Identity{Email: info.Email, DisplayName: info.Name}
}
