// Package slack implements the provider adapter and client builder for
// the Slack server. Slack's OAuth v2 token response nests the user grant
// under authed_user, so the exchange is done by hand instead of through
// golang.org/x/oauth2.
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/teemow/toolbridge/internal/authcore"
)

const (
	ProviderName = "slack"

	DefaultCallbackPort = 8386

	callbackPath = "/oauth/callback"
	authorizeURL = "https://slack.com/oauth/v2/authorize"
	tokenURL     = "https://slack.com/api/oauth.v2.access"

	// Tokens from apps without rotation enabled never expire. A synthetic
	// one-year expiry keeps them inside the lifecycle rules without
	// triggering refresh attempts Slack would reject.
	nonRotatingTokenTTL = 365 * 24 * time.Hour
)

// defaultUserScopes are the user-token scopes requested during consent.
var defaultUserScopes = []string{
	"channels:read",
	"channels:history",
	"chat:write",
	"search:read",
	"users:read",
}

// Config holds the Slack app registration.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackPort int
	UserScopes   []string

	// AuthorizeURL, TokenURL and APIURL default to slack.com. Tests point
	// them at local servers.
	AuthorizeURL string
	TokenURL     string
	APIURL       string
}

// ConfigFromEnv reads the app registration from the environment.
func ConfigFromEnv() Config {
	return Config{
		ClientID:     os.Getenv("SLACK_OAUTH_CLIENT_ID"),
		ClientSecret: os.Getenv("SLACK_OAUTH_CLIENT_SECRET"),
	}
}

// Validate reports whether the config is usable for interactive login.
func (c Config) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("slack OAuth app not configured: set SLACK_OAUTH_CLIENT_ID and SLACK_OAUTH_CLIENT_SECRET")
	}
	return nil
}

// Adapter implements authcore.Adapter for Slack's OAuth v2 user-token
// grant.
type Adapter struct {
	cfg        Config
	httpClient *http.Client
}

// NewAdapter returns a Slack adapter, filling config defaults.
func NewAdapter(cfg Config) *Adapter {
	if cfg.CallbackPort == 0 {
		cfg.CallbackPort = DefaultCallbackPort
	}
	if len(cfg.UserScopes) == 0 {
		cfg.UserScopes = defaultUserScopes
	}
	if cfg.AuthorizeURL == "" {
		cfg.AuthorizeURL = authorizeURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = tokenURL
	}
	return &Adapter{cfg: cfg, httpClient: http.DefaultClient}
}

func (a *Adapter) Name() string         { return ProviderName }
func (a *Adapter) CallbackPort() int    { return a.cfg.CallbackPort }
func (a *Adapter) CallbackPath() string { return callbackPath }

// RoundTripsState reports that the provider echoes the state parameter
// back on the redirect, so the login flow requires it.
func (a *Adapter) RoundTripsState() bool { return true }

func (a *Adapter) BuildConsentURL(redirectURI, state string) string {
	q := url.Values{}
	q.Set("client_id", a.cfg.ClientID)
	q.Set("user_scope", strings.Join(a.cfg.UserScopes, ","))
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	return a.cfg.AuthorizeURL + "?" + q.Encode()
}

func (a *Adapter) ParseCallback(query url.Values) (*authcore.GrantResult, error) {
	code := query.Get("code")
	if code == "" {
		return nil, fmt.Errorf("%w: code", authcore.ErrMalformedCallback)
	}
	return &authcore.GrantResult{Code: code}, nil
}

// accessResponse is the oauth.v2.access payload. Only the authed_user
// grant is kept; the bot token is not requested.
type accessResponse struct {
	OK         bool   `json:"ok"`
	Error      string `json:"error"`
	AuthedUser struct {
		ID           string `json:"id"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		Scope        string `json:"scope"`
	} `json:"authed_user"`
	Team struct {
		Name string `json:"name"`
	} `json:"team"`
}

func (a *Adapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*authcore.Credentials, error) {
	form := url.Values{}
	form.Set("client_id", a.cfg.ClientID)
	form.Set("client_secret", a.cfg.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)

	resp, err := a.tokenRequest(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("slack token exchange: %w", err)
	}

	creds := a.credentialsFromResponse(resp)
	creds.Identity = a.fetchIdentity(ctx, creds.AccessToken, resp.Team.Name)
	return creds, nil
}

func (a *Adapter) Refresh(ctx context.Context, current *authcore.Credentials) (*authcore.Credentials, error) {
	if current.RefreshToken == "" {
		return nil, authcore.ErrRefreshNotSupported
	}

	form := url.Values{}
	form.Set("client_id", a.cfg.ClientID)
	form.Set("client_secret", a.cfg.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", current.RefreshToken)

	resp, err := a.tokenRequest(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("slack token refresh: %w", err)
	}

	creds := a.credentialsFromResponse(resp)
	creds.Identity = current.Identity
	return creds, nil
}

func (a *Adapter) tokenRequest(ctx context.Context, form url.Values) (*accessResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var resp accessResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("slack API error: %s", resp.Error)
	}
	if resp.AuthedUser.AccessToken == "" {
		return nil, fmt.Errorf("response carries no user token")
	}
	return &resp, nil
}

func (a *Adapter) credentialsFromResponse(resp *accessResponse) *authcore.Credentials {
	expiresAt := time.Now().Add(nonRotatingTokenTTL)
	if resp.AuthedUser.ExpiresIn > 0 {
		expiresAt = time.Now().Add(time.Duration(resp.AuthedUser.ExpiresIn) * time.Second)
	}
	return &authcore.Credentials{
		AccessToken:  resp.AuthedUser.AccessToken,
		RefreshToken: resp.AuthedUser.RefreshToken,
		ExpiresAt:    expiresAt,
		Scope:        resp.AuthedUser.Scope,
	}
}

// fetchIdentity resolves the logged-in user via auth.test, best effort.
func (a *Adapter) fetchIdentity(ctx context.Context, token, teamName string) *authcore.Identity {
	client := a.newClient(token)
	resp, err := client.AuthTestContext(ctx)
	if err != nil {
		if teamName != "" {
			return &authcore.Identity{DisplayName: teamName}
		}
		return nil
	}
	display := resp.User
	if teamName != "" {
		display = fmt.Sprintf("%s (%s)", resp.User, teamName)
	}
	return &authcore.Identity{DisplayName: display}
}

func (a *Adapter) newClient(token string) *slackapi.Client {
	opts := []slackapi.Option{slackapi.OptionHTTPClient(a.httpClient)}
	if a.cfg.APIURL != "" {
		opts = append(opts, slackapi.OptionAPIURL(a.cfg.APIURL))
	}
	return slackapi.New(token, opts...)
}

// NewClient builds a Slack API client from credentials.
func (a *Adapter) NewClient(creds *authcore.Credentials) *slackapi.Client {
	return a.newClient(creds.AccessToken)
}
