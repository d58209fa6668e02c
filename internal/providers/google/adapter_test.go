package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/toolbridge/internal/authcore"
)

func testAdapter(t *testing.T, tokenSrv, userinfoSrv *httptest.Server) *Adapter {
	t.Helper()
	cfg := Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	}
	if tokenSrv != nil {
		cfg.Endpoint = oauth2.Endpoint{
			AuthURL:  tokenSrv.URL + "/auth",
			TokenURL: tokenSrv.URL + "/token",
		}
	}
	if userinfoSrv != nil {
		cfg.UserinfoURL = userinfoSrv.URL
	}
	return NewAdapter(cfg)
}

func TestBuildConsentURLRequestsOfflineAccess(t *testing.T) {
	a := testAdapter(t, nil, nil)
	raw := a.BuildConsentURL("http://localhost:8385/oauth/callback", "state123")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "http://localhost:8385/oauth/callback", q.Get("redirect_uri"))
	assert.Equal(t, "state123", q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Contains(t, q.Get("scope"), "calendar")
	assert.Contains(t, q.Get("scope"), "userinfo.email")
}

func TestParseCallback(t *testing.T) {
	a := testAdapter(t, nil, nil)

	grant, err := a.ParseCallback(url.Values{"code": {"abc"}})
	require.NoError(t, err)
	assert.Equal(t, "abc", grant.Code)
	assert.Nil(t, grant.Credentials)

	_, err = a.ParseCallback(url.Values{})
	assert.ErrorIs(t, err, authcore.ErrMalformedCallback)
}

func TestExchangeCodeResolvesIdentity(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "the-code", r.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-1",
			"refresh_token": "rt-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	defer tokenSrv.Close()

	userinfoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"email": "user@example.com",
			"name":  "User Example",
		})
	}))
	defer userinfoSrv.Close()

	a := testAdapter(t, tokenSrv, userinfoSrv)
	creds, err := a.ExchangeCode(context.Background(), "the-code", "http://localhost:8385/oauth/callback")
	require.NoError(t, err)
	assert.Equal(t, "at-1", creds.AccessToken)
	assert.Equal(t, "rt-1", creds.RefreshToken)
	assert.False(t, creds.ExpiresAt.IsZero())
	assert.True(t, strings.Contains(creds.Scope, "gmail"))
	require.NotNil(t, creds.Identity)
	assert.Equal(t, "user@example.com", creds.Identity.Email)
	assert.Equal(t, "User Example", creds.Identity.DisplayName)
}

func TestExchangeCodeIdentityFailureIsNonFatal(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer tokenSrv.Close()

	userinfoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer userinfoSrv.Close()

	a := testAdapter(t, tokenSrv, userinfoSrv)
	creds, err := a.ExchangeCode(context.Background(), "code", "http://localhost:8385/oauth/callback")
	require.NoError(t, err)
	assert.Nil(t, creds.Identity)
}

func TestRefreshRenewsToken(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "rt-old", r.Form.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-new",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer tokenSrv.Close()

	a := testAdapter(t, tokenSrv, nil)
	current := &authcore.Credentials{
		AccessToken:  "at-old",
		RefreshToken: "rt-old",
		Identity:     &authcore.Identity{Email: "user@example.com"},
	}
	renewed, err := a.Refresh(context.Background(), current)
	require.NoError(t, err)
	assert.Equal(t, "at-new", renewed.AccessToken)
	require.NotNil(t, renewed.Identity)
	assert.Equal(t, "user@example.com", renewed.Identity.Email)
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	a := testAdapter(t, nil, nil)
	_, err := a.Refresh(context.Background(), &authcore.Credentials{AccessToken: "at"})
	assert.ErrorIs(t, err, authcore.ErrRefreshNotSupported)
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{ClientID: "id"}.Validate())
	assert.NoError(t, Config{ClientID: "id", ClientSecret: "secret"}.Validate())
}
