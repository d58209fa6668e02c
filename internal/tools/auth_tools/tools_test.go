package auth_tools

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/toolbridge/internal/authcore"
	"github.com/teemow/toolbridge/internal/server"
)

// fakeAdapter issues pre-exchanged credentials straight from the callback,
// so login tests need no token endpoint.
type fakeAdapter struct {
	port int
}

func (a *fakeAdapter) Name() string         { return "fake" }
func (a *fakeAdapter) CallbackPort() int    { return a.port }
func (a *fakeAdapter) CallbackPath() string { return "/oauth/callback" }

func (a *fakeAdapter) BuildConsentURL(redirectURI, state string) string {
	v := url.Values{}
	v.Set("redirect_uri", redirectURI)
	v.Set("state", state)
	return "https://auth.example/consent?" + v.Encode()
}

func (a *fakeAdapter) ParseCallback(query url.Values) (*authcore.GrantResult, error) {
	token := query.Get("token")
	if token == "" {
		return nil, authcore.ErrMalformedCallback
	}
	return &authcore.GrantResult{
		Credentials: &authcore.Credentials{
			AccessToken: token,
			ExpiresAt:   time.Now().Add(time.Hour),
			Identity:    &authcore.Identity{Email: "user@example.com"},
		},
	}, nil
}

func (a *fakeAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*authcore.Credentials, error) {
	return nil, fmt.Errorf("fake adapter never exchanges codes")
}

func (a *fakeAdapter) Refresh(ctx context.Context, current *authcore.Credentials) (*authcore.Credentials, error) {
	return nil, authcore.ErrRefreshNotSupported
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

// callbackOpener pretends to be a browser by completing the consent flow
// against the local callback listener.
func callbackOpener(t *testing.T) func(string) error {
	t.Helper()
	return func(consentURL string) error {
		u, err := url.Parse(consentURL)
		if err != nil {
			return err
		}
		redirect := u.Query().Get("redirect_uri")
		state := u.Query().Get("state")
		go func() {
			cb := fmt.Sprintf("%s?token=tool-token&state=%s", redirect, url.QueryEscape(state))
			resp, err := http.Get(cb)
			if err != nil {
				t.Errorf("callback request failed: %v", err)
				return
			}
			resp.Body.Close()
		}()
		return nil
	}
}

func newTestContext(t *testing.T) *server.ServerContext {
	t.Helper()
	adapter := &fakeAdapter{port: freePort(t)}
	store := authcore.NewCredentialStore(filepath.Join(t.TempDir(), "fake.json"), nil)
	flow := authcore.NewFlowCoordinator(adapter, store,
		authcore.WithLoginTimeout(5*time.Second),
		authcore.WithBrowserOpener(callbackOpener(t)),
	)
	factory := authcore.NewClientFactory(adapter, store, flow)
	sc := server.NewServerContext(context.Background(), "fake", factory)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func textContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatal("expected non-empty tool result")
	}
	tc, ok := mcp.AsTextContent(result.Content[0])
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return tc.Text
}

func TestRegisterAuthTools(t *testing.T) {
	sc := newTestContext(t)

	mcpSrv := mcpserver.NewMCPServer("test-server", "1.0.0",
		mcpserver.WithToolCapabilities(true),
	)

	if err := RegisterAuthTools(mcpSrv, sc); err != nil {
		t.Errorf("RegisterAuthTools() error = %v", err)
	}
}

func TestHandleAuthStatus_NotAuthenticated(t *testing.T) {
	ctx := context.Background()
	sc := newTestContext(t)

	result, err := handleAuthStatus(ctx, mcp.CallToolRequest{}, sc)
	if err != nil {
		t.Fatalf("handleAuthStatus() error = %v", err)
	}

	text := textContent(t, result)
	if !strings.Contains(text, "Provider: fake") {
		t.Errorf("status should name the provider, got %q", text)
	}
	if !strings.Contains(text, "No active credentials") {
		t.Errorf("status should report missing credentials, got %q", text)
	}
}

func TestHandleAuthAuthenticate_ThenStatus(t *testing.T) {
	ctx := context.Background()
	sc := newTestContext(t)

	result, err := handleAuthAuthenticate(ctx, mcp.CallToolRequest{}, sc)
	if err != nil {
		t.Fatalf("handleAuthAuthenticate() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got error result: %s", textContent(t, result))
	}
	if text := textContent(t, result); !strings.Contains(text, "user@example.com") {
		t.Errorf("expected account in result, got %q", text)
	}

	status, err := handleAuthStatus(ctx, mcp.CallToolRequest{}, sc)
	if err != nil {
		t.Fatalf("handleAuthStatus() error = %v", err)
	}
	text := textContent(t, status)
	if !strings.Contains(text, "State: ready") {
		t.Errorf("expected ready state after login, got %q", text)
	}
	if !strings.Contains(text, "user@example.com") {
		t.Errorf("expected account in status, got %q", text)
	}
}

func TestHandleAuthLogout(t *testing.T) {
	ctx := context.Background()
	sc := newTestContext(t)

	// Logging out without credentials is fine.
	result, err := handleAuthLogout(ctx, mcp.CallToolRequest{}, sc)
	if err != nil {
		t.Fatalf("handleAuthLogout() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got error result: %s", textContent(t, result))
	}

	if _, err := handleAuthAuthenticate(ctx, mcp.CallToolRequest{}, sc); err != nil {
		t.Fatalf("handleAuthAuthenticate() error = %v", err)
	}

	if _, err := handleAuthLogout(ctx, mcp.CallToolRequest{}, sc); err != nil {
		t.Fatalf("handleAuthLogout() error = %v", err)
	}

	status, err := handleAuthStatus(ctx, mcp.CallToolRequest{}, sc)
	if err != nil {
		t.Fatalf("handleAuthStatus() error = %v", err)
	}
	if text := textContent(t, status); !strings.Contains(text, "No active credentials") {
		t.Errorf("expected credentials gone after logout, got %q", text)
	}
}
