package common

import (
	"context"
	"errors"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/teemow/toolbridge/internal/authcore"
	"github.com/teemow/toolbridge/internal/instrumentation"
	"github.com/teemow/toolbridge/internal/server"
)

// noopAdapter satisfies authcore.Adapter; instrumentation tests never run
// the login flow.
type noopAdapter struct{}

func (noopAdapter) Name() string         { return "test" }
func (noopAdapter) CallbackPort() int    { return 0 }
func (noopAdapter) CallbackPath() string { return "/oauth/callback" }
func (noopAdapter) BuildConsentURL(redirectURI, state string) string {
	return "https://auth.example/consent"
}
func (noopAdapter) ParseCallback(query url.Values) (*authcore.GrantResult, error) {
	return nil, authcore.ErrMalformedCallback
}
func (noopAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*authcore.Credentials, error) {
	return nil, authcore.ErrNotAuthenticated
}
func (noopAdapter) Refresh(ctx context.Context, current *authcore.Credentials) (*authcore.Credentials, error) {
	return nil, authcore.ErrRefreshNotSupported
}

func newTestContext(t *testing.T, opts ...server.ContextOption) *server.ServerContext {
	t.Helper()
	adapter := noopAdapter{}
	store := authcore.NewCredentialStore(filepath.Join(t.TempDir(), "test.json"), nil)
	flow := authcore.NewFlowCoordinator(adapter, store)
	factory := authcore.NewClientFactory(adapter, store, flow)
	sc := server.NewServerContext(context.Background(), "test", factory, opts...)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func noopMetrics(t *testing.T) *instrumentation.Metrics {
	t.Helper()
	meter := noop.NewMeterProvider().Meter("test")
	metrics, err := instrumentation.NewMetrics(meter, false)
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	return metrics
}

func TestInstrumentedToolHandler_Success(t *testing.T) {
	ctx := context.Background()
	sc := newTestContext(t)

	called := false
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("success"), nil
	}

	wrapped := InstrumentedToolHandler("test_tool", sc, handler)
	result, err := wrapped(ctx, mcp.CallToolRequest{})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if !called {
		t.Error("expected handler to be called")
	}
	if result == nil {
		t.Error("expected result, got nil")
	}
}

func TestInstrumentedToolHandler_Error(t *testing.T) {
	ctx := context.Background()
	sc := newTestContext(t)

	expectedErr := errors.New("test error")
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, expectedErr
	}

	wrapped := InstrumentedToolHandler("test_tool", sc, handler)
	_, err := wrapped(ctx, mcp.CallToolRequest{})

	if !errors.Is(err, expectedErr) {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
}

func TestInstrumentedToolHandler_ErrorResult(t *testing.T) {
	ctx := context.Background()
	sc := newTestContext(t, server.WithMetrics(noopMetrics(t)))

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("tool failed"), nil
	}

	wrapped := InstrumentedToolHandler("test_tool", sc, handler)
	result, err := wrapped(ctx, mcp.CallToolRequest{})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result == nil || !result.IsError {
		t.Error("expected error result")
	}
}

func TestInstrumentedToolHandlerWithService_Success(t *testing.T) {
	ctx := context.Background()
	sc := newTestContext(t)

	called := false
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("ok"), nil
	}

	wrapped := InstrumentedToolHandlerWithService("test_tool", "calendar", "list", sc, handler)
	result, err := wrapped(ctx, mcp.CallToolRequest{})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if !called {
		t.Error("expected handler to be called")
	}
	if result == nil {
		t.Error("expected result, got nil")
	}
}

func TestInstrumentedToolHandlerWithService_WithMetrics(t *testing.T) {
	ctx := context.Background()
	sc := newTestContext(t, server.WithMetrics(noopMetrics(t)))

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("ok"), nil
	}

	// With a noop meter the recorded values cannot be inspected; this
	// verifies the instrumented path does not panic or alter the result.
	wrapped := InstrumentedToolHandlerWithService("test_tool", "slack", "search", sc, handler)
	result, err := wrapped(ctx, mcp.CallToolRequest{})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result == nil || result.IsError {
		t.Error("expected success result")
	}
}

func TestInstrumentedToolHandlerWithService_ErrorWithMetrics(t *testing.T) {
	ctx := context.Background()
	sc := newTestContext(t, server.WithMetrics(noopMetrics(t)))

	expectedErr := errors.New("upstream failed")
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, expectedErr
	}

	wrapped := InstrumentedToolHandlerWithService("test_tool", "console", "get", sc, handler)
	_, err := wrapped(ctx, mcp.CallToolRequest{})

	if !errors.Is(err, expectedErr) {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
}

func TestGetStringArg(t *testing.T) {
	args := map[string]interface{}{"name": "value", "empty": "", "num": 3}
	if got := GetStringArg(args, "name", "d"); got != "value" {
		t.Errorf("GetStringArg(name) = %q, want value", got)
	}
	if got := GetStringArg(args, "empty", "d"); got != "d" {
		t.Errorf("GetStringArg(empty) = %q, want d", got)
	}
	if got := GetStringArg(args, "missing", "d"); got != "d" {
		t.Errorf("GetStringArg(missing) = %q, want d", got)
	}
	if got := GetStringArg(args, "num", "d"); got != "d" {
		t.Errorf("GetStringArg(num) = %q, want d", got)
	}
}

func TestGetIntArg(t *testing.T) {
	args := map[string]interface{}{"float": 42.0, "int": 7, "str": "9"}
	if got := GetIntArg(args, "float", 1); got != 42 {
		t.Errorf("GetIntArg(float) = %d, want 42", got)
	}
	if got := GetIntArg(args, "int", 1); got != 7 {
		t.Errorf("GetIntArg(int) = %d, want 7", got)
	}
	if got := GetIntArg(args, "str", 1); got != 1 {
		t.Errorf("GetIntArg(str) = %d, want 1", got)
	}
	if got := GetIntArg(args, "missing", 1); got != 1 {
		t.Errorf("GetIntArg(missing) = %d, want 1", got)
	}
}

func TestGetBoolArg(t *testing.T) {
	args := map[string]interface{}{"flag": true, "str": "true"}
	if !GetBoolArg(args, "flag", false) {
		t.Error("GetBoolArg(flag) = false, want true")
	}
	if GetBoolArg(args, "str", false) {
		t.Error("GetBoolArg(str) = true, want false")
	}
	if !GetBoolArg(args, "missing", true) {
		t.Error("GetBoolArg(missing) = false, want true")
	}
}
