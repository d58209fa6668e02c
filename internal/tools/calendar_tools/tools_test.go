package calendar_tools

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"google.golang.org/api/calendar/v3"

	"github.com/teemow/toolbridge/internal/authcore"
	"github.com/teemow/toolbridge/internal/server"
)

// stubAdapter never authenticates; handlers asked for a service should
// surface ErrNotAuthenticated instead of reaching the Calendar API.
type stubAdapter struct{}

func (stubAdapter) Name() string                                 { return "google" }
func (stubAdapter) CallbackPort() int                            { return 0 }
func (stubAdapter) CallbackPath() string                         { return "/oauth/callback" }
func (stubAdapter) BuildConsentURL(redirectURI, state string) string { return "https://example.com" }
func (stubAdapter) ParseCallback(query url.Values) (*authcore.GrantResult, error) {
	return nil, authcore.ErrMalformedCallback
}
func (stubAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*authcore.Credentials, error) {
	return nil, authcore.ErrNotAuthenticated
}
func (stubAdapter) Refresh(ctx context.Context, current *authcore.Credentials) (*authcore.Credentials, error) {
	return nil, authcore.ErrRefreshNotSupported
}

func newTestContext(t *testing.T) *server.ServerContext {
	t.Helper()
	adapter := stubAdapter{}
	store := authcore.NewCredentialStore(filepath.Join(t.TempDir(), "google.json"), nil)
	flow := authcore.NewFlowCoordinator(adapter, store)
	factory := authcore.NewClientFactory(adapter, store, flow)
	sc := server.NewServerContext(context.Background(), "google", factory)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func TestRegisterCalendarTools(t *testing.T) {
	sc := newTestContext(t)

	tests := []struct {
		name     string
		readOnly bool
	}{
		{name: "register in read-write mode", readOnly: false},
		{name: "register in read-only mode", readOnly: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mcpSrv := mcpserver.NewMCPServer("test-server", "1.0.0",
				mcpserver.WithToolCapabilities(true),
			)
			if err := RegisterCalendarTools(mcpSrv, sc, tt.readOnly); err != nil {
				t.Errorf("RegisterCalendarTools() error = %v", err)
			}
		})
	}
}

func TestHandleListEvents_NotAuthenticated(t *testing.T) {
	ctx := context.Background()
	sc := newTestContext(t)

	request := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      "calendar_list_events",
			Arguments: map[string]interface{}{},
		},
	}

	result, err := handleListEvents(ctx, request, sc)
	if err != nil {
		t.Fatalf("handleListEvents() error = %v", err)
	}
	if result == nil || !result.IsError {
		t.Error("expected error result when not authenticated")
	}
}

func TestHandleCreateEvent_Validation(t *testing.T) {
	ctx := context.Background()
	sc := newTestContext(t)

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{
			name: "missing summary",
			args: map[string]interface{}{
				"start": "2026-09-01T10:00:00Z",
				"end":   "2026-09-01T11:00:00Z",
			},
			want: "summary is required",
		},
		{
			name: "invalid start time",
			args: map[string]interface{}{
				"summary": "standup",
				"start":   "tomorrow",
				"end":     "2026-09-01T11:00:00Z",
			},
			want: "invalid start time",
		},
		{
			name: "invalid end time",
			args: map[string]interface{}{
				"summary": "standup",
				"start":   "2026-09-01T10:00:00Z",
				"end":     "later",
			},
			want: "invalid end time",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := mcp.CallToolRequest{
				Params: mcp.CallToolParams{
					Name:      "calendar_create_event",
					Arguments: tt.args,
				},
			}

			result, err := handleCreateEvent(ctx, request, sc)
			if err != nil {
				t.Fatalf("handleCreateEvent() error = %v", err)
			}
			if result == nil || !result.IsError {
				t.Fatal("expected error result")
			}
			tc, ok := mcp.AsTextContent(result.Content[0])
			if !ok {
				t.Fatalf("expected text content, got %T", result.Content[0])
			}
			if !strings.Contains(tc.Text, tt.want) {
				t.Errorf("error = %q, want substring %q", tc.Text, tt.want)
			}
		})
	}
}

func TestEventTime(t *testing.T) {
	tests := []struct {
		name string
		dt   *calendar.EventDateTime
		want string
	}{
		{name: "nil", dt: nil, want: "(unknown)"},
		{
			name: "timed event",
			dt:   &calendar.EventDateTime{DateTime: "2026-09-01T10:00:00Z"},
			want: "2026-09-01T10:00:00Z",
		},
		{
			name: "all-day event",
			dt:   &calendar.EventDateTime{Date: "2026-09-01"},
			want: "2026-09-01 (all day)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := eventTime(tt.dt); got != tt.want {
				t.Errorf("eventTime() = %q, want %q", got, tt.want)
			}
		})
	}
}
