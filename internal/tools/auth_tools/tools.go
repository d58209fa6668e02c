package auth_tools

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/toolbridge/internal/server"
	"github.com/teemow/toolbridge/internal/tools/common"
)

// RegisterAuthTools registers the provider-agnostic authentication tools
// with the MCP server. These work the same way for every provider because
// they only talk to the client factory.
func RegisterAuthTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	statusTool := mcp.NewTool("auth_status",
		mcp.WithDescription("Show the current authentication state for this server's provider"),
	)

	s.AddTool(statusTool, common.InstrumentedToolHandler(
		"auth_status", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleAuthStatus(ctx, request, sc)
		}))

	authenticateTool := mcp.NewTool("auth_authenticate",
		mcp.WithDescription("Run the login flow for this server's provider, replacing any stored credentials. Opens a browser window on the machine running the server."),
	)

	s.AddTool(authenticateTool, common.InstrumentedToolHandler(
		"auth_authenticate", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleAuthAuthenticate(ctx, request, sc)
		}))

	logoutTool := mcp.NewTool("auth_logout",
		mcp.WithDescription("Remove the stored credentials for this server's provider"),
	)

	s.AddTool(logoutTool, common.InstrumentedToolHandler(
		"auth_logout", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleAuthLogout(ctx, request, sc)
		}))

	return nil
}

func handleAuthStatus(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	factory := sc.Factory()

	result := fmt.Sprintf("Provider: %s\n", sc.Provider())
	result += fmt.Sprintf("State: %s\n", factory.State())

	creds := factory.Credentials()
	if creds == nil {
		result += "No active credentials. Use auth_authenticate to sign in.\n"
		return mcp.NewToolResultText(result), nil
	}

	if creds.Identity != nil {
		if creds.Identity.Email != "" {
			result += fmt.Sprintf("Account: %s\n", creds.Identity.Email)
		}
		if creds.Identity.DisplayName != "" {
			result += fmt.Sprintf("Name: %s\n", creds.Identity.DisplayName)
		}
	}
	if !creds.ExpiresAt.IsZero() {
		result += fmt.Sprintf("Expires: %s\n", creds.ExpiresAt.Format(time.RFC3339))
	}
	if creds.CanRefresh() {
		result += "Refresh: supported\n"
	} else {
		result += "Refresh: not supported (re-login required on expiry)\n"
	}

	return mcp.NewToolResultText(result), nil
}

func handleAuthAuthenticate(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	creds, err := sc.Factory().ForceReauthenticate(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Authentication failed: %v", err)), nil
	}
	sc.InvalidateHandles()

	result := fmt.Sprintf("Authenticated with %s.\n", sc.Provider())
	if creds.Identity != nil && creds.Identity.Email != "" {
		result += fmt.Sprintf("Account: %s\n", creds.Identity.Email)
	}
	if !creds.ExpiresAt.IsZero() {
		result += fmt.Sprintf("Expires: %s\n", creds.ExpiresAt.Format(time.RFC3339))
	}

	return mcp.NewToolResultText(result), nil
}

func handleAuthLogout(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if err := sc.Factory().Logout(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Logout failed: %v", err)), nil
	}
	sc.InvalidateHandles()

	return mcp.NewToolResultText(fmt.Sprintf("Logged out of %s. Stored credentials removed.", sc.Provider())), nil
}
