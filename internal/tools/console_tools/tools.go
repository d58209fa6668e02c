package console_tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/toolbridge/internal/server"
	"github.com/teemow/toolbridge/internal/tools/common"
)

// RegisterConsoleTools registers all console-related tools with the MCP server
func RegisterConsoleTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	whoamiTool := mcp.NewTool("console_whoami",
		mcp.WithDescription("Show the account behind the current console session"),
	)

	s.AddTool(whoamiTool, common.InstrumentedToolHandlerWithService(
		"console_whoami", "console", "get", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleWhoami(ctx, request, sc)
		}))

	listProjectsTool := mcp.NewTool("console_list_projects",
		mcp.WithDescription("List projects visible to the current session"),
	)

	s.AddTool(listProjectsTool, common.InstrumentedToolHandlerWithService(
		"console_list_projects", "console", "list", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListProjects(ctx, request, sc)
		}))

	listDeploymentsTool := mcp.NewTool("console_list_deployments",
		mcp.WithDescription("List recent deployments of a project"),
		mcp.WithString("projectId",
			mcp.Required(),
			mcp.Description("Project ID"),
		),
	)

	s.AddTool(listDeploymentsTool, common.InstrumentedToolHandlerWithService(
		"console_list_deployments", "console", "list", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListDeployments(ctx, request, sc)
		}))

	getLogsTool := mcp.NewTool("console_get_logs",
		mcp.WithDescription("Fetch recent log lines for a deployment"),
		mcp.WithString("deploymentId",
			mcp.Required(),
			mcp.Description("Deployment ID"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of log lines to return (default: 100)"),
		),
	)

	s.AddTool(getLogsTool, common.InstrumentedToolHandlerWithService(
		"console_get_logs", "console", "get", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetLogs(ctx, request, sc)
		}))

	return nil
}

func handleWhoami(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	client, err := sc.ConsoleClient(ctx, sc.AutoPopup())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	user, err := client.Whoami(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to query session: %v", err)), nil
	}

	result := fmt.Sprintf("Email: %s\n", user.Email)
	if user.Name != "" {
		result += fmt.Sprintf("Name: %s\n", user.Name)
	}
	if len(user.Teams) > 0 {
		result += fmt.Sprintf("Teams: %s\n", strings.Join(user.Teams, ", "))
	}

	return mcp.NewToolResultText(result), nil
}

func handleListProjects(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	client, err := sc.ConsoleClient(ctx, sc.AutoPopup())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	projects, err := client.ListProjects(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list projects: %v", err)), nil
	}

	if len(projects) == 0 {
		return mcp.NewToolResultText("No projects visible."), nil
	}

	result := fmt.Sprintf("Found %d project(s):\n\n", len(projects))
	for i, p := range projects {
		result += fmt.Sprintf("%d. %s\n", i+1, p.Name)
		result += fmt.Sprintf("   ID: %s\n", p.ID)
		result += fmt.Sprintf("   Owner: %s\n", p.Owner)
		if !p.UpdatedAt.IsZero() {
			result += fmt.Sprintf("   Updated: %s\n", p.UpdatedAt.Format(time.RFC3339))
		}
		result += "\n"
	}

	return mcp.NewToolResultText(result), nil
}

func handleListDeployments(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	projectID := common.GetStringArg(args, "projectId", "")
	if projectID == "" {
		return mcp.NewToolResultError("projectId is required"), nil
	}

	client, err := sc.ConsoleClient(ctx, sc.AutoPopup())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	deployments, err := client.ListDeployments(ctx, projectID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list deployments: %v", err)), nil
	}

	if len(deployments) == 0 {
		return mcp.NewToolResultText("No deployments found."), nil
	}

	result := fmt.Sprintf("Found %d deployment(s):\n\n", len(deployments))
	for i, d := range deployments {
		result += fmt.Sprintf("%d. %s (%s)\n", i+1, d.ID, d.Status)
		result += fmt.Sprintf("   Version: %s\n", d.Version)
		if !d.CreatedAt.IsZero() {
			result += fmt.Sprintf("   Created: %s\n", d.CreatedAt.Format(time.RFC3339))
		}
		result += "\n"
	}

	return mcp.NewToolResultText(result), nil
}

func handleGetLogs(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	deploymentID := common.GetStringArg(args, "deploymentId", "")
	if deploymentID == "" {
		return mcp.NewToolResultError("deploymentId is required"), nil
	}
	limit := common.GetIntArg(args, "limit", 100)

	client, err := sc.ConsoleClient(ctx, sc.AutoPopup())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	entries, err := client.GetLogs(ctx, deploymentID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to fetch logs: %v", err)), nil
	}

	if len(entries) == 0 {
		return mcp.NewToolResultText("No log entries."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Last %d log line(s):\n\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "[%s] %s %s\n", e.Timestamp.Format(time.RFC3339), strings.ToUpper(e.Level), e.Message)
	}

	return mcp.NewToolResultText(b.String()), nil
}
