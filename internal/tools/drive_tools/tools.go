package drive_tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"google.golang.org/api/drive/v3"

	"github.com/teemow/toolbridge/internal/server"
	"github.com/teemow/toolbridge/internal/tools/common"
)

const fileFields = "files(id, name, mimeType, size, modifiedTime, webViewLink, owners(emailAddress))"

// RegisterDriveTools registers all Drive-related tools with the MCP server
func RegisterDriveTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	listFilesTool := mcp.NewTool("drive_list_files",
		mcp.WithDescription("List recent files in Google Drive"),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of files to return (default: 10)"),
		),
		mcp.WithString("folderId",
			mcp.Description("Restrict listing to a folder"),
		),
	)

	s.AddTool(listFilesTool, common.InstrumentedToolHandlerWithService(
		"drive_list_files", "drive", "list", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListFiles(ctx, request, sc)
		}))

	searchFilesTool := mcp.NewTool("drive_search_files",
		mcp.WithDescription("Search Google Drive files by name or content"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search terms"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of files to return (default: 10)"),
		),
	)

	s.AddTool(searchFilesTool, common.InstrumentedToolHandlerWithService(
		"drive_search_files", "drive", "search", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSearchFiles(ctx, request, sc)
		}))

	getFileTool := mcp.NewTool("drive_get_file",
		mcp.WithDescription("Get metadata for a Drive file by ID"),
		mcp.WithString("fileId",
			mcp.Required(),
			mcp.Description("Drive file ID"),
		),
	)

	s.AddTool(getFileTool, common.InstrumentedToolHandlerWithService(
		"drive_get_file", "drive", "get", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetFile(ctx, request, sc)
		}))

	return nil
}

func handleListFiles(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	maxResults := common.GetIntArg(args, "maxResults", 10)
	folderID := common.GetStringArg(args, "folderId", "")

	svc, err := sc.DriveService(ctx, sc.AutoPopup())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	call := svc.Files.List().
		PageSize(int64(maxResults)).
		OrderBy("modifiedTime desc").
		Fields(fileFields).
		Context(ctx)
	if folderID != "" {
		call = call.Q(fmt.Sprintf("'%s' in parents and trashed = false", escapeQueryTerm(folderID)))
	} else {
		call = call.Q("trashed = false")
	}

	list, err := call.Do()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list files: %v", err)), nil
	}

	return mcp.NewToolResultText(formatFileList(list.Files)), nil
}

func handleSearchFiles(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	query := common.GetStringArg(args, "query", "")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	maxResults := common.GetIntArg(args, "maxResults", 10)

	svc, err := sc.DriveService(ctx, sc.AutoPopup())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	term := escapeQueryTerm(query)
	list, err := svc.Files.List().
		Q(fmt.Sprintf("(name contains '%s' or fullText contains '%s') and trashed = false", term, term)).
		PageSize(int64(maxResults)).
		Fields(fileFields).
		Context(ctx).
		Do()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to search files: %v", err)), nil
	}

	return mcp.NewToolResultText(formatFileList(list.Files)), nil
}

func handleGetFile(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	fileID := common.GetStringArg(args, "fileId", "")
	if fileID == "" {
		return mcp.NewToolResultError("fileId is required"), nil
	}

	svc, err := sc.DriveService(ctx, sc.AutoPopup())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	file, err := svc.Files.Get(fileID).
		Fields("id, name, mimeType, size, createdTime, modifiedTime, webViewLink, owners(emailAddress, displayName)").
		Context(ctx).
		Do()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get file: %v", err)), nil
	}

	result := fmt.Sprintf("File: %s\n", file.Name)
	result += fmt.Sprintf("ID: %s\n", file.Id)
	result += fmt.Sprintf("Type: %s\n", file.MimeType)
	if file.Size > 0 {
		result += fmt.Sprintf("Size: %d bytes\n", file.Size)
	}
	result += fmt.Sprintf("Created: %s\n", file.CreatedTime)
	result += fmt.Sprintf("Modified: %s\n", file.ModifiedTime)
	if file.WebViewLink != "" {
		result += fmt.Sprintf("Link: %s\n", file.WebViewLink)
	}
	for _, owner := range file.Owners {
		result += fmt.Sprintf("Owner: %s\n", owner.EmailAddress)
	}

	return mcp.NewToolResultText(result), nil
}

func formatFileList(files []*drive.File) string {
	if len(files) == 0 {
		return "No files found."
	}

	result := fmt.Sprintf("Found %d file(s):\n\n", len(files))
	for i, file := range files {
		result += fmt.Sprintf("%d. %s\n", i+1, file.Name)
		result += fmt.Sprintf("   ID: %s\n", file.Id)
		result += fmt.Sprintf("   Type: %s\n", file.MimeType)
		if file.ModifiedTime != "" {
			result += fmt.Sprintf("   Modified: %s\n", file.ModifiedTime)
		}
		if file.WebViewLink != "" {
			result += fmt.Sprintf("   Link: %s\n", file.WebViewLink)
		}
		result += "\n"
	}
	return result
}

// escapeQueryTerm escapes characters with meaning in Drive query strings.
func escapeQueryTerm(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
