package gmail_tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"google.golang.org/api/gmail/v1"

	"github.com/teemow/toolbridge/internal/server"
	"github.com/teemow/toolbridge/internal/tools/common"
)

// RegisterGmailTools registers all Gmail-related tools with the MCP server
func RegisterGmailTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	searchTool := mcp.NewTool("gmail_search_messages",
		mcp.WithDescription("Search Gmail messages using Gmail query syntax (e.g. 'from:alice is:unread')"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Gmail search query"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of messages to return (default: 10)"),
		),
	)

	s.AddTool(searchTool, common.InstrumentedToolHandlerWithService(
		"gmail_search_messages", "gmail", "search", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSearchMessages(ctx, request, sc)
		}))

	getTool := mcp.NewTool("gmail_get_message",
		mcp.WithDescription("Get a Gmail message by ID, including headers and a plain-text body preview"),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("Gmail message ID"),
		),
	)

	s.AddTool(getTool, common.InstrumentedToolHandlerWithService(
		"gmail_get_message", "gmail", "get", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetMessage(ctx, request, sc)
		}))

	listLabelsTool := mcp.NewTool("gmail_list_labels",
		mcp.WithDescription("List all Gmail labels"),
	)

	s.AddTool(listLabelsTool, common.InstrumentedToolHandlerWithService(
		"gmail_list_labels", "gmail", "list", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListLabels(ctx, request, sc)
		}))

	return nil
}

func handleSearchMessages(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	query := common.GetStringArg(args, "query", "")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	maxResults := common.GetIntArg(args, "maxResults", 10)

	svc, err := sc.GmailService(ctx, sc.AutoPopup())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	list, err := svc.Users.Messages.List("me").Q(query).MaxResults(int64(maxResults)).Context(ctx).Do()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to search messages: %v", err)), nil
	}

	if len(list.Messages) == 0 {
		return mcp.NewToolResultText("No messages matched the query."), nil
	}

	result := fmt.Sprintf("Found %d message(s):\n\n", len(list.Messages))
	for i, ref := range list.Messages {
		msg, err := svc.Users.Messages.Get("me", ref.Id).Format("metadata").
			MetadataHeaders("From", "Subject", "Date").Context(ctx).Do()
		if err != nil {
			result += fmt.Sprintf("%d. %s (failed to load metadata: %v)\n\n", i+1, ref.Id, err)
			continue
		}
		result += fmt.Sprintf("%d. %s\n", i+1, messageHeader(msg, "Subject"))
		result += fmt.Sprintf("   ID: %s\n", msg.Id)
		result += fmt.Sprintf("   From: %s\n", messageHeader(msg, "From"))
		result += fmt.Sprintf("   Date: %s\n", messageHeader(msg, "Date"))
		if msg.Snippet != "" {
			result += fmt.Sprintf("   Snippet: %s\n", msg.Snippet)
		}
		result += "\n"
	}

	return mcp.NewToolResultText(result), nil
}

func handleGetMessage(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	messageID := common.GetStringArg(args, "messageId", "")
	if messageID == "" {
		return mcp.NewToolResultError("messageId is required"), nil
	}

	svc, err := sc.GmailService(ctx, sc.AutoPopup())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	msg, err := svc.Users.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get message: %v", err)), nil
	}

	result := fmt.Sprintf("Subject: %s\n", messageHeader(msg, "Subject"))
	result += fmt.Sprintf("From: %s\n", messageHeader(msg, "From"))
	result += fmt.Sprintf("To: %s\n", messageHeader(msg, "To"))
	result += fmt.Sprintf("Date: %s\n", messageHeader(msg, "Date"))
	result += fmt.Sprintf("Labels: %s\n\n", strings.Join(msg.LabelIds, ", "))

	if body := extractPlainText(msg.Payload); body != "" {
		result += body
	} else if msg.Snippet != "" {
		result += msg.Snippet
	}

	return mcp.NewToolResultText(result), nil
}

func handleListLabels(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	svc, err := sc.GmailService(ctx, sc.AutoPopup())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	labels, err := svc.Users.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list labels: %v", err)), nil
	}

	result := fmt.Sprintf("Found %d label(s):\n\n", len(labels.Labels))
	for _, label := range labels.Labels {
		result += fmt.Sprintf("- %s (%s)\n", label.Name, label.Id)
	}

	return mcp.NewToolResultText(result), nil
}

func messageHeader(msg *gmail.Message, name string) string {
	if msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// extractPlainText walks the MIME tree and returns the first text/plain part.
func extractPlainText(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}
	if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			return ""
		}
		return string(data)
	}
	for _, child := range part.Parts {
		if text := extractPlainText(child); text != "" {
			return text
		}
	}
	return ""
}
