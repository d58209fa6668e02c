package slack_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	slackapi "github.com/slack-go/slack"

	"github.com/teemow/toolbridge/internal/server"
	"github.com/teemow/toolbridge/internal/tools/common"
)

// RegisterSlackTools registers all Slack-related tools with the MCP server
func RegisterSlackTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	listChannelsTool := mcp.NewTool("slack_list_channels",
		mcp.WithDescription("List channels visible to the authenticated user"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of channels to return (default: 20)"),
		),
	)

	s.AddTool(listChannelsTool, common.InstrumentedToolHandlerWithService(
		"slack_list_channels", "slack", "list", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListChannels(ctx, request, sc)
		}))

	searchTool := mcp.NewTool("slack_search_messages",
		mcp.WithDescription("Search messages across the workspace using Slack search syntax (e.g. 'in:#general from:@alice deploy')"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Slack search query"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of matches to return (default: 10)"),
		),
	)

	s.AddTool(searchTool, common.InstrumentedToolHandlerWithService(
		"slack_search_messages", "slack", "search", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSearchMessages(ctx, request, sc)
		}))

	historyTool := mcp.NewTool("slack_channel_history",
		mcp.WithDescription("Fetch recent messages from a channel"),
		mcp.WithString("channelId",
			mcp.Required(),
			mcp.Description("Channel ID (e.g. C0123456789)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of messages to return (default: 20)"),
		),
	)

	s.AddTool(historyTool, common.InstrumentedToolHandlerWithService(
		"slack_channel_history", "slack", "get", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleChannelHistory(ctx, request, sc)
		}))

	if !readOnly {
		sendTool := mcp.NewTool("slack_send_message",
			mcp.WithDescription("Send a message to a channel as the authenticated user"),
			mcp.WithString("channelId",
				mcp.Required(),
				mcp.Description("Channel ID to post to"),
			),
			mcp.WithString("text",
				mcp.Required(),
				mcp.Description("Message text"),
			),
		)

		s.AddTool(sendTool, common.InstrumentedToolHandlerWithService(
			"slack_send_message", "slack", "create", sc,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return handleSendMessage(ctx, request, sc)
			}))
	}

	return nil
}

func handleListChannels(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	limit := common.GetIntArg(args, "limit", 20)

	client, err := sc.SlackClient(ctx, sc.AutoPopup())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	channels, _, err := client.GetConversationsContext(ctx, &slackapi.GetConversationsParameters{
		Limit:           limit,
		Types:           []string{"public_channel", "private_channel"},
		ExcludeArchived: true,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list channels: %v", err)), nil
	}

	if len(channels) == 0 {
		return mcp.NewToolResultText("No channels visible."), nil
	}

	result := fmt.Sprintf("Found %d channel(s):\n\n", len(channels))
	for i, ch := range channels {
		result += fmt.Sprintf("%d. #%s\n", i+1, ch.Name)
		result += fmt.Sprintf("   ID: %s\n", ch.ID)
		if ch.Purpose.Value != "" {
			result += fmt.Sprintf("   Purpose: %s\n", ch.Purpose.Value)
		}
		result += fmt.Sprintf("   Members: %d\n\n", ch.NumMembers)
	}

	return mcp.NewToolResultText(result), nil
}

func handleSearchMessages(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	query := common.GetStringArg(args, "query", "")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	limit := common.GetIntArg(args, "limit", 10)

	client, err := sc.SlackClient(ctx, sc.AutoPopup())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	matches, err := client.SearchMessagesContext(ctx, query, slackapi.SearchParameters{
		Sort:          "timestamp",
		SortDirection: "desc",
		Count:         limit,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to search messages: %v", err)), nil
	}

	if len(matches.Matches) == 0 {
		return mcp.NewToolResultText("No messages matched the query."), nil
	}

	result := fmt.Sprintf("Found %d of %d matching message(s):\n\n", len(matches.Matches), matches.Total)
	for i, m := range matches.Matches {
		result += fmt.Sprintf("%d. #%s @%s\n", i+1, m.Channel.Name, m.Username)
		result += fmt.Sprintf("   %s\n", m.Text)
		if m.Permalink != "" {
			result += fmt.Sprintf("   Link: %s\n", m.Permalink)
		}
		result += "\n"
	}

	return mcp.NewToolResultText(result), nil
}

func handleChannelHistory(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	channelID := common.GetStringArg(args, "channelId", "")
	if channelID == "" {
		return mcp.NewToolResultError("channelId is required"), nil
	}
	limit := common.GetIntArg(args, "limit", 20)

	client, err := sc.SlackClient(ctx, sc.AutoPopup())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	history, err := client.GetConversationHistoryContext(ctx, &slackapi.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     limit,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to fetch channel history: %v", err)), nil
	}

	if len(history.Messages) == 0 {
		return mcp.NewToolResultText("No messages in channel."), nil
	}

	result := fmt.Sprintf("Last %d message(s):\n\n", len(history.Messages))
	for i, m := range history.Messages {
		result += fmt.Sprintf("%d. [%s] %s: %s\n", i+1, m.Timestamp, m.User, m.Text)
	}

	return mcp.NewToolResultText(result), nil
}

func handleSendMessage(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	channelID := common.GetStringArg(args, "channelId", "")
	if channelID == "" {
		return mcp.NewToolResultError("channelId is required"), nil
	}
	text := common.GetStringArg(args, "text", "")
	if text == "" {
		return mcp.NewToolResultError("text is required"), nil
	}

	client, err := sc.SlackClient(ctx, sc.AutoPopup())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	channel, timestamp, err := client.PostMessageContext(ctx, channelID,
		slackapi.MsgOptionText(text, false),
		slackapi.MsgOptionAsUser(true),
	)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to send message: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Message sent to %s at %s.", channel, timestamp)), nil
}
