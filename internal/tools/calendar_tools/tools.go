package calendar_tools

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"google.golang.org/api/calendar/v3"

	"github.com/teemow/toolbridge/internal/server"
	"github.com/teemow/toolbridge/internal/tools/common"
)

// RegisterCalendarTools registers all Calendar-related tools with the MCP server
func RegisterCalendarTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	listCalendarsTool := mcp.NewTool("calendar_list_calendars",
		mcp.WithDescription("List all calendars accessible to the authenticated user"),
	)

	s.AddTool(listCalendarsTool, common.InstrumentedToolHandlerWithService(
		"calendar_list_calendars", "calendar", "list", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListCalendars(ctx, request, sc)
		}))

	listEventsTool := mcp.NewTool("calendar_list_events",
		mcp.WithDescription("List upcoming events from a calendar"),
		mcp.WithString("calendarId",
			mcp.Description("Calendar ID (default: 'primary')"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of events to return (default: 10)"),
		),
		mcp.WithString("query",
			mcp.Description("Free-text search over event fields"),
		),
	)

	s.AddTool(listEventsTool, common.InstrumentedToolHandlerWithService(
		"calendar_list_events", "calendar", "list", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListEvents(ctx, request, sc)
		}))

	if !readOnly {
		createEventTool := mcp.NewTool("calendar_create_event",
			mcp.WithDescription("Create a new calendar event"),
			mcp.WithString("calendarId",
				mcp.Description("Calendar ID (default: 'primary')"),
			),
			mcp.WithString("summary",
				mcp.Required(),
				mcp.Description("Event title"),
			),
			mcp.WithString("start",
				mcp.Required(),
				mcp.Description("Start time in RFC3339 format"),
			),
			mcp.WithString("end",
				mcp.Required(),
				mcp.Description("End time in RFC3339 format"),
			),
			mcp.WithString("description",
				mcp.Description("Event description"),
			),
		)

		s.AddTool(createEventTool, common.InstrumentedToolHandlerWithService(
			"calendar_create_event", "calendar", "create", sc,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return handleCreateEvent(ctx, request, sc)
			}))
	}

	return nil
}

func handleListCalendars(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	svc, err := sc.CalendarService(ctx, sc.AutoPopup())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	list, err := svc.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list calendars: %v", err)), nil
	}

	result := fmt.Sprintf("Found %d calendar(s):\n\n", len(list.Items))
	for i, cal := range list.Items {
		result += fmt.Sprintf("%d. %s\n", i+1, cal.Summary)
		result += fmt.Sprintf("   ID: %s\n", cal.Id)
		result += fmt.Sprintf("   Access Role: %s\n", cal.AccessRole)
		if cal.Primary {
			result += "   [PRIMARY]\n"
		}
		if cal.TimeZone != "" {
			result += fmt.Sprintf("   Time Zone: %s\n", cal.TimeZone)
		}
		result += "\n"
	}

	return mcp.NewToolResultText(result), nil
}

func handleListEvents(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	calendarID := common.GetStringArg(args, "calendarId", "primary")
	maxResults := common.GetIntArg(args, "maxResults", 10)
	query := common.GetStringArg(args, "query", "")

	svc, err := sc.CalendarService(ctx, sc.AutoPopup())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	call := svc.Events.List(calendarID).
		TimeMin(time.Now().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(int64(maxResults)).
		Context(ctx)
	if query != "" {
		call = call.Q(query)
	}

	events, err := call.Do()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list events: %v", err)), nil
	}

	if len(events.Items) == 0 {
		return mcp.NewToolResultText("No upcoming events found."), nil
	}

	result := fmt.Sprintf("Found %d event(s):\n\n", len(events.Items))
	for i, event := range events.Items {
		result += fmt.Sprintf("%d. %s\n", i+1, event.Summary)
		result += fmt.Sprintf("   ID: %s\n", event.Id)
		result += fmt.Sprintf("   Start: %s\n", eventTime(event.Start))
		result += fmt.Sprintf("   End: %s\n", eventTime(event.End))
		if event.Location != "" {
			result += fmt.Sprintf("   Location: %s\n", event.Location)
		}
		result += "\n"
	}

	return mcp.NewToolResultText(result), nil
}

func handleCreateEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	calendarID := common.GetStringArg(args, "calendarId", "primary")
	summary := common.GetStringArg(args, "summary", "")
	start := common.GetStringArg(args, "start", "")
	end := common.GetStringArg(args, "end", "")

	if summary == "" {
		return mcp.NewToolResultError("summary is required"), nil
	}
	if _, err := time.Parse(time.RFC3339, start); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid start time: %v", err)), nil
	}
	if _, err := time.Parse(time.RFC3339, end); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid end time: %v", err)), nil
	}

	svc, err := sc.CalendarService(ctx, sc.AutoPopup())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	event := &calendar.Event{
		Summary:     summary,
		Description: common.GetStringArg(args, "description", ""),
		Start:       &calendar.EventDateTime{DateTime: start},
		End:         &calendar.EventDateTime{DateTime: end},
	}

	created, err := svc.Events.Insert(calendarID, event).Context(ctx).Do()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create event: %v", err)), nil
	}

	result := fmt.Sprintf("Event created: %s\n", created.Summary)
	result += fmt.Sprintf("ID: %s\n", created.Id)
	if created.HtmlLink != "" {
		result += fmt.Sprintf("Link: %s\n", created.HtmlLink)
	}

	return mcp.NewToolResultText(result), nil
}

func eventTime(dt *calendar.EventDateTime) string {
	if dt == nil {
		return "(unknown)"
	}
	if dt.DateTime != "" {
		return dt.DateTime
	}
	return dt.Date + " (all day)"
}
