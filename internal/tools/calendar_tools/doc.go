// Package calendar_tools exposes Google Calendar operations as MCP tools.
//
// All tools obtain their Calendar service handle through the server
// context, which runs the OAuth flow on first use and refreshes tokens
// transparently afterwards.
package calendar_tools
