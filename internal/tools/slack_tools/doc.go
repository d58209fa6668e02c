// Package slack_tools exposes Slack workspace operations as MCP tools.
//
// Tools act with the signed-in user's token, so search and message
// posting happen as that user, not as a bot.
package slack_tools
