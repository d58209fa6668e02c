// Package gmail_tools exposes Gmail operations as MCP tools.
package gmail_tools
