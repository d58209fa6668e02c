// Package console_tools exposes the internal console backend as MCP tools.
package console_tools
