// Package drive_tools exposes Google Drive operations as MCP tools.
package drive_tools
