// Package cmd implements the command-line interface for toolbridge.
//
// This package provides the following commands:
//   - serve: Start an MCP server exposing one provider's tools
//   - auth: Log in to, log out of, or inspect a provider's credentials
//   - version: Display version information
package cmd
