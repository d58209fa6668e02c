// Package server provides the MCP server context, session management,
// and OAuth-enabled HTTP server for the toolbridge application.
//
// # Key Components
//
// ServerContext manages one provider's credential factory and its lazily
// built upstream handles (Calendar, Gmail, Drive, Slack, console). Handles
// are cached per access token and rebuilt when credentials change, so a
// refresh, logout, or re-login transparently invalidates them.
//
// OAuthHTTPServer wraps an MCP server with OAuth 2.1 authentication for
// the streamable-http transport:
//   - Authorization Server Metadata (RFC 8414)
//   - Protected Resource Metadata (RFC 9728)
//   - Dynamic Client Registration (RFC 7591)
//   - Token Revocation (RFC 7009)
//   - Token Introspection (RFC 7662)
//
// SessionIDManager handles multi-account session tracking for HTTP
// transport. It maps Bearer tokens to accounts, enabling multiple users to
// share a single MCP server instance.
//
// MetricsServer exposes Prometheus metrics on a dedicated listener, and
// HealthChecker serves the Kubernetes liveness and readiness probes.
package server
