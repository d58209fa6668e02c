package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	oauth "github.com/giantswarm/mcp-oauth"
	oauthgoogle "github.com/giantswarm/mcp-oauth/providers/google"
	"github.com/giantswarm/mcp-oauth/security"
	oauthserver "github.com/giantswarm/mcp-oauth/server"
	"github.com/giantswarm/mcp-oauth/storage/memory"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/toolbridge/internal/instrumentation"
)

const (
	// defaultRefreshTokenTTL is how long issued refresh tokens stay valid.
	defaultRefreshTokenTTL = 90 * 24 * time.Hour

	// Rate limits for the OAuth endpoints, per IP and per authenticated user.
	defaultIPRateLimit   = 10
	defaultIPBurst       = 20
	defaultUserRateLimit = 100
	defaultUserBurst     = 200

	// defaultMaxClientsPerIP caps dynamic client registrations per IP.
	defaultMaxClientsPerIP = 10
)

// oauthProxyScopes are the scopes the embedded authorization server requests
// from Google when authenticating MCP clients. Identity only; the tools use
// the locally stored credentials, not the proxy token.
var oauthProxyScopes = []string{
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// OAuthConfig configures the OAuth layer protecting the streamable-http
// transport. The embedded authorization server proxies to Google, so the
// HTTP transport is only available for the google provider.
type OAuthConfig struct {
	// BaseURL is the externally reachable base URL of this server.
	BaseURL string

	// GoogleClientID and GoogleClientSecret identify the OAuth app the
	// authorization server proxies to.
	GoogleClientID     string
	GoogleClientSecret string

	// AllowPublicClientRegistration permits unauthenticated dynamic client
	// registration (RFC 7591). Keep disabled in production and use
	// RegistrationAccessToken instead.
	AllowPublicClientRegistration bool
	RegistrationAccessToken       string

	// AllowLocalhostRedirectURIs permits http://localhost redirect URIs
	// for native clients (RFC 8252).
	AllowLocalhostRedirectURIs bool

	// MaxClientsPerIP caps dynamic registrations per IP.
	MaxClientsPerIP int

	// DisableStreaming turns the streamable-http endpoint into plain
	// request/response mode.
	DisableStreaming bool
}

// OAuthHTTPServer wraps an MCP server with OAuth 2.1 authentication via
// github.com/giantswarm/mcp-oauth: protected resource metadata (RFC 9728),
// authorization server metadata (RFC 8414), dynamic client registration
// (RFC 7591), and token validation on the MCP endpoint.
type OAuthHTTPServer struct {
	mcpServer        *mcpserver.MCPServer
	oauthServer      *oauth.Server
	oauthHandler     *oauth.Handler
	httpServer       *http.Server
	metrics          *instrumentation.Metrics
	healthChecker    *HealthChecker
	disableStreaming bool
}

// NewOAuthHTTPServer creates an OAuth-enabled streamable-http server.
func NewOAuthHTTPServer(mcpServer *mcpserver.MCPServer, config OAuthConfig, logger *slog.Logger) (*OAuthHTTPServer, error) {
	if err := validateHTTPSRequirement(config.BaseURL); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	provider, err := oauthgoogle.NewProvider(&oauthgoogle.Config{
		ClientID:     config.GoogleClientID,
		ClientSecret: config.GoogleClientSecret,
		RedirectURL:  config.BaseURL + "/oauth/callback",
		Scopes:       oauthProxyScopes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Google provider: %w", err)
	}

	store := memory.New()

	maxClientsPerIP := config.MaxClientsPerIP
	if maxClientsPerIP <= 0 {
		maxClientsPerIP = defaultMaxClientsPerIP
	}

	serverConfig := &oauthserver.Config{
		Issuer:                        config.BaseURL,
		RefreshTokenTTL:               int64(defaultRefreshTokenTTL.Seconds()),
		AllowRefreshTokenRotation:     true,
		RequirePKCE:                   true,
		AllowPKCEPlain:                false,
		AllowPublicClientRegistration: config.AllowPublicClientRegistration,
		RegistrationAccessToken:       config.RegistrationAccessToken,
		MaxClientsPerIP:               maxClientsPerIP,
		AllowLocalhostRedirectURIs:    config.AllowLocalhostRedirectURIs,
	}

	oauthSrv, err := oauth.NewServer(provider, store, store, store, serverConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create OAuth server: %w", err)
	}

	oauthSrv.SetAuditor(security.NewAuditor(logger, true))
	oauthSrv.SetRateLimiter(security.NewRateLimiter(defaultIPRateLimit, defaultIPBurst, logger))
	oauthSrv.SetUserRateLimiter(security.NewRateLimiter(defaultUserRateLimit, defaultUserBurst, logger))
	oauthSrv.SetClientRegistrationRateLimiter(security.NewClientRegistrationRateLimiterWithConfig(
		maxClientsPerIP,
		security.DefaultRegistrationWindow,
		security.DefaultMaxRegistrationEntries,
		logger,
	))

	return &OAuthHTTPServer{
		mcpServer:        mcpServer,
		oauthServer:      oauthSrv,
		oauthHandler:     oauth.NewHandler(oauthSrv, logger),
		disableStreaming: config.DisableStreaming,
	}, nil
}

// SetMetrics attaches a metrics recorder for HTTP request instrumentation.
func (s *OAuthHTTPServer) SetMetrics(m *instrumentation.Metrics) {
	s.metrics = m
}

// SetHealthChecker attaches a health checker whose endpoints are served
// alongside the OAuth and MCP routes.
func (s *OAuthHTTPServer) SetHealthChecker(hc *HealthChecker) {
	s.healthChecker = hc
}

// Start starts the OAuth-enabled HTTP server on addr. It blocks until the
// server stops.
func (s *OAuthHTTPServer) Start(addr string) error {
	mux := http.NewServeMux()

	// OAuth 2.1 endpoints
	mux.Handle("/.well-known/oauth-protected-resource",
		s.oauthInstrumentationWrapper(http.HandlerFunc(s.oauthHandler.ServeProtectedResourceMetadata)))
	mux.Handle("/.well-known/oauth-authorization-server",
		s.oauthInstrumentationWrapper(http.HandlerFunc(s.oauthHandler.ServeAuthorizationServerMetadata)))
	mux.Handle("/oauth/register",
		s.oauthInstrumentationWrapper(http.HandlerFunc(s.oauthHandler.ServeClientRegistration)))
	mux.Handle("/oauth/authorize",
		s.oauthInstrumentationWrapper(http.HandlerFunc(s.oauthHandler.ServeAuthorization)))
	mux.Handle("/oauth/token",
		s.oauthInstrumentationWrapper(http.HandlerFunc(s.oauthHandler.ServeToken)))
	mux.Handle("/oauth/callback",
		s.oauthInstrumentationWrapper(http.HandlerFunc(s.oauthHandler.ServeCallback)))
	mux.Handle("/oauth/revoke",
		s.oauthInstrumentationWrapper(http.HandlerFunc(s.oauthHandler.ServeTokenRevocation)))
	mux.Handle("/oauth/introspect",
		s.oauthInstrumentationWrapper(http.HandlerFunc(s.oauthHandler.ServeTokenIntrospection)))

	// MCP endpoint, token-validated
	var httpServer http.Handler
	if s.disableStreaming {
		httpServer = mcpserver.NewStreamableHTTPServer(s.mcpServer,
			mcpserver.WithEndpointPath("/mcp"),
			mcpserver.WithDisableStreaming(true),
		)
	} else {
		httpServer = mcpserver.NewStreamableHTTPServer(s.mcpServer,
			mcpserver.WithEndpointPath("/mcp"),
		)
	}
	mcpHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpServer.ServeHTTP(w, r)
	})
	mux.Handle("/mcp", s.instrumentationMiddleware(s.oauthHandler.ValidateToken(mcpHandler)))

	if s.healthChecker != nil {
		s.healthChecker.RegisterHealthEndpoints(mux)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server and the OAuth server's
// background services.
func (s *OAuthHTTPServer) Shutdown(ctx context.Context) error {
	if s.oauthServer != nil {
		if err := s.oauthServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown OAuth server: %w", err)
		}
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// GetOAuthHandler returns the OAuth handler for testing or direct access.
func (s *OAuthHTTPServer) GetOAuthHandler() *oauth.Handler {
	return s.oauthHandler
}

// responseWriter captures the status code for instrumentation.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// instrumentationMiddleware records request count and duration for the MCP
// endpoint. A nil metrics recorder makes it a pass-through.
func (s *OAuthHTTPServer) instrumentationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)
		s.metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}

// oauthInstrumentationWrapper records OAuth endpoint requests under a
// normalized path label to keep cardinality bounded.
func (s *OAuthHTTPServer) oauthInstrumentationWrapper(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		path := r.URL.Path
		if strings.HasPrefix(path, "/.well-known/") {
			path = "/.well-known"
		}
		s.metrics.RecordHTTPRequest(r.Context(), r.Method, path, rw.statusCode, time.Since(start))
	})
}

// validateHTTPSRequirement ensures OAuth 2.1 HTTPS compliance. HTTP is
// allowed only for loopback addresses.
func validateHTTPSRequirement(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	if u.Scheme == "http" {
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("OAuth 2.1 requires HTTPS for production (got: %s). Use HTTPS or localhost for development", baseURL)
		}
	} else if u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s. Must be http (localhost only) or https", u.Scheme)
	}

	return nil
}
