package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/toolbridge/internal/authcore"
	"github.com/teemow/toolbridge/internal/instrumentation"
	"github.com/teemow/toolbridge/internal/providers/console"
	"github.com/teemow/toolbridge/internal/providers/google"
	"github.com/teemow/toolbridge/internal/providers/slack"
	"github.com/teemow/toolbridge/internal/server"
	"github.com/teemow/toolbridge/internal/tools/auth_tools"
	"github.com/teemow/toolbridge/internal/tools/calendar_tools"
	"github.com/teemow/toolbridge/internal/tools/console_tools"
	"github.com/teemow/toolbridge/internal/tools/drive_tools"
	"github.com/teemow/toolbridge/internal/tools/gmail_tools"
	"github.com/teemow/toolbridge/internal/tools/slack_tools"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

func newServeCmd() *cobra.Command {
	var (
		provider  string
		transport string
		httpAddr  string
		debugMode bool
		yolo      bool
		noPopup   bool
		// HTTP transport settings
		baseURL            string
		googleClientID     string
		googleClientSecret string
		disableStreaming   bool
		// OAuth security settings
		allowPublicClientRegistration bool
		registrationAccessToken       string
		allowLocalhostRedirectURIs    bool
		maxClientsPerIP               int
		// Metrics server configuration
		metricsEnabled bool
		metricsAddr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start an MCP server for one provider",
		Long: `Start a Model Context Protocol (MCP) server exposing one provider's API
surface as tools.

Each process serves exactly one provider:
  - google:  Calendar, Gmail and Drive tools
  - slack:   channel, search and messaging tools
  - console: project, deployment and log tools

Transports:
  - stdio: standard input/output (default). Missing credentials trigger an
    interactive browser login on first tool use.
  - streamable-http: HTTP transport protected by an embedded OAuth 2.1
    authorization server that proxies to Google. Only available for the
    google provider.

Safety Mode:
  By default, the server operates in read-only mode, providing only safe
  operations. Use --yolo to enable write operations (event creation,
  message sending, etc.)

Provider configuration comes from the environment:
  google:  GOOGLE_OAUTH_CLIENT_ID, GOOGLE_OAUTH_CLIENT_SECRET
  slack:   SLACK_OAUTH_CLIENT_ID, SLACK_OAUTH_CLIENT_SECRET
  console: CONSOLE_BASE_URL (optional CONSOLE_SESSION_TOKEN)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			metricsConfig := MetricsConfig{
				Enabled: metricsEnabled,
				Addr:    metricsAddr,
			}
			loadMetricsEnvVars(cmd, &metricsConfig)

			oauthConfig := server.OAuthConfig{
				BaseURL:                       baseURL,
				GoogleClientID:                googleClientID,
				GoogleClientSecret:            googleClientSecret,
				AllowPublicClientRegistration: allowPublicClientRegistration,
				RegistrationAccessToken:       registrationAccessToken,
				AllowLocalhostRedirectURIs:    allowLocalhostRedirectURIs,
				MaxClientsPerIP:               maxClientsPerIP,
				DisableStreaming:              disableStreaming,
			}
			loadOAuthEnvVars(&oauthConfig)

			return runServe(serveOptions{
				provider:      provider,
				transport:     transport,
				httpAddr:      httpAddr,
				debugMode:     debugMode,
				readOnly:      !yolo,
				autoPopup:     !noPopup,
				oauthConfig:   oauthConfig,
				metricsConfig: metricsConfig,
			})
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider to serve: google, slack or console (required)")
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "HTTP server address (for streamable-http transport)")
	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&yolo, "yolo", false, "Enable write operations (event creation, message sending, etc.). Default is read-only mode.")
	cmd.Flags().BoolVar(&noPopup, "no-popup", false, "Never open a browser from tool invocations; tools fail with a clear error when credentials are missing. Use 'toolbridge auth login' instead.")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Public base URL for OAuth (HTTP transport only). Required for deployed instances. Can also use MCP_BASE_URL env var. Example: https://mcp.example.com")
	cmd.Flags().StringVar(&googleClientID, "google-client-id", "", "Google OAuth Client ID for the embedded authorization server (HTTP transport only). Can also use GOOGLE_OAUTH_CLIENT_ID env var.")
	cmd.Flags().StringVar(&googleClientSecret, "google-client-secret", "", "Google OAuth Client Secret for the embedded authorization server (HTTP transport only). Can also use GOOGLE_OAUTH_CLIENT_SECRET env var.")
	cmd.Flags().BoolVar(&disableStreaming, "disable-streaming", false, "Disable streaming for HTTP transport (for compatibility with certain clients)")

	// OAuth Security Settings (HTTP transport only)
	cmd.Flags().BoolVar(&allowPublicClientRegistration, "oauth-allow-public-registration", false, "WARNING: Allow unauthenticated client registration (NOT recommended for production). Can also use MCP_OAUTH_ALLOW_PUBLIC_REGISTRATION env var. Default: false (secure)")
	cmd.Flags().StringVar(&registrationAccessToken, "oauth-registration-token", "", "Registration access token required for client registration when public registration is disabled. Can also use MCP_OAUTH_REGISTRATION_TOKEN env var.")
	cmd.Flags().BoolVar(&allowLocalhostRedirectURIs, "oauth-allow-localhost-redirect-uris", false, "Allow http://localhost redirect URIs for native apps (RFC 8252). Can also use MCP_OAUTH_ALLOW_LOCALHOST_REDIRECT_URIS env var. Default: false (secure)")
	cmd.Flags().IntVar(&maxClientsPerIP, "oauth-max-clients-per-ip", 10, "Maximum number of clients that can be registered per IP address (prevents DoS). Can also use MCP_OAUTH_MAX_CLIENTS_PER_IP env var. Default: 10")

	// Metrics server flags
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Metrics server address. Can also use METRICS_ADDR env var.")

	_ = cmd.MarkFlagRequired("provider")

	return cmd
}

type serveOptions struct {
	provider      string
	transport     string
	httpAddr      string
	debugMode     bool
	readOnly      bool
	autoPopup     bool
	oauthConfig   server.OAuthConfig
	metricsConfig MetricsConfig
}

func runServe(opts serveOptions) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := newServeLogger(opts.debugMode)

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	instrProvider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := instrProvider.Shutdown(shutdownCtx); err != nil {
			if opts.transport != "stdio" {
				log.Printf("Error during instrumentation shutdown: %v", err)
			}
		}
	}()

	// Start metrics server if enabled and not in stdio mode
	var metricsServer *server.MetricsServer
	if opts.transport != "stdio" && opts.metricsConfig.Enabled && instrProvider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    opts.metricsConfig.Addr,
			Enabled:                 true,
			InstrumentationProvider: instrProvider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				log.Printf("Metrics server failed: %v", err)
			}
		}()
		log.Printf("Metrics server started on %s", metricsServer.Addr())
	}

	var authMetrics authcore.AuthMetrics
	if instrProvider.Enabled() {
		authMetrics = instrProvider.Metrics()
	}
	stack, err := buildProviderStack(opts.provider, logger, authMetrics)
	if err != nil {
		return err
	}

	// Tool invocations on the HTTP transport can never pop a browser on
	// the server host.
	autoPopup := opts.autoPopup && opts.transport == "stdio"

	ctxOpts := append([]server.ContextOption{
		server.WithLogger(logger),
		server.WithAutoPopup(autoPopup),
	}, stack.ctxOpts...)
	if instrProvider.Enabled() {
		ctxOpts = append(ctxOpts,
			server.WithMetrics(instrProvider.Metrics()),
			server.WithAuditLogger(instrumentation.NewAuditLoggerWithConfig(nil, instrConfig.AuditLogging)),
		)
	}

	serverContext := server.NewServerContext(shutdownCtx, opts.provider, stack.factory, ctxOpts...)
	defer func() {
		if metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Printf("Error during metrics server shutdown: %v", err)
			}
		}
		if err := serverContext.Shutdown(); err != nil {
			if opts.transport != "stdio" {
				log.Printf("Error during server context shutdown: %v", err)
			}
		}
	}()

	mcpSrv := mcpserver.NewMCPServer("toolbridge-"+opts.provider, version,
		mcpserver.WithToolCapabilities(true),
	)

	// Log the mode for visibility (only for non-stdio transports)
	if opts.transport != "stdio" {
		if opts.readOnly {
			log.Println("Starting server in READ-ONLY mode (use --yolo to enable write operations)")
		} else {
			log.Println("Starting server with WRITE operations enabled (--yolo flag is set)")
		}
	}

	if err := registerProviderTools(mcpSrv, serverContext, opts.provider, opts.readOnly); err != nil {
		return err
	}

	switch opts.transport {
	case "stdio":
		return runStdioServer(mcpSrv)
	case "streamable-http":
		if opts.provider != google.ProviderName {
			return fmt.Errorf("streamable-http transport requires the google provider (the embedded authorization server proxies to Google); got %q", opts.provider)
		}
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, serverContext, logger, opts.httpAddr, opts.oauthConfig, opts.metricsConfig, instrProvider)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", opts.transport)
	}
}

// newServeLogger builds the process logger. Log output goes to stderr
// because on stdio transports stdout carries the MCP protocol.
func newServeLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// registerProviderTools registers the auth tools plus the tool set for the
// given provider.
func registerProviderTools(mcpSrv *mcpserver.MCPServer, ctx *server.ServerContext, provider string, readOnly bool) error {
	if err := auth_tools.RegisterAuthTools(mcpSrv, ctx); err != nil {
		return fmt.Errorf("failed to register auth tools: %w", err)
	}

	type toolRegistration struct {
		name     string
		register func() error
	}

	var registrations []toolRegistration
	switch provider {
	case google.ProviderName:
		registrations = []toolRegistration{
			{
				name: "Calendar",
				register: func() error {
					return calendar_tools.RegisterCalendarTools(mcpSrv, ctx, readOnly)
				},
			},
			{
				name: "Gmail",
				register: func() error {
					return gmail_tools.RegisterGmailTools(mcpSrv, ctx, readOnly)
				},
			},
			{
				name: "Drive",
				register: func() error {
					return drive_tools.RegisterDriveTools(mcpSrv, ctx, readOnly)
				},
			},
		}
	case slack.ProviderName:
		registrations = []toolRegistration{
			{
				name: "Slack",
				register: func() error {
					return slack_tools.RegisterSlackTools(mcpSrv, ctx, readOnly)
				},
			},
		}
	case console.ProviderName:
		registrations = []toolRegistration{
			{
				name: "Console",
				register: func() error {
					return console_tools.RegisterConsoleTools(mcpSrv, ctx, readOnly)
				},
			},
		}
	default:
		return fmt.Errorf("unknown provider %q", provider)
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s tools: %w", reg.name, err)
		}
	}

	return nil
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, serverContext *server.ServerContext, logger *slog.Logger, addr string, oauthConfig server.OAuthConfig, metricsConfig MetricsConfig, instrProvider *instrumentation.Provider) error {
	// Determine base URL from flag, environment variable, or auto-detection
	baseURL := oauthConfig.BaseURL
	if baseURL == "" {
		// Fall back to auto-detection for local development
		baseURL = fmt.Sprintf("http://%s", addr)
		if addr[0] == ':' {
			baseURL = fmt.Sprintf("http://localhost%s", addr)
		}
		log.Printf("No base URL configured, using auto-detected: %s", baseURL)
		log.Printf("For deployed instances, set --base-url flag or MCP_BASE_URL env var")
	} else {
		log.Printf("Using configured base URL: %s", baseURL)
	}
	oauthConfig.BaseURL = baseURL

	oauthServer, err := server.NewOAuthHTTPServer(mcpSrv, oauthConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to create OAuth HTTP server: %w", err)
	}

	healthChecker := server.NewHealthChecker(serverContext)
	healthChecker.SetReady(true)
	oauthServer.SetHealthChecker(healthChecker)

	if instrProvider != nil && instrProvider.Enabled() {
		oauthServer.SetMetrics(instrProvider.Metrics())
	}

	fmt.Printf("Streamable HTTP server with OAuth authentication starting on %s\n", addr)
	fmt.Printf("  HTTP endpoint: /mcp\n")
	fmt.Printf("  Health endpoints: /healthz, /readyz\n")
	fmt.Printf("  OAuth metadata: /.well-known/oauth-protected-resource\n")
	fmt.Printf("  Authorization Server: %s\n", baseURL)
	if metricsConfig.Enabled {
		fmt.Printf("  Metrics endpoint: %s/metrics\n", metricsConfig.Addr)
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := oauthServer.Start(addr); err != nil && err != http.ErrServerClosed {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		fmt.Println("Shutdown signal received, stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := oauthServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
		fmt.Println("HTTP server stopped normally")
	}

	fmt.Println("HTTP server gracefully stopped")
	return nil
}

// loadMetricsEnvVars loads metrics configuration from environment variables.
// Environment variables only override flag values when the flag was not
// explicitly set.
func loadMetricsEnvVars(cmd *cobra.Command, config *MetricsConfig) {
	if !cmd.Flags().Changed("metrics-enabled") {
		if v := os.Getenv("METRICS_ENABLED"); v != "" {
			if parsed, err := strconv.ParseBool(v); err == nil {
				config.Enabled = parsed
			}
		}
	}
	if !cmd.Flags().Changed("metrics-addr") {
		if addr := os.Getenv("METRICS_ADDR"); addr != "" {
			config.Addr = addr
		}
	}
}

// loadOAuthEnvVars fills unset OAuth settings from the environment.
func loadOAuthEnvVars(config *server.OAuthConfig) {
	if config.BaseURL == "" {
		config.BaseURL = os.Getenv("MCP_BASE_URL")
	}
	if config.GoogleClientID == "" {
		config.GoogleClientID = os.Getenv("GOOGLE_OAUTH_CLIENT_ID")
	}
	if config.GoogleClientSecret == "" {
		config.GoogleClientSecret = os.Getenv("GOOGLE_OAUTH_CLIENT_SECRET")
	}
	if !config.AllowPublicClientRegistration && os.Getenv("MCP_OAUTH_ALLOW_PUBLIC_REGISTRATION") == "true" {
		config.AllowPublicClientRegistration = true
	}
	if config.RegistrationAccessToken == "" {
		config.RegistrationAccessToken = os.Getenv("MCP_OAUTH_REGISTRATION_TOKEN")
	}
	if !config.AllowLocalhostRedirectURIs && os.Getenv("MCP_OAUTH_ALLOW_LOCALHOST_REDIRECT_URIS") == "true" {
		config.AllowLocalhostRedirectURIs = true
	}
	if config.MaxClientsPerIP == 0 {
		if envMax := os.Getenv("MCP_OAUTH_MAX_CLIENTS_PER_IP"); envMax != "" {
			if maxClients, err := strconv.Atoi(envMax); err == nil && maxClients > 0 {
				config.MaxClientsPerIP = maxClients
			}
		}
		if config.MaxClientsPerIP == 0 {
			config.MaxClientsPerIP = 10
		}
	}
}
