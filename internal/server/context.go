package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	slackapi "github.com/slack-go/slack"
	calendar "google.golang.org/api/calendar/v3"
	drive "google.golang.org/api/drive/v3"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/toolbridge/internal/authcore"
	"github.com/teemow/toolbridge/internal/instrumentation"
	"github.com/teemow/toolbridge/internal/providers/console"
	"github.com/teemow/toolbridge/internal/providers/google"
	"github.com/teemow/toolbridge/internal/providers/slack"
)

// ServerContext holds the state for one provider server: the credential
// factory plus lazily built upstream handles. Handles are cached per
// access token and rebuilt whenever the factory hands out different
// credentials, so a refresh, logout, or re-login transparently invalidates
// them.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	provider    string
	factory     *authcore.ClientFactory
	logger      *slog.Logger
	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger
	autoPopup   bool

	slackAdapter *slack.Adapter
	consoleCfg   console.Config

	mu          sync.RWMutex
	handleToken string
	calendarSvc *calendar.Service
	gmailSvc    *gmail.Service
	driveSvc    *drive.Service
	slackClient *slackapi.Client
	consoleCli  *console.Client
	shutdown    bool
}

// ContextOption customizes a ServerContext.
type ContextOption func(*ServerContext)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(sc *ServerContext) { sc.logger = logger }
}

// WithMetrics attaches a metrics recorder. Nil-safe at the call sites, so
// servers without instrumentation skip recording.
func WithMetrics(m *instrumentation.Metrics) ContextOption {
	return func(sc *ServerContext) { sc.metrics = m }
}

// WithAuditLogger attaches an audit logger for tool invocations.
func WithAuditLogger(al *instrumentation.AuditLogger) ContextOption {
	return func(sc *ServerContext) { sc.auditLogger = al }
}

// WithAutoPopup controls whether tool invocations may open a browser for
// interactive login when credentials are missing. Enabled for local stdio
// servers, disabled for headless and HTTP deployments.
func WithAutoPopup(enabled bool) ContextOption {
	return func(sc *ServerContext) { sc.autoPopup = enabled }
}

// WithSlackAdapter supplies the adapter used to build Slack API clients.
func WithSlackAdapter(a *slack.Adapter) ContextOption {
	return func(sc *ServerContext) { sc.slackAdapter = a }
}

// WithConsoleConfig supplies the backend location for console clients.
func WithConsoleConfig(cfg console.Config) ContextOption {
	return func(sc *ServerContext) { sc.consoleCfg = cfg }
}

// NewServerContext creates the context for one provider server.
func NewServerContext(ctx context.Context, provider string, factory *authcore.ClientFactory, opts ...ContextOption) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)
	sc := &ServerContext{
		ctx:      shutdownCtx,
		cancel:   cancel,
		provider: provider,
		factory:  factory,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

// Context returns the server's lifetime context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Provider returns the provider this server fronts.
func (sc *ServerContext) Provider() string {
	return sc.provider
}

// Factory returns the credential factory, used by the auth tools.
func (sc *ServerContext) Factory() *authcore.ClientFactory {
	return sc.factory
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Metrics returns the metrics recorder, possibly nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// AuditLogger returns the audit logger, possibly nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.auditLogger
}

// AutoPopup reports whether tools may open a browser for interactive
// login.
func (sc *ServerContext) AutoPopup() bool {
	return sc.autoPopup
}

// ensureCredentials runs the factory and drops cached handles when the
// access token changed underneath them.
func (sc *ServerContext) ensureCredentials(ctx context.Context, autoPopup bool) (*authcore.Credentials, error) {
	creds, err := sc.factory.EnsureReady(ctx, autoPopup)
	if err != nil {
		return nil, err
	}

	sc.mu.Lock()
	if sc.handleToken != creds.AccessToken {
		sc.calendarSvc = nil
		sc.gmailSvc = nil
		sc.driveSvc = nil
		sc.slackClient = nil
		sc.consoleCli = nil
		sc.handleToken = creds.AccessToken
	}
	sc.mu.Unlock()
	return creds, nil
}

// InvalidateHandles drops all cached upstream handles. Called by the auth
// tools after logout and forced re-authentication.
func (sc *ServerContext) InvalidateHandles() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.handleToken = ""
	sc.calendarSvc = nil
	sc.gmailSvc = nil
	sc.driveSvc = nil
	sc.slackClient = nil
	sc.consoleCli = nil
}

// CalendarService returns a ready Calendar client, running the credential
// lifecycle first.
func (sc *ServerContext) CalendarService(ctx context.Context, autoPopup bool) (*calendar.Service, error) {
	creds, err := sc.ensureCredentials(ctx, autoPopup)
	if err != nil {
		return nil, err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.calendarSvc != nil {
		return sc.calendarSvc, nil
	}
	svc, err := google.NewCalendarService(sc.ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("building calendar client: %w", err)
	}
	sc.calendarSvc = svc
	return svc, nil
}

// GmailService returns a ready Gmail client.
func (sc *ServerContext) GmailService(ctx context.Context, autoPopup bool) (*gmail.Service, error) {
	creds, err := sc.ensureCredentials(ctx, autoPopup)
	if err != nil {
		return nil, err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.gmailSvc != nil {
		return sc.gmailSvc, nil
	}
	svc, err := google.NewGmailService(sc.ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("building gmail client: %w", err)
	}
	sc.gmailSvc = svc
	return svc, nil
}

// DriveService returns a ready Drive client.
func (sc *ServerContext) DriveService(ctx context.Context, autoPopup bool) (*drive.Service, error) {
	creds, err := sc.ensureCredentials(ctx, autoPopup)
	if err != nil {
		return nil, err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.driveSvc != nil {
		return sc.driveSvc, nil
	}
	svc, err := google.NewDriveService(sc.ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("building drive client: %w", err)
	}
	sc.driveSvc = svc
	return svc, nil
}

// SlackClient returns a ready Slack API client.
func (sc *ServerContext) SlackClient(ctx context.Context, autoPopup bool) (*slackapi.Client, error) {
	if sc.slackAdapter == nil {
		return nil, fmt.Errorf("slack adapter not configured")
	}
	creds, err := sc.ensureCredentials(ctx, autoPopup)
	if err != nil {
		return nil, err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.slackClient != nil {
		return sc.slackClient, nil
	}
	sc.slackClient = sc.slackAdapter.NewClient(creds)
	return sc.slackClient, nil
}

// ConsoleClient returns a ready console REST client.
func (sc *ServerContext) ConsoleClient(ctx context.Context, autoPopup bool) (*console.Client, error) {
	creds, err := sc.ensureCredentials(ctx, autoPopup)
	if err != nil {
		return nil, err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.consoleCli != nil {
		return sc.consoleCli, nil
	}
	sc.consoleCli = console.NewClient(sc.consoleCfg, creds)
	return sc.consoleCli, nil
}

// IsShutdown returns whether the server has been shut down.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context. Safe to call more than once.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}
	sc.shutdown = true
	sc.cancel()
	return nil
}
