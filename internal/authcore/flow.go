package authcore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/teemow/toolbridge/internal/logging"
)

// FlowCoordinator runs one interactive login end-to-end: bind the callback
// listener, build the consent URL, open the browser, await the redirect,
// exchange the grant, persist the credentials. Nothing is persisted unless
// every step succeeds.
type FlowCoordinator struct {
	adapter Adapter
	store   *CredentialStore
	logger  *slog.Logger
	metrics AuthMetrics

	timeout     time.Duration
	openBrowser func(string) error
	newListener func(port int, path string) *CallbackListener

	group singleflight.Group
}

// FlowOption customizes a FlowCoordinator.
type FlowOption func(*FlowCoordinator)

// WithLoginTimeout overrides DefaultLoginTimeout.
func WithLoginTimeout(d time.Duration) FlowOption {
	return func(f *FlowCoordinator) { f.timeout = d }
}

// WithBrowserOpener replaces the system browser launcher, used by tests
// and by headless-mode callers that only want the URL logged.
func WithBrowserOpener(open func(string) error) FlowOption {
	return func(f *FlowCoordinator) { f.openBrowser = open }
}

// WithFlowLogger sets the logger.
func WithFlowLogger(logger *slog.Logger) FlowOption {
	return func(f *FlowCoordinator) { f.logger = logger }
}

// WithFlowMetrics attaches a recorder for login outcomes.
func WithFlowMetrics(m AuthMetrics) FlowOption {
	return func(f *FlowCoordinator) { f.metrics = m }
}

// NewFlowCoordinator wires a coordinator for one provider adapter.
func NewFlowCoordinator(adapter Adapter, store *CredentialStore, opts ...FlowOption) *FlowCoordinator {
	f := &FlowCoordinator{
		adapter:     adapter,
		store:       store,
		logger:      slog.Default(),
		timeout:     DefaultLoginTimeout,
		openBrowser: OpenBrowser,
		newListener: NewCallbackListener,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Login runs the interactive flow and returns the persisted credentials.
// Concurrent calls are collapsed: while one login is in flight, additional
// callers block and share its outcome instead of binding a second listener
// or opening a second browser window.
func (f *FlowCoordinator) Login(ctx context.Context) (*Credentials, error) {
	v, err, shared := f.group.Do("login", func() (interface{}, error) {
		creds, err := f.runLogin(ctx)
		if f.metrics != nil {
			result := "success"
			if err != nil {
				result = "failure"
			}
			f.metrics.RecordOAuthAuth(ctx, result)
		}
		return creds, err
	})
	if err != nil {
		return nil, err
	}
	if shared {
		f.logger.Debug("joined in-flight login",
			slog.String(logging.KeyService, f.adapter.Name()))
	}
	return v.(*Credentials), nil
}

func (f *FlowCoordinator) runLogin(ctx context.Context) (*Credentials, error) {
	listener := f.newListener(f.adapter.CallbackPort(), f.adapter.CallbackPath())
	redirectURI, err := listener.Start()
	if err != nil {
		return nil, err
	}
	defer listener.Stop()

	state := uuid.NewString()
	consentURL := f.adapter.BuildConsentURL(redirectURI, state)

	if err := f.openBrowser(consentURL); err != nil {
		f.logger.Warn("could not open browser, open the URL manually",
			logging.Err(err),
			slog.String(logging.KeyService, f.adapter.Name()),
			slog.String("url", consentURL))
	} else {
		f.logger.Info("opened browser for provider consent",
			slog.String(logging.KeyService, f.adapter.Name()))
	}

	query, err := listener.Await(ctx, f.timeout)
	if err != nil {
		return nil, err
	}

	// Providers that round-trip the state parameter must echo it back
	// unchanged, and for those a callback without it is rejected as
	// forged. Providers that drop it (the console backend) only get the
	// mismatch check.
	echoed := query.Get("state")
	if rt, ok := f.adapter.(StateRoundTripper); ok && rt.RoundTripsState() {
		if echoed != state {
			return nil, fmt.Errorf("%w: missing or mismatched state parameter", ErrMalformedCallback)
		}
	} else if echoed != "" && echoed != state {
		return nil, fmt.Errorf("%w: state parameter mismatch", ErrMalformedCallback)
	}

	grant, err := f.adapter.ParseCallback(query)
	if err != nil {
		return nil, err
	}

	creds := grant.Credentials
	if creds == nil {
		creds, err = f.adapter.ExchangeCode(ctx, grant.Code, redirectURI)
		if err != nil {
			return nil, fmt.Errorf("exchanging authorization code: %w", err)
		}
	}

	if err := f.store.Save(creds); err != nil {
		return nil, fmt.Errorf("persisting credentials: %w", err)
	}

	attrs := []any{slog.String(logging.KeyService, f.adapter.Name())}
	if creds.Identity != nil {
		attrs = append(attrs, slog.String("account", logging.AnonymizeEmail(creds.Identity.Email)))
	}
	f.logger.Info("login complete", attrs...)
	return creds, nil
}
