package authcore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/teemow/toolbridge/internal/logging"
)

// DefaultRefreshWindow is how far ahead of expiry the factory renews a
// token, so an upstream call started just before expiry does not fail
// mid-flight.
const DefaultRefreshWindow = 5 * time.Minute

// FactoryState tracks whether the factory holds usable credentials.
type FactoryState int

const (
	StateUninitialized FactoryState = iota
	StateInitializing
	StateReady
)

func (s FactoryState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// ClientFactory hands out ready-to-use credentials for one provider. It
// loads persisted credentials lazily, refreshes them inside the look-ahead
// window, falls back to an interactive login when allowed, and collapses
// concurrent initialization attempts onto a single one.
type ClientFactory struct {
	adapter Adapter
	store   *CredentialStore
	flow    *FlowCoordinator
	logger  *slog.Logger
	metrics AuthMetrics

	refreshWindow time.Duration
	now           func() time.Time

	mu         sync.Mutex
	state      FactoryState
	creds      *Credentials
	generation uint64

	group singleflight.Group
}

// FactoryOption customizes a ClientFactory.
type FactoryOption func(*ClientFactory)

// WithRefreshWindow overrides DefaultRefreshWindow.
func WithRefreshWindow(d time.Duration) FactoryOption {
	return func(f *ClientFactory) { f.refreshWindow = d }
}

// WithClock replaces the time source, used by tests.
func WithClock(now func() time.Time) FactoryOption {
	return func(f *ClientFactory) { f.now = now }
}

// WithFactoryLogger sets the logger.
func WithFactoryLogger(logger *slog.Logger) FactoryOption {
	return func(f *ClientFactory) { f.logger = logger }
}

// WithFactoryMetrics attaches a recorder for token refresh outcomes.
func WithFactoryMetrics(m AuthMetrics) FactoryOption {
	return func(f *ClientFactory) { f.metrics = m }
}

// NewClientFactory wires a factory for one provider.
func NewClientFactory(adapter Adapter, store *CredentialStore, flow *FlowCoordinator, opts ...FactoryOption) *ClientFactory {
	f := &ClientFactory{
		adapter:       adapter,
		store:         store,
		flow:          flow,
		logger:        slog.Default(),
		refreshWindow: DefaultRefreshWindow,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// EnsureReady returns credentials that are valid for at least the refresh
// window, initializing or refreshing as needed. With autoPopup false no
// browser is ever opened: when the stored credentials cannot be made
// usable, EnsureReady returns ErrNotAuthenticated and the caller reports
// how to log in instead. Concurrent callers share one initialization.
func (f *ClientFactory) EnsureReady(ctx context.Context, autoPopup bool) (*Credentials, error) {
	f.mu.Lock()
	if f.state == StateReady && f.creds != nil && !f.creds.ExpiringWithin(f.now(), f.refreshWindow) {
		creds := f.creds
		f.mu.Unlock()
		return creds, nil
	}
	f.mu.Unlock()

	v, err, _ := f.group.Do("initialize", func() (interface{}, error) {
		return f.initialize(ctx, autoPopup)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Credentials), nil
}

func (f *ClientFactory) initialize(ctx context.Context, autoPopup bool) (*Credentials, error) {
	// Another caller may have finished initializing while this one waited
	// on the singleflight key.
	f.mu.Lock()
	if f.state == StateReady && f.creds != nil && !f.creds.ExpiringWithin(f.now(), f.refreshWindow) {
		creds := f.creds
		f.mu.Unlock()
		return creds, nil
	}
	f.state = StateInitializing
	f.mu.Unlock()

	if creds := f.store.Load(); creds != nil {
		if !creds.ExpiringWithin(f.now(), f.refreshWindow) {
			return f.adopt(creds), nil
		}
		if creds.CanRefresh() {
			renewed, err := f.refresh(ctx, creds)
			if err == nil {
				return f.adopt(renewed), nil
			}
			// The stored record is left on disk. A later attempt can
			// retry the refresh or replace it via interactive login.
			f.logger.Warn("token refresh failed, falling back to login",
				logging.Err(err),
				slog.String(logging.KeyService, f.adapter.Name()))
		}
	}

	if !autoPopup {
		f.setState(StateUninitialized)
		return nil, ErrNotAuthenticated
	}

	creds, err := f.flow.Login(ctx)
	if err != nil {
		f.setState(StateUninitialized)
		return nil, err
	}
	return f.adopt(creds), nil
}

func (f *ClientFactory) refresh(ctx context.Context, current *Credentials) (*Credentials, error) {
	renewed, err := f.adapter.Refresh(ctx, current)
	if err != nil {
		f.recordRefresh(ctx, "failure")
		return nil, &RefreshError{Provider: f.adapter.Name(), Err: err}
	}
	// Some providers omit the refresh token from renewal responses.
	if renewed.RefreshToken == "" {
		renewed.RefreshToken = current.RefreshToken
	}
	if renewed.Identity == nil {
		renewed.Identity = current.Identity
	}
	if err := f.store.Save(renewed); err != nil {
		f.recordRefresh(ctx, "failure")
		return nil, err
	}
	f.recordRefresh(ctx, "success")
	f.logger.Info("access token refreshed",
		slog.String(logging.KeyService, f.adapter.Name()))
	return renewed, nil
}

func (f *ClientFactory) recordRefresh(ctx context.Context, result string) {
	if f.metrics != nil {
		f.metrics.RecordOAuthTokenRefresh(ctx, result)
	}
}

func (f *ClientFactory) adopt(creds *Credentials) *Credentials {
	f.mu.Lock()
	f.state = StateReady
	f.creds = creds
	f.mu.Unlock()
	return creds
}

func (f *ClientFactory) setState(s FactoryState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

// ForceReauthenticate discards both the in-memory and persisted
// credentials and runs a fresh interactive login regardless of whether the
// old credentials were still valid.
func (f *ClientFactory) ForceReauthenticate(ctx context.Context) (*Credentials, error) {
	if err := f.Logout(); err != nil {
		return nil, err
	}
	return f.EnsureReady(ctx, true)
}

// Logout clears the persisted credentials and resets the factory. Cached
// upstream handles built from the old credentials are invalidated via the
// generation counter.
func (f *ClientFactory) Logout() error {
	if err := f.store.Clear(); err != nil {
		return err
	}
	f.mu.Lock()
	f.state = StateUninitialized
	f.creds = nil
	f.generation++
	f.mu.Unlock()
	return nil
}

// State returns the current lifecycle state.
func (f *ClientFactory) State() FactoryState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Credentials returns the in-memory credentials without triggering
// initialization, or nil when the factory is not ready. Status reporting
// only; callers that need usable credentials go through EnsureReady.
func (f *ClientFactory) Credentials() *Credentials {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateReady {
		return nil
	}
	return f.creds
}

// Generation increments whenever credentials are discarded. Handle caches
// compare it to decide whether a cached upstream client is still valid.
func (f *ClientFactory) Generation() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generation
}
