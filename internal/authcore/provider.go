package authcore

import (
	"context"
	"net/url"
)

// GrantResult is what an adapter extracted from the provider redirect.
// Exactly one of the two fields is set: Code for authorization-code
// providers that still need a token exchange, Credentials for providers
// whose backend pre-exchanges the token and delivers it in the redirect.
type GrantResult struct {
	Code        string
	Credentials *Credentials
}

// Adapter is the provider-specific half of the login flow. Implementations
// live under internal/providers and must be safe for concurrent use.
type Adapter interface {
	// Name is the short provider identifier ("google", "slack", "console").
	// It names the credential file and shows up in logs and metrics.
	Name() string

	// CallbackPort is the fixed localhost port the provider app is
	// registered to redirect to.
	CallbackPort() int

	// CallbackPath is the path component of the registered redirect URI,
	// for example "/oauth/callback".
	CallbackPath() string

	// BuildConsentURL returns the browser URL that starts the grant. The
	// redirect URI points at the local callback listener and state is an
	// opaque CSRF token the adapter should round-trip when the provider
	// supports it.
	BuildConsentURL(redirectURI, state string) string

	// ParseCallback extracts the grant from the redirect query parameters.
	// It returns ErrMalformedCallback (possibly wrapped) when required
	// parameters are absent.
	ParseCallback(query url.Values) (*GrantResult, error)

	// ExchangeCode swaps an authorization code for credentials. Only called
	// when ParseCallback returned a Code.
	ExchangeCode(ctx context.Context, code, redirectURI string) (*Credentials, error)

	// Refresh renews the access token using the refresh token carried by
	// current. Adapters for providers without renewable tokens return
	// ErrRefreshNotSupported.
	Refresh(ctx context.Context, current *Credentials) (*Credentials, error)
}

// StateRoundTripper is implemented by adapters whose provider echoes the
// state parameter back on the redirect. For these adapters a callback
// without a matching state is rejected as forged; adapters that do not
// implement it (the console backend drops the parameter) only get the
// mismatch check.
type StateRoundTripper interface {
	RoundTripsState() bool
}

// AuthMetrics receives login and token refresh outcomes.
// *instrumentation.Metrics satisfies it.
type AuthMetrics interface {
	RecordOAuthAuth(ctx context.Context, result string)
	RecordOAuthTokenRefresh(ctx context.Context, result string)
}
