package authcore

import "time"

// Identity describes the authenticated account, captured during login so
// status commands and tools can report who is signed in without another
// round-trip to the provider.
type Identity struct {
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Credentials is the persisted credential record for one provider. It is
// written as JSON to $XDG_CACHE_HOME/toolbridge/<provider>.json with 0600
// permissions.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	Identity     *Identity `json:"identity,omitempty"`
}

// Expired reports whether the access token is past its expiry. A record
// with no recorded expiry is treated as expired, which forces a refresh or
// re-login rather than sending a possibly dead token upstream.
func (c *Credentials) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return true
	}
	return !now.Before(c.ExpiresAt)
}

// ExpiringWithin reports whether the access token expires inside the given
// look-ahead window. Used by the factory to refresh proactively instead of
// letting an upstream call fail mid-flight.
func (c *Credentials) ExpiringWithin(now time.Time, window time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return true
	}
	return !now.Add(window).Before(c.ExpiresAt)
}

// CanRefresh reports whether the record carries a refresh token.
func (c *Credentials) CanRefresh() bool {
	return c.RefreshToken != ""
}
