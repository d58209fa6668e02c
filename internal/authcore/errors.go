package authcore

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated is returned by ClientFactory.EnsureReady when no
// usable credentials exist and the caller asked for no interactive login.
// Callers surface this with a hint to run the authenticate tool or
// `toolbridge auth login`.
var ErrNotAuthenticated = errors.New("not authenticated")

// ErrLoginTimeout is returned when the callback listener gave up waiting
// for the provider redirect. The user most likely closed the browser tab
// or never completed the consent screen.
var ErrLoginTimeout = errors.New("login timed out waiting for the provider redirect")

// ErrMalformedCallback is returned when the provider redirect arrived but
// lacked the parameters the adapter needs to complete the grant.
var ErrMalformedCallback = errors.New("provider redirect is missing required parameters")

// ErrRefreshNotSupported is returned by adapters whose provider issues
// non-renewable tokens, such as console session cookies.
var ErrRefreshNotSupported = errors.New("provider does not support token refresh")

// PortInUseError is returned by CallbackListener.Start when the fixed
// callback port is already bound, typically by a second server instance
// for the same provider.
type PortInUseError struct {
	Port int
	Err  error
}

func (e *PortInUseError) Error() string {
	return fmt.Sprintf("callback port %d is already in use: %v", e.Port, e.Err)
}

func (e *PortInUseError) Unwrap() error {
	return e.Err
}

// ProviderAuthError is returned when the provider redirected back with an
// explicit error instead of a grant, for example because the user denied
// the consent screen.
type ProviderAuthError struct {
	Code        string
	Description string
}

func (e *ProviderAuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("provider rejected authorization: %s (%s)", e.Code, e.Description)
	}
	return fmt.Sprintf("provider rejected authorization: %s", e.Code)
}

// RefreshError wraps a failed token refresh. The stored credentials are
// left untouched when refresh fails so a later attempt can retry or fall
// back to an interactive login.
type RefreshError struct {
	Provider string
	Err      error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refreshing %s token: %v", e.Provider, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}
