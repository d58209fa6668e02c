// Package authcore implements the OAuth token lifecycle shared by every
// toolbridge provider server: persisted credential storage, the short-lived
// local HTTP listener that captures the provider's browser redirect, the
// coordinator that runs one interactive login end-to-end, and the factory
// that hands out ready-to-use credentials with transparent refresh.
//
// The package is provider-agnostic. Everything provider-specific (consent
// URL construction, code exchange, token refresh, callback parameter shapes)
// is hidden behind the Adapter interface, implemented once per provider
// under internal/providers.
//
// Concurrency: overlapping tool invocations may call EnsureReady or Login
// while a previous attempt is still in flight. Both the flow coordinator and
// the client factory collapse concurrent callers onto a single attempt via
// singleflight, so at most one callback listener is ever bound per provider
// and at most one browser window is opened.
package authcore
