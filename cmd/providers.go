package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/teemow/toolbridge/internal/authcore"
	"github.com/teemow/toolbridge/internal/providers/console"
	"github.com/teemow/toolbridge/internal/providers/google"
	"github.com/teemow/toolbridge/internal/providers/slack"
	"github.com/teemow/toolbridge/internal/server"
)

// providerStack bundles everything a provider server needs: the adapter,
// the credential machinery built on it, and the context options that wire
// the provider's upstream clients.
type providerStack struct {
	adapter authcore.Adapter
	store   *authcore.CredentialStore
	flow    *authcore.FlowCoordinator
	factory *authcore.ClientFactory
	ctxOpts []server.ContextOption
}

// buildProviderStack assembles the credential stack for one provider from
// environment configuration. metrics may be nil when instrumentation is
// disabled.
func buildProviderStack(provider string, logger *slog.Logger, metrics authcore.AuthMetrics) (*providerStack, error) {
	stack := &providerStack{}

	switch provider {
	case google.ProviderName:
		cfg := google.ConfigFromEnv()
		cfg.CallbackPort = callbackPortFromEnv(google.DefaultCallbackPort)
		if scopes := parseCommaSeparatedList(os.Getenv("GOOGLE_OAUTH_SCOPES")); scopes != nil {
			cfg.Scopes = scopes
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		stack.adapter = google.NewAdapter(cfg)

	case slack.ProviderName:
		cfg := slack.ConfigFromEnv()
		cfg.CallbackPort = callbackPortFromEnv(slack.DefaultCallbackPort)
		if scopes := parseCommaSeparatedList(os.Getenv("SLACK_USER_SCOPES")); scopes != nil {
			cfg.UserScopes = scopes
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		adapter := slack.NewAdapter(cfg)
		stack.adapter = adapter
		stack.ctxOpts = append(stack.ctxOpts, server.WithSlackAdapter(adapter))

	case console.ProviderName:
		cfg := console.ConfigFromEnv()
		cfg.CallbackPort = callbackPortFromEnv(console.DefaultCallbackPort)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		stack.adapter = console.NewAdapter(cfg)
		stack.ctxOpts = append(stack.ctxOpts, server.WithConsoleConfig(cfg))

	default:
		return nil, fmt.Errorf("unknown provider %q (supported: google, slack, console)", provider)
	}

	credPath, err := authcore.DefaultCredentialPath(provider)
	if err != nil {
		return nil, fmt.Errorf("resolving credential path: %w", err)
	}
	stack.store = authcore.NewCredentialStore(credPath, logger)

	flowOpts := []authcore.FlowOption{authcore.WithFlowLogger(logger)}
	factoryOpts := []authcore.FactoryOption{authcore.WithFactoryLogger(logger)}
	if metrics != nil {
		flowOpts = append(flowOpts, authcore.WithFlowMetrics(metrics))
		factoryOpts = append(factoryOpts, authcore.WithFactoryMetrics(metrics))
	}
	stack.flow = authcore.NewFlowCoordinator(stack.adapter, stack.store, flowOpts...)
	stack.factory = authcore.NewClientFactory(stack.adapter, stack.store, stack.flow, factoryOpts...)

	// A console session token handed in via the environment replaces the
	// interactive login, so machines without a browser can still serve.
	if provider == console.ProviderName {
		if creds := console.CredentialsFromEnv(console.DefaultSessionTTL); creds != nil {
			if err := stack.store.Save(creds); err != nil {
				return nil, fmt.Errorf("storing session token from %s: %w", console.EnvSessionToken, err)
			}
		}
	}

	return stack, nil
}

// callbackPortFromEnv reads TOOLBRIDGE_CALLBACK_PORT, falling back to the
// provider's default port.
func callbackPortFromEnv(fallback int) int {
	v := os.Getenv("TOOLBRIDGE_CALLBACK_PORT")
	if v == "" {
		return fallback
	}
	port, err := strconv.Atoi(v)
	if err != nil || port <= 0 || port > 65535 {
		slog.Warn("ignoring invalid TOOLBRIDGE_CALLBACK_PORT", "value", v)
		return fallback
	}
	return port
}

// parseCommaSeparatedList parses a comma-separated string into a slice,
// trimming whitespace from each element and filtering out empty strings.
// Returns nil if the input is empty or contains only whitespace/commas.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
