package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/toolbridge/internal/authcore"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage provider credentials",
		Long: `Manage stored credentials for a provider without starting a server.

Login opens a browser to the provider's consent page and waits for the
redirect on a local callback port. Credentials are stored under
$XDG_CACHE_HOME/toolbridge/ (override with TOOLBRIDGE_CREDENTIALS_DIR).`,
	}

	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthLogoutCmd())
	cmd.AddCommand(newAuthStatusCmd())

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Run the interactive login flow for a provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			stack, err := buildProviderStack(provider, logger, nil)
			if err != nil {
				return err
			}

			fmt.Printf("Opening browser for %s login...\n", provider)
			creds, err := stack.flow.Login(ctx)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			fmt.Printf("Logged in to %s.\n", provider)
			printCredentialSummary(creds)
			fmt.Printf("Credentials stored at %s\n", stack.store.Path())
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider to log in to: google, slack or console (required)")
	_ = cmd.MarkFlagRequired("provider")

	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials for a provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := authcore.DefaultCredentialPath(provider)
			if err != nil {
				return fmt.Errorf("resolving credential path: %w", err)
			}
			store := authcore.NewCredentialStore(path, nil)
			if err := store.Clear(); err != nil {
				return fmt.Errorf("removing credentials: %w", err)
			}
			fmt.Printf("Logged out of %s. Stored credentials removed.\n", provider)
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider to log out of: google, slack or console (required)")
	_ = cmd.MarkFlagRequired("provider")

	return cmd
}

func newAuthStatusCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored credential state for a provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := authcore.DefaultCredentialPath(provider)
			if err != nil {
				return fmt.Errorf("resolving credential path: %w", err)
			}
			store := authcore.NewCredentialStore(path, nil)

			creds := store.Load()
			if creds == nil {
				fmt.Printf("%s: not authenticated. Run 'toolbridge auth login --provider %s'.\n", provider, provider)
				return nil
			}

			if creds.Expired(time.Now()) {
				fmt.Printf("%s: credentials expired", provider)
				if creds.CanRefresh() {
					fmt.Print(" (will refresh on next use)")
				}
				fmt.Println()
			} else {
				fmt.Printf("%s: authenticated\n", provider)
			}
			printCredentialSummary(creds)
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider to inspect: google, slack or console (required)")
	_ = cmd.MarkFlagRequired("provider")

	return cmd
}

func printCredentialSummary(creds *authcore.Credentials) {
	if creds == nil {
		return
	}
	if creds.Identity != nil {
		if creds.Identity.Email != "" {
			fmt.Printf("  Account: %s\n", creds.Identity.Email)
		}
		if creds.Identity.DisplayName != "" {
			fmt.Printf("  Name: %s\n", creds.Identity.DisplayName)
		}
	}
	if !creds.ExpiresAt.IsZero() {
		fmt.Printf("  Expires: %s\n", creds.ExpiresAt.Format(time.RFC3339))
	}
	if creds.CanRefresh() {
		fmt.Println("  Refresh: supported")
	}
}
