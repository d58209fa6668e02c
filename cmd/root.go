package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/toolbridge/internal/authcore"
)

// rootCmd represents the base command for the toolbridge application
var rootCmd = &cobra.Command{
	Use:   "toolbridge",
	Short: "MCP adapter servers for Google Workspace, Slack and the internal console",
	Long: `toolbridge exposes upstream service APIs as Model Context Protocol (MCP)
tools. Each serve process handles exactly one provider and owns that
provider's credential lifecycle: interactive login through a local
callback listener, token persistence, and transparent refresh.

Providers:
  google   Calendar, Gmail and Drive (OAuth authorization-code grant)
  slack    Workspace search and messaging (OAuth v2 user tokens)
  console  Internal console backend (session-cookie login)`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if credentialsDir != "" {
			os.Setenv(authcore.EnvCredentialsDir, credentialsDir)
		}
	},
}

// credentialsDir backs the --credentials-dir flag. It routes through the
// TOOLBRIDGE_CREDENTIALS_DIR env var so the store sees a single override path.
var credentialsDir string

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "toolbridge version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the toolbridge version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("toolbridge version %s\n", version)
		},
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&credentialsDir, "credentials-dir", "",
		"Directory for credential files (default: $XDG_CACHE_HOME/toolbridge)")
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newVersionCmd())
}
