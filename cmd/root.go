// Package cmd implements the command-line interface for goharvest.
package cmd

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/goharvest/cmd/httpd"
	"github.com/jonesrussell/goharvest/cmd/status"
)

// version is stamped by the build.
var version = "1.0.0"

// rootCmd represents the root command for the goharvest CLI.
var rootCmd = &cobra.Command{
	Use:   "goharvest",
	Short: "Task orchestration for resilient data extraction",
	Long: `goharvest orchestrates unreliable, rate-limited extraction jobs:
it pools egress resources with health-based cooldowns, deduplicates and
prioritizes tasks, retries with backoff, and rotates sessions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	// Load .env early so environment variables are available to config.
	_ = godotenv.Load()

	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().String(
		"config",
		"",
		"config file (default is env + built-in defaults)",
	)
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("goharvest version %s\n", version)
		},
	})

	rootCmd.AddCommand(httpd.Command())
	rootCmd.AddCommand(status.Command())
}
