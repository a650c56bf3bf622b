package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is the application version (set during build).
	Version = "dev"

	// Commit is the git commit hash (set during build).
	Commit = "unknown"

	// BuildDate is the build date (set during build).
	BuildDate = "unknown"
)

var (
	flagConfig string
	flagJSON   bool
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "orchestrator",
		Short:         "Screenshot capture and baseline comparison",
		Long:          "Drives an app on web, Android, integration and hosted targets, captures screenshots and compares them against stored baselines.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("orchestrator %s (commit: %s, built: %s)\n", Version, Commit, BuildDate)
		},
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newBaselineCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newHashTokenCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newArchiveCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
