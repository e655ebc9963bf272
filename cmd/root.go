// Package cmd implements the kumbara CLI commands.
package cmd

import (
	"os"

	"github.com/arnold/kumbara-api/internal/config"
	"github.com/arnold/kumbara-api/internal/logger"
	"github.com/spf13/cobra"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "kumbara",
	Short: "Family savings API",
	Long:  "Kumbara keeps family accounts and splits every deposit across savings goals by priority.",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		cfg = config.Load()
		logger.Init(cfg.IsDevelopment(), cfg.SentryDSN)
	},
	SilenceUsage: true,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
