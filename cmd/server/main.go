package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yegors/ogn-tracker/internal/config"
	"github.com/yegors/ogn-tracker/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "ogn-tracker",
		Short: "OGN glider tracking and flight event detection",
		Long: `Tracks gliders, tow planes and other light aircraft from the Open Glider
Network APRS feed, detects takeoffs and landings (including aerotow pairing)
and streams live positions to websocket subscribers.

Running without a subcommand starts the server.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (optional - will search in configs/ and root directory)")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the tracking server",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "ddb-sync",
			Short: "Download the OGN device database into local storage",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runDDBSync(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "ogn-tracker %s\n", Version)
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads and validates the configuration and creates the logger
func setup(configPath string) (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadWithFallback(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("error creating logger: %w", err)
	}
	return cfg, log, nil
}
