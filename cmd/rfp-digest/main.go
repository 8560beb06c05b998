// Package main provides the rfp-digest CLI: scheduled funding-opportunity
// digests for faculty, with manual run, per-faculty, and reporting modes.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"rfp-digest-go/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "rfp-digest",
	Short: "Faculty funding-opportunity digest engine",
	Long: `rfp-digest matches faculty members to open funding opportunities and
emails each a personalized digest at their chosen cadence. It syncs the
faculty roster from the intake spreadsheet, selects who is due, generates
and delivers digests in paced batches, and tracks every attempt.`,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads and validates configuration for a command.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}
