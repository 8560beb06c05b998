package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rfp-digest-go/internal/app"
)

var syncCommand = &cobra.Command{
	Use:   "sync",
	Short: "Sync the faculty roster from the intake spreadsheet",
	RunE:  syncRoster,
}

func init() {
	rootCmd.AddCommand(syncCommand)
}

func syncRoster(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Sheets.Enabled {
		return fmt.Errorf("sheets sync is disabled; set SHEETS_ENABLED=true and SHEETS_SPREADSHEET_ID")
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.Syncer.Sync(ctx)
	if err != nil {
		return fmt.Errorf("roster sync failed: %w", err)
	}

	fmt.Printf("Roster sync complete\n")
	fmt.Printf("  processed: %d\n", stats.Processed)
	fmt.Printf("  new:       %d\n", stats.New)
	fmt.Printf("  updated:   %d\n", stats.Updated)
	fmt.Printf("  errors:    %d\n", stats.Errors)
	return nil
}
