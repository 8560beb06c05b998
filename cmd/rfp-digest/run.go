package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rfp-digest-go/internal/app"
	"rfp-digest-go/internal/models"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run one full dispatch cycle now",
	Long: `Runs the automation cycle once: reclaim stale claims, sync the roster
(unless --no-sync), select the due faculty, dispatch their digests in
paced batches, and print the run summary.`,
	RunE: runCycle,
}

var (
	runNoSync bool
	runLimit  int
)

func init() {
	runCommand.Flags().BoolVar(&runNoSync, "no-sync", false, "Skip the roster sync before dispatching")
	runCommand.Flags().IntVar(&runLimit, "limit", 0, "Cap the number of due faculty processed (0 = no limit)")
	rootCmd.AddCommand(runCommand)
}

func runCycle(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runNoSync {
		cfg.Scheduler.SyncOnRun = false
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, app.Options{NeedCollaborators: true})
	if err != nil {
		return err
	}
	defer a.Close()

	run, err := a.Scheduler.RunOnce(ctx, models.TriggerCLI, runLimit)
	if err != nil {
		return fmt.Errorf("dispatch cycle failed: %w", err)
	}

	fmt.Printf("Dispatch cycle complete\n")
	fmt.Printf("  due:       %d\n", run.Due)
	fmt.Printf("  sent:      %d\n", run.Sent)
	fmt.Printf("  failed:    %d\n", run.Failed)
	fmt.Printf("  skipped:   %d\n", run.Skipped)
	fmt.Printf("  reclaimed: %d\n", run.Reclaimed)
	return nil
}
