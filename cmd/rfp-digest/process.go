package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"rfp-digest-go/internal/app"
	"rfp-digest-go/internal/models"
	"rfp-digest-go/internal/pipeline"
	"rfp-digest-go/internal/repository"
)

var processCommand = &cobra.Command{
	Use:   "process <email>",
	Short: "Run the digest pipeline for one faculty member now",
	Long: `Processes a single faculty member immediately, bypassing the due-date
check. The full pipeline still applies: duplicate suppression, the
attempt ledger, and the schedule advance behave exactly as in a
scheduled run.`,
	Args: cobra.ExactArgs(1),
	RunE: processFaculty,
}

func init() {
	rootCmd.AddCommand(processCommand)
}

func processFaculty(cmd *cobra.Command, args []string) error {
	email := strings.ToLower(strings.TrimSpace(args[0]))

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, app.Options{NeedCollaborators: true})
	if err != nil {
		return err
	}
	defer a.Close()

	profile, err := a.Repo.GetProfile(ctx, email)
	if errors.Is(err, repository.ErrProfileNotFound) {
		return fmt.Errorf("no faculty profile for %s", email)
	}
	if err != nil {
		return err
	}
	if !profile.Active {
		return fmt.Errorf("faculty %s is deactivated; reactivate before processing", email)
	}

	schedule, err := a.Repo.GetSchedule(ctx, email)
	if errors.Is(err, repository.ErrScheduleNotFound) {
		// A profile created outside the sync path may not have one yet.
		if err := a.Repo.InitializeSchedule(ctx, email, profile.Cadence); err != nil {
			return err
		}
		if schedule, err = a.Repo.GetSchedule(ctx, email); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	result := a.Pipeline.Process(ctx, models.DueFaculty{Profile: *profile, Schedule: *schedule})

	fmt.Printf("Processed %s: %s\n", email, result.Outcome)
	if result.MessageID != "" {
		fmt.Printf("  message id: %s\n", result.MessageID)
	}
	if result.TokensUsed > 0 {
		fmt.Printf("  tokens:     %d\n", result.TokensUsed)
	}
	fmt.Printf("  elapsed:    %.1fs\n", result.Elapsed.Seconds())

	if result.Outcome == pipeline.OutcomeFailed {
		if result.Err != nil {
			return fmt.Errorf("digest failed: %w", result.Err)
		}
		return fmt.Errorf("digest failed")
	}
	return nil
}
