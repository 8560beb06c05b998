package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"rfp-digest-go/internal/app"
	"rfp-digest-go/internal/models"
)

var statusCommand = &cobra.Command{
	Use:   "status",
	Short: "Print the current system status",
	RunE:  printStatus,
}

var reportCommand = &cobra.Command{
	Use:   "report",
	Short: "Print the daily digest report",
	RunE:  printReport,
}

var reportDate string

func init() {
	reportCommand.Flags().StringVar(&reportDate, "date", "", "Report date as YYYY-MM-DD (default today)")
	rootCmd.AddCommand(statusCommand)
	rootCmd.AddCommand(reportCommand)
}

func printStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	status, err := a.Reporter.SystemStatus(ctx)
	if err != nil {
		return err
	}
	health, err := a.Reporter.Health(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("System status at %s\n", status.Timestamp.Format(time.RFC3339))
	fmt.Printf("  faculty:   %d total, %d active\n", status.TotalFaculty, status.ActiveFaculty)
	fmt.Printf("  due today: %d\n", status.DueToday)
	fmt.Printf("  schedules:")
	for _, s := range []models.ScheduleStatus{models.SchedulePending, models.ScheduleProcessing, models.ScheduleSent, models.ScheduleFailed, models.SchedulePaused} {
		if n := status.ScheduleCounts[s]; n > 0 {
			fmt.Printf(" %s=%d", s, n)
		}
	}
	fmt.Println()
	fmt.Printf("  today:     %d sent, %d failed, %d skipped\n",
		status.AttemptsToday.Sent, status.AttemptsToday.Failed, status.AttemptsToday.Skipped)
	fmt.Printf("  health:    %d (%s)\n", health.Score, health.State)
	for _, d := range health.Deductions {
		fmt.Printf("    - %s\n", d)
	}

	if len(status.RecentRuns) > 0 {
		fmt.Println("  recent runs:")
		for _, run := range status.RecentRuns {
			fmt.Printf("    %s %-5s due=%d sent=%d failed=%d skipped=%d\n",
				run.StartedAt.Format("2006-01-02 15:04"), run.Trigger,
				run.Due, run.Sent, run.Failed, run.Skipped)
		}
	}
	return nil
}

func printReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	date := time.Now()
	if reportDate != "" {
		var err error
		date, err = time.Parse(models.DateOnly, reportDate)
		if err != nil {
			return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", reportDate)
		}
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Reporter.DailyReport(ctx, date)
	if err != nil {
		return err
	}

	fmt.Printf("Daily report for %s\n", report.Date)
	fmt.Printf("  attempts:  %d total, %d sent, %d failed, %d skipped\n",
		report.Attempts.Total, report.Attempts.Sent, report.Attempts.Failed, report.Attempts.Skipped)
	fmt.Printf("  tokens:    %d\n", report.TokensUsed)
	fmt.Printf("  avg time:  %.1fs\n", report.AvgProcessingSeconds)
	fmt.Printf("  new faculty: %d\n", report.NewFaculty)
	if len(report.Failures) > 0 {
		fmt.Println("  failures:")
		for _, f := range report.Failures {
			fmt.Printf("    %s: %s\n", f.FacultyEmail, f.Error)
		}
	}
	return nil
}
