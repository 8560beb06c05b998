package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"rfp-digest-go/internal/app"
	"rfp-digest-go/internal/models"
)

var listCommand = &cobra.Command{
	Use:   "list",
	Short: "List faculty profiles and their schedules",
	RunE:  listFaculty,
}

var (
	listActiveOnly bool
	listSearch     string
)

func init() {
	listCommand.Flags().BoolVar(&listActiveOnly, "active", false, "Only active faculty")
	listCommand.Flags().StringVar(&listSearch, "search", "", "Filter by email, name, research area, or keywords")
	rootCmd.AddCommand(listCommand)
}

func listFaculty(cmd *cobra.Command, args []string) error {
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

	var profiles []models.FacultyProfile
	if listSearch != "" {
		profiles, err = a.Repo.SearchProfiles(ctx, listSearch)
	} else {
		profiles, err = a.Repo.ListProfiles(ctx, listActiveOnly)
	}
	if err != nil {
		return err
	}

	schedules, err := a.Repo.SchedulesByEmail(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tCADENCE\tACTIVE\tSTATUS\tNEXT DUE\tLAST SENT\tRETRIES")
	for _, p := range profiles {
		status, nextDue, lastSent, retries := "-", "-", "-", "-"
		if s, ok := schedules[p.Email]; ok {
			status = string(s.Status)
			nextDue = s.NextDueDate.Format(models.DateOnly)
			if s.LastSentDate != nil {
				lastSent = s.LastSentDate.Format(models.DateOnly)
			}
			retries = fmt.Sprint(s.RetryCount)
		}
		fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\t%s\t%s\n",
			p.Email, p.Cadence, p.Active, status, nextDue, lastSent, retries)
	}
	return w.Flush()
}
