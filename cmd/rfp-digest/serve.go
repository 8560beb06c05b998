package main

import (
	"github.com/spf13/cobra"

	"rfp-digest-go/internal/app"
)

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon: cron scheduler plus admin HTTP server",
	Long: `Starts the cron-driven dispatch cycle and the admin/health/metrics HTTP
surface, and runs until interrupted. In-flight dispatch work is drained
on shutdown.`,
	RunE: serve,
}

func init() {
	rootCmd.AddCommand(serveCommand)
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := app.New(cmd.Context(), cfg, app.Options{
		NeedCollaborators: true,
		WithMetrics:       true,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Serve()
}
