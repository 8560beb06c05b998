package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"rfp-digest-go/internal/config"
	"rfp-digest-go/internal/database"
	"rfp-digest-go/internal/dedup"
	"rfp-digest-go/internal/dispatcher"
	"rfp-digest-go/internal/generator"
	"rfp-digest-go/internal/handlers"
	"rfp-digest-go/internal/mailer"
	"rfp-digest-go/internal/metrics"
	"rfp-digest-go/internal/pipeline"
	"rfp-digest-go/internal/reporter"
	"rfp-digest-go/internal/repository"
	"rfp-digest-go/internal/scheduler"
	"rfp-digest-go/internal/server"
	"rfp-digest-go/internal/sheets"
)

// App wires the digest engine together: database, repository, the
// generation and delivery collaborators, the pipeline and dispatcher, and
// the cron scheduler. The CLI commands and serve mode both build one.
type App struct {
	Cfg        *config.Config
	DB         *gorm.DB
	Repo       *repository.Repository
	Metrics    *metrics.Metrics
	Generator  *generator.Generator
	Mailer     *mailer.Mailer
	Syncer     *sheets.Syncer
	Pipeline   *pipeline.Pipeline
	Dispatcher *dispatcher.Dispatcher
	Reporter   *reporter.Reporter
	Scheduler  *scheduler.Scheduler
}

// Options trims the wiring for commands that do not need every
// collaborator. Read-only commands (status, report, list) skip the
// Gemini and Gmail clients entirely.
type Options struct {
	// NeedCollaborators builds the generator, mailer, pipeline,
	// dispatcher, and scheduler.
	NeedCollaborators bool
	// WithMetrics registers prometheus collectors. Serve mode only:
	// promauto registration is global and once-per-process.
	WithMetrics bool
}

// New builds the application from config. Callers own Close.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	db, err := database.Init(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a := &App{
		Cfg:  cfg,
		DB:   db,
		Repo: repository.New(db),
	}
	a.Reporter = reporter.New(a.Repo)

	if opts.WithMetrics {
		a.Metrics = metrics.NewMetrics()
	}

	if cfg.Sheets.Enabled {
		a.Syncer, err = sheets.New(&cfg.Gmail, &cfg.Sheets, a.Repo)
		if err != nil {
			return nil, fmt.Errorf("failed to create roster syncer: %w", err)
		}
	}

	if opts.NeedCollaborators {
		a.Generator, err = generator.New(ctx, &cfg.Generator, cfg.Institution)
		if err != nil {
			return nil, fmt.Errorf("failed to create digest generator: %w", err)
		}

		a.Mailer, err = mailer.New(&cfg.Gmail, cfg.Artifacts.Dir, cfg.Institution)
		if err != nil {
			return nil, fmt.Errorf("failed to create mailer: %w", err)
		}

		suppressor := dedup.NewSuppressor(a.Repo, cfg.Dispatch.DedupWindow)
		a.Pipeline = pipeline.New(a.Repo, suppressor, a.Generator, a.Mailer)

		a.Dispatcher = dispatcher.New(a.Pipeline, a.Metrics, dispatcher.Config{
			BatchSize:    cfg.Dispatch.BatchSize,
			StaggerDelay: cfg.Dispatch.StaggerDelay,
			BatchDelay:   cfg.Dispatch.BatchDelay,
		})

		// A nil *sheets.Syncer must stay a nil interface in the scheduler.
		var syncer scheduler.RosterSyncer
		if a.Syncer != nil {
			syncer = a.Syncer
		}
		a.Scheduler = scheduler.New(cfg, a.Repo, syncer, a.Dispatcher, a.Metrics)
	}

	return a, nil
}

// Close releases the collaborator clients.
func (a *App) Close() {
	if a.Generator != nil {
		if err := a.Generator.Close(); err != nil {
			logrus.Errorf("Failed to close generator: %v", err)
		}
	}
	if a.Mailer != nil {
		if err := a.Mailer.Close(); err != nil {
			logrus.Errorf("Failed to close mailer: %v", err)
		}
	}
}

// Serve runs daemon mode: the cron scheduler plus the admin HTTP surface,
// until SIGINT/SIGTERM. In-flight dispatch cycles are drained before the
// server shuts down so no schedule is left claimed mid-pipeline.
func (a *App) Serve() error {
	h := handlers.NewHandlers(a.DB, a.Repo, a.Pipeline, a.Reporter, a.Scheduler)
	router := server.SetupRouter(h)

	srv := &http.Server{
		Addr:         ":" + a.Cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  a.Cfg.Server.ReadTimeout,
		WriteTimeout: a.Cfg.Server.WriteTimeout,
	}

	if err := a.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", a.Cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.Scheduler.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	a.Scheduler.Wait()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return nil
}
