package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"rfp-digest-go/internal/config"
	"rfp-digest-go/internal/dispatcher"
	"rfp-digest-go/internal/metrics"
	"rfp-digest-go/internal/models"
	"rfp-digest-go/internal/repository"
	"rfp-digest-go/internal/sheets"
)

// ErrCycleRunning is returned when a dispatch cycle is requested while
// another one is still in flight.
var ErrCycleRunning = errors.New("a dispatch cycle is already running")

// RosterSyncer pulls intake rows into the database ahead of a cycle.
type RosterSyncer interface {
	Sync(ctx context.Context) (*sheets.SyncStats, error)
}

// Scheduler runs the daily dispatch cycle on a cron spec and serves as
// the single entry point for manually triggered cycles, so at most one
// cycle runs at a time.
type Scheduler struct {
	cron    *cron.Cron
	entryID cron.EntryID
	cfg     *config.Config
	repo    *repository.Repository
	syncer  RosterSyncer
	disp    *dispatcher.Dispatcher
	metrics *metrics.Metrics

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex

	// Held for the duration of a cycle; TryLock is the overlap guard.
	cycleMu sync.Mutex

	now func() time.Time
}

// New creates a scheduler. The syncer may be nil when roster sync is
// disabled; metrics may be nil outside serve mode.
func New(cfg *config.Config, repo *repository.Repository, syncer RosterSyncer, disp *dispatcher.Dispatcher, m *metrics.Metrics) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		cfg:     cfg,
		repo:    repo,
		syncer:  syncer,
		disp:    disp,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		now:     time.Now,
	}
}

// WithClock overrides the time source used for due-set selection.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Start registers the cron entry and starts ticking.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	// A previous Stop cancelled the context; restarts need a live one.
	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}

	entryID, err := s.cron.AddFunc(s.cfg.Scheduler.CronSpec, s.tick)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.entryID = entryID
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started with cron spec %q", s.cfg.Scheduler.CronSpec)
	return nil
}

// Stop cancels in-flight work and stops the cron loop, waiting up to 30
// seconds for running jobs.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.cancel()
	s.cron.Remove(s.entryID)
	ctx := s.cron.Stop()

	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}

	s.isRunning = false
	return nil
}

// IsRunning returns whether the cron loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Busy reports whether a dispatch cycle is currently in flight.
func (s *Scheduler) Busy() bool {
	if s.cycleMu.TryLock() {
		s.cycleMu.Unlock()
		return false
	}
	return true
}

// tick is the cron entry point. A tick that lands while the previous
// cycle is still running is skipped, not queued.
func (s *Scheduler) tick() {
	s.wg.Add(1)
	defer s.wg.Done()

	if !s.cycleMu.TryLock() {
		logrus.Warn("Previous dispatch cycle still running, skipping this tick")
		return
	}
	defer s.cycleMu.Unlock()

	if _, err := s.runCycle(s.ctx, models.TriggerCron, 0); err != nil {
		logrus.Errorf("Dispatch cycle failed: %v", err)
	}
}

// RunOnce executes one dispatch cycle synchronously, for manual runs. A
// limit above zero caps the due set.
func (s *Scheduler) RunOnce(ctx context.Context, trigger models.RunTrigger, limit int) (*models.DispatchRun, error) {
	if !s.cycleMu.TryLock() {
		return nil, ErrCycleRunning
	}
	defer s.cycleMu.Unlock()

	return s.runCycle(ctx, trigger, limit)
}

// TriggerDispatch starts a full cycle in the background unless one is
// already running.
func (s *Scheduler) TriggerDispatch(trigger models.RunTrigger) error {
	if !s.cycleMu.TryLock() {
		return ErrCycleRunning
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.cycleMu.Unlock()

		if _, err := s.runCycle(s.ctx, trigger, 0); err != nil {
			logrus.Errorf("Dispatch cycle failed: %v", err)
		}
	}()
	return nil
}

// runCycle is the full automation pass: reclaim stale claims, sync the
// roster, select the due set, dispatch it, and persist the run summary.
// Callers must hold cycleMu.
func (s *Scheduler) runCycle(ctx context.Context, trigger models.RunTrigger, limit int) (*models.DispatchRun, error) {
	start := time.Now()
	logrus.Infof("Starting dispatch cycle (trigger=%s)", trigger)

	if s.metrics != nil {
		s.metrics.DispatchRuns.Inc()
	}

	run, err := s.repo.CreateRun(ctx, trigger)
	if err != nil {
		return nil, err
	}

	// Schedules a crashed worker left claimed come back first so this
	// cycle can pick them up.
	reclaimed, err := s.repo.ReclaimStale(ctx, s.cfg.Dispatch.StaleAfter)
	if err != nil {
		logrus.Errorf("Failed to reclaim stale schedules: %v", err)
	} else if reclaimed > 0 {
		logrus.Warnf("Reclaimed %d schedules stuck in processing", reclaimed)
		if s.metrics != nil {
			s.metrics.StaleReclaimed.Add(float64(reclaimed))
		}
	}
	run.Reclaimed = int(reclaimed)

	// Sync trouble must not block digests for the roster we already have.
	if s.syncer != nil && s.cfg.Scheduler.SyncOnRun {
		if _, err := s.syncer.Sync(ctx); err != nil {
			logrus.Errorf("Roster sync failed: %v", err)
		}
	}

	due, err := s.repo.SelectDue(ctx, s.now(), limit)
	if err != nil {
		run.ErrorMessage = err.Error()
		s.finishRun(ctx, run)
		return run, err
	}
	run.Due = len(due)

	if len(due) == 0 {
		logrus.Info("No faculty due for digests")
		s.finishRun(ctx, run)
		s.updateGauges(ctx)
		return run, nil
	}

	logrus.Infof("Dispatching digests to %d due faculty", len(due))
	summary := s.disp.Dispatch(ctx, due)

	run.Sent = summary.Sent
	run.Failed = summary.Failed
	run.Skipped = summary.Skipped
	s.finishRun(ctx, run)
	s.updateGauges(ctx)

	logrus.Infof("Dispatch cycle completed in %v: %d sent, %d failed, %d skipped",
		time.Since(start).Round(time.Millisecond), summary.Sent, summary.Failed, summary.Skipped)
	return run, nil
}

func (s *Scheduler) finishRun(ctx context.Context, run *models.DispatchRun) {
	if err := s.repo.FinishRun(ctx, run); err != nil {
		logrus.Errorf("Failed to persist dispatch run: %v", err)
	}
}

func (s *Scheduler) updateGauges(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	if active, err := s.repo.CountProfiles(ctx, true); err == nil {
		s.metrics.FacultyActive.Set(float64(active))
	}
	if due, err := s.repo.DueCount(ctx, s.now()); err == nil {
		s.metrics.FacultyDue.Set(float64(due))
	}
}

// GetNextRun returns the time of the next scheduled run.
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// GetLastRun returns the time of the last cron-triggered run.
func (s *Scheduler) GetLastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Prev
}

// Wait blocks until all in-flight cycles have finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
