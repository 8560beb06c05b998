package scheduler

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"rfp-digest-go/internal/config"
	"rfp-digest-go/internal/database"
	"rfp-digest-go/internal/dispatcher"
	"rfp-digest-go/internal/models"
	"rfp-digest-go/internal/pipeline"
	"rfp-digest-go/internal/repository"
	"rfp-digest-go/internal/sheets"
)

var schedNow = time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)

// stubProcessor sends everything successfully after an optional hold.
type stubProcessor struct {
	hold  time.Duration
	calls atomic.Int32
}

func (p *stubProcessor) Process(ctx context.Context, record models.DueFaculty) pipeline.Result {
	p.calls.Add(1)
	if p.hold > 0 {
		time.Sleep(p.hold)
	}
	return pipeline.Result{Email: record.Profile.Email, Outcome: pipeline.OutcomeSent}
}

type stubSyncer struct {
	calls atomic.Int32
}

func (s *stubSyncer) Sync(ctx context.Context) (*sheets.SyncStats, error) {
	s.calls.Add(1)
	return &sheets.SyncStats{}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Scheduler: config.SchedulerConfig{CronSpec: "0 0 7 * * *", SyncOnRun: true},
		Dispatch:  config.DispatchConfig{BatchSize: 5, StaleAfter: 2 * time.Hour},
	}
}

func testScheduler(t *testing.T, proc dispatcher.Processor, syncer RosterSyncer) (*Scheduler, *gorm.DB) {
	t.Helper()

	db, err := database.Init(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "scheduler_test.db"),
	})
	require.NoError(t, err)

	clock := func() time.Time { return schedNow }
	repo := repository.New(db).WithClock(clock)
	disp := dispatcher.New(proc, nil, dispatcher.Config{BatchSize: 5})

	return New(testConfig(), repo, syncer, disp, nil).WithClock(clock), db
}

func seedDue(t *testing.T, db *gorm.DB, email string) {
	t.Helper()
	require.NoError(t, db.Create(&models.FacultyProfile{
		Email:   email,
		Cadence: models.CadenceBiweekly,
		Active:  true,
	}).Error)
	require.NoError(t, db.Create(&models.ScheduleRecord{
		FacultyEmail: email,
		NextDueDate:  models.DateOf(schedNow),
		Cadence:      models.CadenceBiweekly,
		Status:       models.SchedulePending,
	}).Error)
}

func TestSchedulerRestart(t *testing.T) {
	sched, _ := testScheduler(t, &stubProcessor{}, nil)

	if err := sched.Start(); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if !sched.IsRunning() {
		t.Fatalf("scheduler should be running after Start")
	}
	if err := sched.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if sched.IsRunning() {
		t.Fatalf("scheduler should not be running after Stop")
	}
	if err := sched.Start(); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if !sched.IsRunning() {
		t.Fatalf("scheduler should be running after second Start")
	}
	// context should be active again after the restart
	if sched.ctx == nil || sched.ctx.Err() != nil {
		t.Fatalf("scheduler context should be active after restart")
	}
	sched.Stop()
}

func TestRunOnceFullCycle(t *testing.T) {
	proc := &stubProcessor{}
	syncer := &stubSyncer{}
	sched, db := testScheduler(t, proc, syncer)
	ctx := context.Background()

	seedDue(t, db, "a@university.edu")
	seedDue(t, db, "b@university.edu")

	run, err := sched.RunOnce(ctx, models.TriggerCLI, 0)
	require.NoError(t, err)

	assert.Equal(t, models.TriggerCLI, run.Trigger)
	assert.Equal(t, 2, run.Due)
	assert.Equal(t, 2, run.Sent)
	assert.Equal(t, 0, run.Failed)
	assert.EqualValues(t, 2, proc.calls.Load())
	assert.EqualValues(t, 1, syncer.calls.Load())
	require.NotNil(t, run.FinishedAt)

	// The run row is persisted for history.
	last, err := repository.New(db).LastRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, run.ID, last.ID)
}

func TestRunOnceHonorsLimit(t *testing.T) {
	proc := &stubProcessor{}
	sched, db := testScheduler(t, proc, nil)

	seedDue(t, db, "a@university.edu")
	seedDue(t, db, "b@university.edu")
	seedDue(t, db, "c@university.edu")

	run, err := sched.RunOnce(context.Background(), models.TriggerCLI, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, run.Due)
	assert.EqualValues(t, 2, proc.calls.Load())
}

func TestRunOnceReclaimsStaleClaims(t *testing.T) {
	sched, db := testScheduler(t, &stubProcessor{}, nil)

	// Claimed three hours ago and never finished.
	require.NoError(t, db.Create(&models.FacultyProfile{
		Email:   "stale@university.edu",
		Cadence: models.CadenceWeekly,
		Active:  true,
	}).Error)
	require.NoError(t, db.Create(&models.ScheduleRecord{
		FacultyEmail: "stale@university.edu",
		NextDueDate:  models.DateOf(schedNow),
		Cadence:      models.CadenceWeekly,
		Status:       models.ScheduleProcessing,
	}).Error)
	require.NoError(t, db.Model(&models.ScheduleRecord{}).
		Where("faculty_email = ?", "stale@university.edu").
		Update("updated_at", schedNow.Add(-3*time.Hour)).Error)

	run, err := sched.RunOnce(context.Background(), models.TriggerCLI, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, run.Reclaimed)
	assert.Equal(t, 1, run.Due)
	assert.Equal(t, 1, run.Sent)
}

func TestOverlapGuardRejectsConcurrentCycles(t *testing.T) {
	proc := &stubProcessor{hold: 200 * time.Millisecond}
	sched, db := testScheduler(t, proc, nil)

	seedDue(t, db, "slow@university.edu")

	require.NoError(t, sched.TriggerDispatch(models.TriggerAPI))

	_, err := sched.RunOnce(context.Background(), models.TriggerCLI, 0)
	assert.ErrorIs(t, err, ErrCycleRunning)
	assert.True(t, sched.Busy())

	sched.Wait()
	assert.False(t, sched.Busy())
	assert.EqualValues(t, 1, proc.calls.Load())
}
