package reporter

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"rfp-digest-go/internal/config"
	"rfp-digest-go/internal/database"
	"rfp-digest-go/internal/models"
	"rfp-digest-go/internal/repository"
)

var reporterNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func testReporter(t *testing.T) (*Reporter, *gorm.DB) {
	t.Helper()

	db, err := database.Init(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "reporter_test.db"),
	})
	require.NoError(t, err)

	clock := func() time.Time { return reporterNow }
	repo := repository.New(db).WithClock(clock)
	return New(repo).WithClock(clock), db
}

func seedProfile(t *testing.T, db *gorm.DB, email string, active bool) {
	t.Helper()
	require.NoError(t, db.Create(&models.FacultyProfile{
		Email:     email,
		Cadence:   models.CadenceBiweekly,
		Active:    active,
		CreatedAt: reporterNow,
	}).Error)
}

func TestHealthCleanSystem(t *testing.T) {
	r, _ := testReporter(t)

	health, err := r.Health(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 100, health.Score)
	assert.Equal(t, "healthy", health.State)
	assert.Empty(t, health.Deductions)
}

func TestHealthDegradedOnScheduleTrouble(t *testing.T) {
	r, db := testReporter(t)
	today := models.DateOf(reporterNow)

	require.NoError(t, db.Create(&models.ScheduleRecord{
		FacultyEmail: "stuck@university.edu",
		NextDueDate:  today,
		Cadence:      models.CadenceBiweekly,
		Status:       models.ScheduleFailed,
		RetryCount:   2,
	}).Error)
	require.NoError(t, db.Create(&models.ScheduleRecord{
		FacultyEmail: "missed@university.edu",
		NextDueDate:  today.AddDate(0, 0, -3),
		Cadence:      models.CadenceWeekly,
		Status:       models.SchedulePending,
	}).Error)

	health, err := r.Health(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 75, health.Score)
	assert.Equal(t, "degraded", health.State)
	assert.Equal(t, int64(1), health.FailedSchedules)
	assert.Equal(t, int64(1), health.OverdueSchedules)
	assert.Len(t, health.Deductions, 2)
}

func TestHealthCriticalUnderFailurePressure(t *testing.T) {
	r, db := testReporter(t)
	today := models.DateOf(reporterNow)

	for i := 0; i < 6; i++ {
		require.NoError(t, db.Create(&models.EmailAttempt{
			FacultyEmail: "pi@university.edu",
			SentDate:     reporterNow.Add(-time.Hour),
			Status:       models.AttemptFailed,
			ErrorMessage: "generation failed",
		}).Error)
	}
	require.NoError(t, db.Create(&models.ScheduleRecord{
		FacultyEmail: "stuck@university.edu",
		NextDueDate:  today,
		Cadence:      models.CadenceBiweekly,
		Status:       models.ScheduleFailed,
		RetryCount:   4,
	}).Error)
	require.NoError(t, db.Create(&models.ScheduleRecord{
		FacultyEmail: "missed@university.edu",
		NextDueDate:  today.AddDate(0, 0, -5),
		Cadence:      models.CadenceMonthly,
		Status:       models.SchedulePending,
	}).Error)

	health, err := r.Health(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 55, health.Score)
	assert.Equal(t, "critical", health.State)
	assert.Equal(t, int64(6), health.RecentFailures)
	assert.Len(t, health.Deductions, 3)
}

func TestDailyReportAggregatesDay(t *testing.T) {
	r, db := testReporter(t)
	ctx := context.Background()

	seedProfile(t, db, "new@university.edu", true)

	attempts := []models.EmailAttempt{
		{FacultyEmail: "a@u.edu", SentDate: reporterNow.Add(-4 * time.Hour), Status: models.AttemptSuccess, TokensUsed: 500, ProcessingSeconds: 2.0},
		{FacultyEmail: "b@u.edu", SentDate: reporterNow.Add(-3 * time.Hour), Status: models.AttemptSuccess, TokensUsed: 300, ProcessingSeconds: 2.5},
		{FacultyEmail: "c@u.edu", SentDate: reporterNow.Add(-2 * time.Hour), Status: models.AttemptFailed, TokensUsed: 100, ErrorMessage: "delivery failed"},
		{FacultyEmail: "d@u.edu", SentDate: reporterNow.Add(-1 * time.Hour), Status: models.AttemptSkippedDuplicate},
		// Previous day, must not count.
		{FacultyEmail: "e@u.edu", SentDate: reporterNow.Add(-30 * time.Hour), Status: models.AttemptSuccess, TokensUsed: 900},
	}
	for i := range attempts {
		require.NoError(t, db.Create(&attempts[i]).Error)
	}

	report, err := r.DailyReport(ctx, reporterNow)
	require.NoError(t, err)

	assert.Equal(t, "2025-03-10", report.Date)
	assert.Equal(t, AttemptSummary{Total: 4, Sent: 2, Failed: 1, Skipped: 1}, report.Attempts)
	assert.Equal(t, int64(800), report.TokensUsed)
	assert.InDelta(t, 2.25, report.AvgProcessingSeconds, 0.001)
	assert.Equal(t, int64(1), report.NewFaculty)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "c@u.edu", report.Failures[0].FacultyEmail)
	assert.Equal(t, "delivery failed", report.Failures[0].Error)
}

func TestSystemStatusSnapshot(t *testing.T) {
	r, db := testReporter(t)
	ctx := context.Background()
	today := models.DateOf(reporterNow)

	seedProfile(t, db, "due@university.edu", true)
	seedProfile(t, db, "paused@university.edu", false)

	require.NoError(t, db.Create(&models.ScheduleRecord{
		FacultyEmail: "due@university.edu",
		NextDueDate:  today,
		Cadence:      models.CadenceWeekly,
		Status:       models.SchedulePending,
	}).Error)
	require.NoError(t, db.Create(&models.ScheduleRecord{
		FacultyEmail: "paused@university.edu",
		NextDueDate:  today,
		Cadence:      models.CadenceWeekly,
		Status:       models.SchedulePaused,
	}).Error)
	require.NoError(t, db.Create(&models.EmailAttempt{
		FacultyEmail: "due@university.edu",
		SentDate:     reporterNow.Add(-time.Hour),
		Status:       models.AttemptSuccess,
	}).Error)
	require.NoError(t, db.Create(&models.DispatchRun{
		Trigger:   models.TriggerCLI,
		StartedAt: reporterNow.Add(-time.Hour),
		Due:       1,
		Sent:      1,
	}).Error)

	status, err := r.SystemStatus(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), status.TotalFaculty)
	assert.Equal(t, int64(1), status.ActiveFaculty)
	assert.Equal(t, int64(1), status.DueToday)
	assert.Equal(t, int64(1), status.ScheduleCounts[models.SchedulePending])
	assert.Equal(t, int64(1), status.ScheduleCounts[models.SchedulePaused])
	assert.Equal(t, AttemptSummary{Total: 1, Sent: 1}, status.AttemptsToday)
	require.Len(t, status.RecentRuns, 1)
	assert.Equal(t, models.TriggerCLI, status.RecentRuns[0].Trigger)
}
