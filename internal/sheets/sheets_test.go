package sheets

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfp-digest-go/internal/config"
	"rfp-digest-go/internal/database"
	"rfp-digest-go/internal/models"
	"rfp-digest-go/internal/repository"
)

func testSyncer(t *testing.T) *Syncer {
	t.Helper()

	db, err := database.Init(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "sync_test.db"),
	})
	require.NoError(t, err)

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	return &Syncer{
		repo: repository.New(db).WithClock(func() time.Time { return now }),
		cfg:  &config.SheetsConfig{},
		now:  func() time.Time { return now },
	}
}

func TestIndexHeader(t *testing.T) {
	idx := indexHeader([]string{" Email Address ", "", "Keywords", "Keywords"})

	assert.Equal(t, 0, idx["Email Address"])
	assert.Equal(t, 2, idx["Keywords"])
	assert.NotContains(t, idx, "")
}

func TestPadRow(t *testing.T) {
	assert.Equal(t, []string{"a", "", ""}, padRow([]string{"a"}, 3))
	assert.Equal(t, []string{"a", "b"}, padRow([]string{"a", "b", "c"}, 2))
}

func TestProfileFromRowAppliesDefaults(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	s := &Syncer{now: func() time.Time { return now }}

	header := []string{colTimestamp, colEmail, colEligibility, colFundingTypes, colRFPSize, colTimeline, colFundingSources, colCadence}
	idx := indexHeader(header)
	row := padRow([]string{"", "PI@Lab.EDU"}, len(header))

	p := s.profileFromRow(idx, row)

	assert.Equal(t, "pi@lab.edu", p.Email)
	assert.Equal(t, "No constraints specified", p.EligibilityConstraints)
	assert.Equal(t, "Not specified", p.EarlyCareer)
	assert.Equal(t, "General research grants", p.FundingTypes)
	assert.Equal(t, "Any size", p.RFPSize)
	assert.Equal(t, "Flexible timeline", p.SubmissionTimeline)
	assert.Equal(t, "Federal agencies (NSF, NIH, etc.)", p.PreferredFundingSources)
	assert.Equal(t, models.CadenceBiweekly, p.Cadence)
	assert.True(t, p.Active)
	require.NotNil(t, p.LastFormSubmission)
	assert.Equal(t, now, *p.LastFormSubmission)
}

func TestParseTimestampLayouts(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	s := &Syncer{now: func() time.Time { return now }}

	got := s.parseTimestamp("3/1/2025 10:30:00")
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC), *got)

	got = s.parseTimestamp("2025-02-14")
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC), *got)

	got = s.parseTimestamp("yesterday-ish")
	require.NotNil(t, got)
	assert.Equal(t, now, *got)
}

func TestApplyRowsUpsertsRoster(t *testing.T) {
	s := testSyncer(t)
	ctx := context.Background()

	values := [][]interface{}{
		{"Timestamp", "Email Address", "Name", "Research Area", "Email Frequency"},
		{"3/1/2025 10:30:00", "Jane.Doe@university.edu", "Jane Doe", "Robotics", "Weekly"},
		{"3/2/2025 11:00:00", "not-an-email", "Bad Row", "None", "weekly"},
		{"", "kim@university.edu"},
	}

	stats, err := s.applyRows(ctx, values)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 2, stats.New)
	assert.Equal(t, 0, stats.Updated)
	assert.Equal(t, 1, stats.Errors)

	profile, err := s.repo.GetProfile(ctx, "jane.doe@university.edu")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", profile.Name)
	assert.Equal(t, models.CadenceWeekly, profile.Cadence)
	assert.True(t, profile.Active)

	sched, err := s.repo.GetSchedule(ctx, "jane.doe@university.edu")
	require.NoError(t, err)
	assert.Equal(t, models.SchedulePending, sched.Status)
	assert.Equal(t, "2025-03-11", sched.NextDueDate.Format(models.DateOnly))

	// A second pass updates in place instead of creating duplicates.
	stats, err = s.applyRows(ctx, values)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 0, stats.New)
	assert.Equal(t, 2, stats.Updated)
	assert.Equal(t, 1, stats.Errors)
}

func TestApplyRowsRejectsMissingEmailColumn(t *testing.T) {
	s := testSyncer(t)

	_, err := s.applyRows(context.Background(), [][]interface{}{
		{"Timestamp", "Name"},
		{"3/1/2025", "Jane"},
	})
	require.Error(t, err)
}

func TestApplyRowsEmptySheet(t *testing.T) {
	s := testSyncer(t)

	stats, err := s.applyRows(context.Background(), [][]interface{}{
		{"Timestamp", "Email Address"},
	})
	require.NoError(t, err)
	assert.Equal(t, &SyncStats{}, stats)
}
