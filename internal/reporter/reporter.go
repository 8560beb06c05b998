package reporter

import (
	"context"
	"fmt"
	"time"

	"rfp-digest-go/internal/models"
	"rfp-digest-go/internal/repository"
)

// Health score deductions and state thresholds.
const (
	deductRecentFailures  = 20
	deductFailedSchedules = 15
	deductOverdue         = 10

	healthyFloor  = 80
	degradedFloor = 60

	// More failed attempts than this inside 24h costs the failure deduction.
	recentFailureTolerance = 5
)

// AttemptSummary is the per-window attempt breakdown used in status and
// daily reports.
type AttemptSummary struct {
	Total   int64 `json:"total"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Skipped int64 `json:"skipped"`
}

// SystemStatus is the operator-facing snapshot served by the status API.
type SystemStatus struct {
	Timestamp      time.Time                       `json:"timestamp"`
	TotalFaculty   int64                           `json:"total_faculty"`
	ActiveFaculty  int64                           `json:"active_faculty"`
	DueToday       int64                           `json:"due_today"`
	ScheduleCounts map[models.ScheduleStatus]int64 `json:"schedule_counts"`
	AttemptsToday  AttemptSummary                  `json:"attempts_today"`
	RecentRuns     []models.DispatchRun            `json:"recent_runs"`
}

// FailureDetail is one failed attempt in a daily report.
type FailureDetail struct {
	FacultyEmail string    `json:"faculty_email"`
	SentDate     time.Time `json:"sent_date"`
	Error        string    `json:"error"`
}

// DailyReport summarizes one calendar day of digest activity.
type DailyReport struct {
	Date                 string          `json:"date"`
	Attempts             AttemptSummary  `json:"attempts"`
	TokensUsed           int64           `json:"tokens_used"`
	AvgProcessingSeconds float64         `json:"avg_processing_seconds"`
	Failures             []FailureDetail `json:"failures"`
	NewFaculty           int64           `json:"new_faculty"`
	GeneratedAt          time.Time       `json:"generated_at"`
}

// HealthReport scores overall system health from the schedule table and
// the attempt ledger.
type HealthReport struct {
	Score            int       `json:"score"`
	State            string    `json:"state"`
	RecentFailures   int64     `json:"recent_failures"`
	FailedSchedules  int64     `json:"failed_schedules"`
	OverdueSchedules int64     `json:"overdue_schedules"`
	Deductions       []string  `json:"deductions,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Reporter builds status, daily, and health reports from the repository.
type Reporter struct {
	repo *repository.Repository
	now  func() time.Time
}

func New(repo *repository.Repository) *Reporter {
	return &Reporter{repo: repo, now: time.Now}
}

// WithClock overrides the time source. Returns the reporter for chaining.
func (r *Reporter) WithClock(now func() time.Time) *Reporter {
	r.now = now
	return r
}

// SystemStatus assembles the current snapshot: roster sizes, the due set,
// schedule states, today's attempts, and the latest dispatch runs.
func (r *Reporter) SystemStatus(ctx context.Context) (*SystemStatus, error) {
	now := r.now()
	dayStart := models.DateOf(now)

	total, err := r.repo.CountProfiles(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to build status: %w", err)
	}
	active, err := r.repo.CountProfiles(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to build status: %w", err)
	}
	due, err := r.repo.DueCount(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to build status: %w", err)
	}
	counts, err := r.repo.ScheduleStatusCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build status: %w", err)
	}
	attempts, err := r.repo.AttemptStatsBetween(ctx, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to build status: %w", err)
	}
	runs, err := r.repo.ListRuns(ctx, 5)
	if err != nil {
		return nil, fmt.Errorf("failed to build status: %w", err)
	}

	return &SystemStatus{
		Timestamp:      now,
		TotalFaculty:   total,
		ActiveFaculty:  active,
		DueToday:       due,
		ScheduleCounts: counts,
		AttemptsToday:  summarize(attempts),
		RecentRuns:     runs,
	}, nil
}

// DailyReport summarizes the given calendar day.
func (r *Reporter) DailyReport(ctx context.Context, date time.Time) (*DailyReport, error) {
	from := models.DateOf(date)
	to := from.AddDate(0, 0, 1)

	stats, err := r.repo.AttemptStatsBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to build daily report: %w", err)
	}
	failed, err := r.repo.FailuresBetween(ctx, from, to, 50)
	if err != nil {
		return nil, fmt.Errorf("failed to build daily report: %w", err)
	}
	newFaculty, err := r.repo.ProfilesCreatedBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to build daily report: %w", err)
	}

	failures := make([]FailureDetail, 0, len(failed))
	for _, attempt := range failed {
		failures = append(failures, FailureDetail{
			FacultyEmail: attempt.FacultyEmail,
			SentDate:     attempt.SentDate,
			Error:        attempt.ErrorMessage,
		})
	}

	return &DailyReport{
		Date:                 from.Format(models.DateOnly),
		Attempts:             summarize(stats),
		TokensUsed:           stats.TokensUsed,
		AvgProcessingSeconds: stats.AvgProcessingSeconds,
		Failures:             failures,
		NewFaculty:           newFaculty,
		GeneratedAt:          r.now(),
	}, nil
}

// Health scores the system. The score starts at 100 and loses points for
// failure pressure in the last day, schedules stuck in failed, and
// pending schedules that slipped past their due date.
func (r *Reporter) Health(ctx context.Context) (*HealthReport, error) {
	now := r.now()

	dayStats, err := r.repo.AttemptStatsBetween(ctx, now.Add(-24*time.Hour), now)
	if err != nil {
		return nil, fmt.Errorf("failed to build health report: %w", err)
	}
	counts, err := r.repo.ScheduleStatusCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build health report: %w", err)
	}
	overdue, err := r.repo.OverdueSchedules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build health report: %w", err)
	}

	report := &HealthReport{
		Score:            100,
		RecentFailures:   dayStats.Failed,
		FailedSchedules:  counts[models.ScheduleFailed],
		OverdueSchedules: int64(len(overdue)),
		Timestamp:        now,
	}

	if report.RecentFailures > recentFailureTolerance {
		report.Score -= deductRecentFailures
		report.Deductions = append(report.Deductions,
			fmt.Sprintf("%d failed attempts in the last 24h", report.RecentFailures))
	}
	if report.FailedSchedules > 0 {
		report.Score -= deductFailedSchedules
		report.Deductions = append(report.Deductions,
			fmt.Sprintf("%d schedules in failed status", report.FailedSchedules))
	}
	if report.OverdueSchedules > 0 {
		report.Score -= deductOverdue
		report.Deductions = append(report.Deductions,
			fmt.Sprintf("%d schedules overdue by more than a day", report.OverdueSchedules))
	}

	switch {
	case report.Score >= healthyFloor:
		report.State = "healthy"
	case report.Score >= degradedFloor:
		report.State = "degraded"
	default:
		report.State = "critical"
	}
	return report, nil
}

func summarize(stats *repository.AttemptStats) AttemptSummary {
	return AttemptSummary{
		Total:   stats.Total,
		Sent:    stats.Success,
		Failed:  stats.Failed,
		Skipped: stats.Skipped,
	}
}
