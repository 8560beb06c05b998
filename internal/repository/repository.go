package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rfp-digest-go/internal/models"
)

var (
	ErrProfileNotFound  = fmt.Errorf("faculty profile not found")
	ErrScheduleNotFound = fmt.Errorf("schedule record not found")
)

// Repository is the persistence layer for profiles, schedules, the attempt
// ledger, and dispatch runs. The clock is injectable so schedule date math
// is deterministic under test.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// WithClock overrides the time source. Returns the repository for chaining.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	r.now = now
	return r
}

// today returns the current calendar date in UTC.
func (r *Repository) today() time.Time {
	return models.DateOf(r.now())
}

// InitializeSchedule creates the schedule row for a faculty member if one
// does not exist: due tomorrow, pending, zero retries. Existing rows are
// left untouched, so calling it on every sync is safe.
func (r *Repository) InitializeSchedule(ctx context.Context, email string, cadence models.Cadence) error {
	record := models.ScheduleRecord{
		FacultyEmail: email,
		NextDueDate:  r.today().AddDate(0, 0, 1),
		Cadence:      cadence,
		Status:       models.SchedulePending,
		RetryCount:   0,
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "faculty_email"}},
			DoNothing: true,
		}).
		Create(&record)
	if result.Error != nil {
		return fmt.Errorf("failed to initialize schedule for %s: %w", email, result.Error)
	}
	return nil
}

// SelectDue returns the due set as of the given time: schedules whose due
// date has arrived, in status pending or failed, belonging to active
// profiles. Ordered most-overdue first, fewest retries first. A limit of 0
// means no limit.
func (r *Repository) SelectDue(ctx context.Context, asOf time.Time, limit int) ([]models.DueFaculty, error) {
	var schedules []models.ScheduleRecord

	query := r.db.WithContext(ctx).
		Joins("JOIN faculty_profiles ON faculty_profiles.email = email_schedules.faculty_email").
		Where("email_schedules.next_due_date <= ?", models.DateOf(asOf)).
		Where("email_schedules.status IN ?", []models.ScheduleStatus{models.SchedulePending, models.ScheduleFailed}).
		Where("faculty_profiles.active = ?", true).
		Where("faculty_profiles.deleted_at IS NULL").
		Order("email_schedules.next_due_date ASC, email_schedules.retry_count ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&schedules).Error; err != nil {
		return nil, fmt.Errorf("failed to select due schedules: %w", err)
	}
	if len(schedules) == 0 {
		return nil, nil
	}

	emails := make([]string, 0, len(schedules))
	for _, s := range schedules {
		emails = append(emails, s.FacultyEmail)
	}

	var profiles []models.FacultyProfile
	if err := r.db.WithContext(ctx).Where("email IN ?", emails).Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("failed to load due profiles: %w", err)
	}
	byEmail := make(map[string]models.FacultyProfile, len(profiles))
	for _, p := range profiles {
		byEmail[p.Email] = p
	}

	due := make([]models.DueFaculty, 0, len(schedules))
	for _, s := range schedules {
		profile, ok := byEmail[s.FacultyEmail]
		if !ok {
			continue
		}
		due = append(due, models.DueFaculty{Profile: profile, Schedule: s})
	}
	return due, nil
}

// MarkProcessing claims a schedule for the current attempt.
func (r *Repository) MarkProcessing(ctx context.Context, email string) error {
	return r.MarkScheduleStatus(ctx, email, models.ScheduleProcessing)
}

// MarkScheduleStatus writes a schedule status directly.
func (r *Repository) MarkScheduleStatus(ctx context.Context, email string, status models.ScheduleStatus) error {
	result := r.db.WithContext(ctx).
		Model(&models.ScheduleRecord{}).
		Where("faculty_email = ?", email).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to mark schedule %s for %s: %w", status, email, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// Advance applies the schedule advance rule after an attempt. On success
// the next due date moves a full cadence interval from today and retries
// reset. On failure the schedule retries tomorrow with the cadence
// untouched; failures never pause a schedule.
func (r *Repository) Advance(ctx context.Context, email string, success bool) error {
	today := r.today()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sched models.ScheduleRecord
		if err := tx.Where("faculty_email = ?", email).First(&sched).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrScheduleNotFound
			}
			return fmt.Errorf("failed to load schedule for %s: %w", email, err)
		}

		var updates map[string]interface{}
		if success {
			updates = map[string]interface{}{
				"last_sent_date": today,
				"next_due_date":  today.AddDate(0, 0, sched.Cadence.Days()),
				"status":         models.SchedulePending,
				"retry_count":    0,
			}
		} else {
			updates = map[string]interface{}{
				"next_due_date": today.AddDate(0, 0, 1),
				"status":        models.ScheduleFailed,
				"retry_count":   gorm.Expr("retry_count + 1"),
			}
		}

		if err := tx.Model(&models.ScheduleRecord{}).
			Where("faculty_email = ?", email).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to advance schedule for %s: %w", email, err)
		}
		return nil
	})
}

// ReclaimStale flips schedules stuck in processing longer than the
// threshold back to pending so the next cycle can pick them up. Returns
// how many rows were reclaimed.
func (r *Repository) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := r.now().Add(-olderThan)

	result := r.db.WithContext(ctx).
		Model(&models.ScheduleRecord{}).
		Where("status = ? AND updated_at < ?", models.ScheduleProcessing, cutoff).
		Update("status", models.SchedulePending)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reclaim stale schedules: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DueCount counts the due set without loading it, for gauges and status.
func (r *Repository) DueCount(ctx context.Context, asOf time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ScheduleRecord{}).
		Joins("JOIN faculty_profiles ON faculty_profiles.email = email_schedules.faculty_email").
		Where("email_schedules.next_due_date <= ?", models.DateOf(asOf)).
		Where("email_schedules.status IN ?", []models.ScheduleStatus{models.SchedulePending, models.ScheduleFailed}).
		Where("faculty_profiles.active = ?", true).
		Where("faculty_profiles.deleted_at IS NULL").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count due schedules: %w", err)
	}
	return count, nil
}
