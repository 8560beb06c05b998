package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"rfp-digest-go/internal/models"
)

// GetProfile loads one faculty profile by email.
func (r *Repository) GetProfile(ctx context.Context, email string) (*models.FacultyProfile, error) {
	var profile models.FacultyProfile
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile %s: %w", email, err)
	}
	return &profile, nil
}

// GetSchedule loads one schedule record by faculty email.
func (r *Repository) GetSchedule(ctx context.Context, email string) (*models.ScheduleRecord, error) {
	var schedule models.ScheduleRecord
	err := r.db.WithContext(ctx).Where("faculty_email = ?", email).First(&schedule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule %s: %w", email, err)
	}
	return &schedule, nil
}

// ListProfiles returns profiles ordered by email, optionally active only.
func (r *Repository) ListProfiles(ctx context.Context, activeOnly bool) ([]models.FacultyProfile, error) {
	var profiles []models.FacultyProfile
	query := r.db.WithContext(ctx).Order("email ASC")
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	if err := query.Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}

// SearchProfiles matches the query against email, name, research area, and
// keywords.
func (r *Repository) SearchProfiles(ctx context.Context, q string) ([]models.FacultyProfile, error) {
	var profiles []models.FacultyProfile
	pattern := "%" + q + "%"
	err := r.db.WithContext(ctx).
		Where("email LIKE ? OR name LIKE ? OR research_area LIKE ? OR keywords LIKE ?",
			pattern, pattern, pattern, pattern).
		Order("email ASC").
		Find(&profiles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search profiles: %w", err)
	}
	return profiles, nil
}

// UpsertProfile creates or updates a profile by email and reports whether
// a new row was created. Updates keep the stored active flag (that is an
// operator decision, not intake data) and propagate a cadence change to
// the schedule row.
func (r *Repository) UpsertProfile(ctx context.Context, incoming *models.FacultyProfile) (bool, error) {
	created := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.FacultyProfile
		err := tx.Where("email = ?", incoming.Email).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := tx.Create(incoming).Error; err != nil {
				return fmt.Errorf("failed to create profile %s: %w", incoming.Email, err)
			}
			created = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load profile %s: %w", incoming.Email, err)
		}

		incoming.ID = existing.ID
		incoming.CreatedAt = existing.CreatedAt
		incoming.Active = existing.Active
		if err := tx.Save(incoming).Error; err != nil {
			return fmt.Errorf("failed to update profile %s: %w", incoming.Email, err)
		}

		if incoming.Cadence != "" {
			if err := tx.Model(&models.ScheduleRecord{}).
				Where("faculty_email = ?", incoming.Email).
				Update("cadence", incoming.Cadence).Error; err != nil {
				return fmt.Errorf("failed to update schedule cadence for %s: %w", incoming.Email, err)
			}
		}
		return nil
	})
	return created, err
}

// SetProfileActive toggles a profile. Deactivation pauses the schedule so
// the row stays in place; reactivation returns it to pending.
func (r *Repository) SetProfileActive(ctx context.Context, email string, active bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.FacultyProfile{}).
			Where("email = ?", email).
			Update("active", active)
		if result.Error != nil {
			return fmt.Errorf("failed to set active=%v for %s: %w", active, email, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrProfileNotFound
		}

		status := models.SchedulePaused
		if active {
			status = models.SchedulePending
		}
		if err := tx.Model(&models.ScheduleRecord{}).
			Where("faculty_email = ?", email).
			Update("status", status).Error; err != nil {
			return fmt.Errorf("failed to update schedule status for %s: %w", email, err)
		}
		return nil
	})
}

// UpdateSchedule adjusts the cadence and/or next due date of a schedule.
func (r *Repository) UpdateSchedule(ctx context.Context, email string, cadence *models.Cadence, nextDue *time.Time) error {
	updates := map[string]interface{}{}
	if cadence != nil {
		updates["cadence"] = *cadence
	}
	if nextDue != nil {
		updates["next_due_date"] = models.DateOf(*nextDue)
	}
	if len(updates) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).
		Model(&models.ScheduleRecord{}).
		Where("faculty_email = ?", email).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update schedule for %s: %w", email, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// ResetSchedule returns a schedule to its initial state: due tomorrow,
// pending, no recorded send, zero retries.
func (r *Repository) ResetSchedule(ctx context.Context, email string) error {
	result := r.db.WithContext(ctx).
		Model(&models.ScheduleRecord{}).
		Where("faculty_email = ?", email).
		Updates(map[string]interface{}{
			"last_sent_date": nil,
			"next_due_date":  r.today().AddDate(0, 0, 1),
			"status":         models.SchedulePending,
			"retry_count":    0,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to reset schedule for %s: %w", email, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// OverdueSchedules returns pending schedules whose due date slipped more
// than a day ago, meaning at least one daily cycle missed them.
func (r *Repository) OverdueSchedules(ctx context.Context) ([]models.ScheduleRecord, error) {
	cutoff := r.today().AddDate(0, 0, -1)
	var schedules []models.ScheduleRecord
	err := r.db.WithContext(ctx).
		Where("next_due_date < ? AND status = ?", cutoff, models.SchedulePending).
		Order("next_due_date ASC").
		Find(&schedules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue schedules: %w", err)
	}
	return schedules, nil
}

// FailedSchedules returns failed schedules with more than the given number
// of retries.
func (r *Repository) FailedSchedules(ctx context.Context, moreThanRetries int) ([]models.ScheduleRecord, error) {
	var schedules []models.ScheduleRecord
	err := r.db.WithContext(ctx).
		Where("status = ? AND retry_count > ?", models.ScheduleFailed, moreThanRetries).
		Order("retry_count DESC").
		Find(&schedules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list failed schedules: %w", err)
	}
	return schedules, nil
}

// SchedulesByEmail returns every schedule row keyed by faculty email, for
// list views that would otherwise query per profile.
func (r *Repository) SchedulesByEmail(ctx context.Context) (map[string]models.ScheduleRecord, error) {
	var schedules []models.ScheduleRecord
	if err := r.db.WithContext(ctx).Find(&schedules).Error; err != nil {
		return nil, fmt.Errorf("failed to load schedules: %w", err)
	}
	byEmail := make(map[string]models.ScheduleRecord, len(schedules))
	for _, s := range schedules {
		byEmail[s.FacultyEmail] = s
	}
	return byEmail, nil
}

// ScheduleStatusCounts returns how many schedules sit in each status.
func (r *Repository) ScheduleStatusCounts(ctx context.Context) (map[models.ScheduleStatus]int64, error) {
	rows := []struct {
		Status models.ScheduleStatus
		N      int64
	}{}
	err := r.db.WithContext(ctx).
		Model(&models.ScheduleRecord{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count schedule statuses: %w", err)
	}
	counts := make(map[models.ScheduleStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.N
	}
	return counts, nil
}

// CountProfiles counts profiles, optionally active only.
func (r *Repository) CountProfiles(ctx context.Context, activeOnly bool) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.FacultyProfile{})
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count profiles: %w", err)
	}
	return count, nil
}

// ProfilesCreatedBetween counts intake rows first seen in [from, to).
func (r *Repository) ProfilesCreatedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.FacultyProfile{}).
		Where("created_at >= ? AND created_at < ?", from, to).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count new profiles: %w", err)
	}
	return count, nil
}
