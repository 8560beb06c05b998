package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"rfp-digest-go/internal/models"
)

// AttemptStats aggregates ledger rows over a window.
type AttemptStats struct {
	Total                int64
	Success              int64
	Failed               int64
	Skipped              int64
	TokensUsed           int64
	AvgProcessingSeconds float64
}

// RecordAttempt appends one row to the attempt ledger.
func (r *Repository) RecordAttempt(ctx context.Context, attempt *models.EmailAttempt) error {
	if attempt.SentDate.IsZero() {
		attempt.SentDate = r.now()
	}
	if err := r.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to record attempt for %s: %w", attempt.FacultyEmail, err)
	}
	return nil
}

// LatestSuccess returns the most recent successful attempt for the faculty
// at or after the given time, or nil when there is none. Failed and
// skipped attempts are not considered.
func (r *Repository) LatestSuccess(ctx context.Context, email string, since time.Time) (*models.EmailAttempt, error) {
	var attempt models.EmailAttempt
	err := r.db.WithContext(ctx).
		Where("faculty_email = ? AND status = ? AND sent_date >= ?", email, models.AttemptSuccess, since).
		Order("sent_date DESC").
		First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest success for %s: %w", email, err)
	}
	return &attempt, nil
}

// RecentAttempts returns the newest ledger rows, for one faculty when an
// email is given or across all faculty when it is empty.
func (r *Repository) RecentAttempts(ctx context.Context, email string, limit int) ([]models.EmailAttempt, error) {
	var attempts []models.EmailAttempt
	query := r.db.WithContext(ctx).Order("sent_date DESC")
	if email != "" {
		query = query.Where("faculty_email = ?", email)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return attempts, nil
}

// AttemptStatsBetween aggregates the ledger over [from, to).
func (r *Repository) AttemptStatsBetween(ctx context.Context, from, to time.Time) (*AttemptStats, error) {
	stats := &AttemptStats{}

	rows := []struct {
		Status models.AttemptStatus
		N      int64
	}{}
	err := r.db.WithContext(ctx).
		Model(&models.EmailAttempt{}).
		Select("status, COUNT(*) AS n").
		Where("sent_date >= ? AND sent_date < ?", from, to).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate attempt counts: %w", err)
	}
	for _, row := range rows {
		stats.Total += row.N
		switch row.Status {
		case models.AttemptSuccess:
			stats.Success = row.N
		case models.AttemptFailed:
			stats.Failed = row.N
		case models.AttemptSkippedDuplicate:
			stats.Skipped = row.N
		}
	}

	agg := struct {
		Tokens     int64
		AvgSeconds float64
	}{}
	err = r.db.WithContext(ctx).
		Model(&models.EmailAttempt{}).
		Select("COALESCE(SUM(tokens_used), 0) AS tokens, COALESCE(AVG(processing_seconds), 0) AS avg_seconds").
		Where("sent_date >= ? AND sent_date < ? AND status = ?", from, to, models.AttemptSuccess).
		Scan(&agg).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate attempt totals: %w", err)
	}
	stats.TokensUsed = agg.Tokens
	stats.AvgProcessingSeconds = agg.AvgSeconds

	return stats, nil
}

// RecentFailures lists failed attempts since the given time, newest first.
func (r *Repository) RecentFailures(ctx context.Context, since time.Time, limit int) ([]models.EmailAttempt, error) {
	var attempts []models.EmailAttempt
	query := r.db.WithContext(ctx).
		Where("status = ? AND sent_date >= ?", models.AttemptFailed, since).
		Order("sent_date DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to list recent failures: %w", err)
	}
	return attempts, nil
}

// FailuresBetween lists failed attempts in [from, to), newest first.
func (r *Repository) FailuresBetween(ctx context.Context, from, to time.Time, limit int) ([]models.EmailAttempt, error) {
	var attempts []models.EmailAttempt
	query := r.db.WithContext(ctx).
		Where("status = ? AND sent_date >= ? AND sent_date < ?", models.AttemptFailed, from, to).
		Order("sent_date DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to list failures for window: %w", err)
	}
	return attempts, nil
}

// AttemptCountsByEmail returns total ledger rows per faculty in one query.
func (r *Repository) AttemptCountsByEmail(ctx context.Context) (map[string]int64, error) {
	rows := []struct {
		FacultyEmail string
		N            int64
	}{}
	err := r.db.WithContext(ctx).
		Model(&models.EmailAttempt{}).
		Select("faculty_email, COUNT(*) AS n").
		Group("faculty_email").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts per faculty: %w", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.FacultyEmail] = row.N
	}
	return counts, nil
}
