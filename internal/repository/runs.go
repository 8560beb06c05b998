package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"rfp-digest-go/internal/models"
)

// CreateRun opens a dispatch-run row at the start of a cycle.
func (r *Repository) CreateRun(ctx context.Context, trigger models.RunTrigger) (*models.DispatchRun, error) {
	run := &models.DispatchRun{
		Trigger:   trigger,
		StartedAt: r.now(),
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to create dispatch run: %w", err)
	}
	return run, nil
}

// FinishRun stamps the finish time and persists the run counters.
func (r *Repository) FinishRun(ctx context.Context, run *models.DispatchRun) error {
	finished := r.now()
	run.FinishedAt = &finished
	if err := r.db.WithContext(ctx).Save(run).Error; err != nil {
		return fmt.Errorf("failed to finish dispatch run %d: %w", run.ID, err)
	}
	return nil
}

// ListRuns returns dispatch runs newest first.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]models.DispatchRun, error) {
	var runs []models.DispatchRun
	query := r.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list dispatch runs: %w", err)
	}
	return runs, nil
}

// LastRun returns the most recent dispatch run, or nil when none exist.
func (r *Repository) LastRun(ctx context.Context) (*models.DispatchRun, error) {
	var run models.DispatchRun
	err := r.db.WithContext(ctx).Order("started_at DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load last dispatch run: %w", err)
	}
	return &run, nil
}
