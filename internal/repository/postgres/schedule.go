package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rallyhq/reengage-api/internal/model"
	apperrors "github.com/rallyhq/reengage-api/pkg/errors"
)

const scheduledColumns = `
	id, rule_id, scheduled_for, timezone, status,
	recurring_schedule_id, executed_run_id, executed_at, cancelled_at, created_at
`

const recurringColumns = `
	id, rule_id, frequency, time_of_day, day_of_week, day_of_month,
	timezone, starts_at, ends_at, is_active,
	last_executed_at, next_scheduled_for, created_at, updated_at
`

func (r *scheduleRepository) CreateScheduled(ctx context.Context, sc *model.ScheduledCampaign) error {
	return insertScheduled(ctx, r.db, sc)
}

func insertScheduled(ctx context.Context, ext sqlx.ExtContext, sc *model.ScheduledCampaign) error {
	if sc.ID == uuid.Nil {
		sc.ID = uuid.New()
	}
	if sc.Status == "" {
		sc.Status = model.ScheduledCampaignStatusPending
	}
	sc.CreatedAt = time.Now()

	_, err := ext.ExecContext(ctx, `
		INSERT INTO scheduled_campaigns (
			id, rule_id, scheduled_for, timezone, status,
			recurring_schedule_id, executed_run_id, executed_at, cancelled_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		sc.ID, sc.RuleID, sc.ScheduledFor, sc.Timezone, sc.Status,
		sc.RecurringScheduleID, sc.ExecutedRunID, sc.ExecutedAt, sc.CancelledAt, sc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create scheduled campaign: %w", err)
	}
	return nil
}

func (r *scheduleRepository) GetScheduled(ctx context.Context, id uuid.UUID) (*model.ScheduledCampaign, error) {
	var sc model.ScheduledCampaign
	err := r.db.GetContext(ctx, &sc, `
		SELECT `+scheduledColumns+`
		FROM scheduled_campaigns
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("scheduled campaign", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scheduled campaign: %w", err)
	}
	return &sc, nil
}

func (r *scheduleRepository) ListScheduled(ctx context.Context, pendingOnly bool) ([]*model.ScheduledCampaign, error) {
	query := `
		SELECT ` + scheduledColumns + `
		FROM scheduled_campaigns
	`
	if pendingOnly {
		query += ` WHERE status = 'PENDING'`
	}
	query += ` ORDER BY scheduled_for`

	var scheduled []*model.ScheduledCampaign
	if err := r.db.SelectContext(ctx, &scheduled, query); err != nil {
		return nil, fmt.Errorf("failed to list scheduled campaigns: %w", err)
	}
	return scheduled, nil
}

func (r *scheduleRepository) ListDue(ctx context.Context, now time.Time) ([]*model.ScheduledCampaign, error) {
	var scheduled []*model.ScheduledCampaign
	err := r.db.SelectContext(ctx, &scheduled, `
		SELECT `+scheduledColumns+`
		FROM scheduled_campaigns
		WHERE status = $1 AND scheduled_for <= $2
		ORDER BY scheduled_for
	`, model.ScheduledCampaignStatusPending, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due campaigns: %w", err)
	}
	return scheduled, nil
}

// ClaimScheduled is the at-most-once gate: only the caller that flips the row
// from PENDING to EXECUTING may run the campaign.
func (r *scheduleRepository) ClaimScheduled(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_campaigns
		SET status = $1
		WHERE id = $2 AND status = $3
	`, model.ScheduledCampaignStatusExecuting, id, model.ScheduledCampaignStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to claim scheduled campaign: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *scheduleRepository) CompleteScheduled(ctx context.Context, id uuid.UUID, runID *uuid.UUID, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_campaigns
		SET status = $1, executed_run_id = $2, executed_at = $3
		WHERE id = $4 AND status = $5
	`, model.ScheduledCampaignStatusCompleted, runID, at, id, model.ScheduledCampaignStatusExecuting)
	if err != nil {
		return false, fmt.Errorf("failed to complete scheduled campaign: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// FailScheduled is terminal. There is no automatic retry path from FAILED.
func (r *scheduleRepository) FailScheduled(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_campaigns
		SET status = $1
		WHERE id = $2 AND status = $3
	`, model.ScheduledCampaignStatusFailed, id, model.ScheduledCampaignStatusExecuting)
	if err != nil {
		return false, fmt.Errorf("failed to fail scheduled campaign: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *scheduleRepository) CancelScheduled(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_campaigns
		SET status = $1, cancelled_at = $2
		WHERE id = $3 AND status = $4
	`, model.ScheduledCampaignStatusCancelled, at, id, model.ScheduledCampaignStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to cancel scheduled campaign: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *scheduleRepository) CompleteScheduledByRun(ctx context.Context, runID uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_campaigns
		SET status = $1, executed_at = COALESCE(executed_at, $2)
		WHERE executed_run_id = $3 AND status = $4
	`, model.ScheduledCampaignStatusCompleted, at, runID, model.ScheduledCampaignStatusExecuting)
	if err != nil {
		return fmt.Errorf("failed to complete scheduled campaign by run: %w", err)
	}
	return nil
}

func (r *scheduleRepository) CreateRecurringWithPending(ctx context.Context, schedule *model.RecurringSchedule, pending *model.ScheduledCampaign) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if schedule.ID == uuid.Nil {
		schedule.ID = uuid.New()
	}
	schedule.CreatedAt = time.Now()
	schedule.UpdatedAt = schedule.CreatedAt

	_, err = tx.ExecContext(ctx, `
		INSERT INTO recurring_schedules (
			id, rule_id, frequency, time_of_day, day_of_week, day_of_month,
			timezone, starts_at, ends_at, is_active,
			last_executed_at, next_scheduled_for, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		schedule.ID, schedule.RuleID, schedule.Frequency, schedule.TimeOfDay,
		schedule.DayOfWeek, schedule.DayOfMonth, schedule.Timezone,
		schedule.StartsAt, schedule.EndsAt, schedule.IsActive,
		schedule.LastExecutedAt, schedule.NextScheduledFor,
		schedule.CreatedAt, schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create recurring schedule: %w", err)
	}

	pending.RecurringScheduleID = &schedule.ID
	if err := insertScheduled(ctx, tx, pending); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit recurring schedule: %w", err)
	}
	return nil
}

func (r *scheduleRepository) GetRecurring(ctx context.Context, id uuid.UUID) (*model.RecurringSchedule, error) {
	var schedule model.RecurringSchedule
	err := r.db.GetContext(ctx, &schedule, `
		SELECT `+recurringColumns+`
		FROM recurring_schedules
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("recurring schedule", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recurring schedule: %w", err)
	}
	return &schedule, nil
}

func (r *scheduleRepository) ListRecurring(ctx context.Context, activeOnly bool) ([]*model.RecurringSchedule, error) {
	query := `
		SELECT ` + recurringColumns + `
		FROM recurring_schedules
	`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY created_at DESC`

	var schedules []*model.RecurringSchedule
	if err := r.db.SelectContext(ctx, &schedules, query); err != nil {
		return nil, fmt.Errorf("failed to list recurring schedules: %w", err)
	}
	return schedules, nil
}

// PauseRecurring deactivates the schedule and cancels its pending
// occurrences in one transaction. Executions already claimed keep running.
func (r *scheduleRepository) PauseRecurring(ctx context.Context, id uuid.UUID, at time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := cancelPendingForRecurring(ctx, tx, id, at); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE recurring_schedules
		SET is_active = false, next_scheduled_for = NULL, updated_at = $1
		WHERE id = $2
	`, at, id)
	if err != nil {
		return fmt.Errorf("failed to pause recurring schedule: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pause: %w", err)
	}
	return nil
}

func (r *scheduleRepository) ResumeRecurringWithPending(ctx context.Context, id uuid.UUID, next time.Time, pending *model.ScheduledCampaign) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE recurring_schedules
		SET is_active = true, next_scheduled_for = $1, updated_at = $2
		WHERE id = $3
	`, next, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to resume recurring schedule: %w", err)
	}

	pending.RecurringScheduleID = &id
	if err := insertScheduled(ctx, tx, pending); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit resume: %w", err)
	}
	return nil
}

// StopRecurring cancels pending occurrences and removes the schedule.
// Historical executions keep their rows; the FK nulls their back-reference.
func (r *scheduleRepository) StopRecurring(ctx context.Context, id uuid.UUID, at time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := cancelPendingForRecurring(ctx, tx, id, at); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM recurring_schedules
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete recurring schedule: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit stop: %w", err)
	}
	return nil
}

// AdvanceRecurring records a completed occurrence and seeds the next one,
// atomically, so the schedule never has zero pending occurrences while active.
func (r *scheduleRepository) AdvanceRecurring(ctx context.Context, id uuid.UUID, next, executedAt time.Time, pending *model.ScheduledCampaign) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE recurring_schedules
		SET last_executed_at = $1, next_scheduled_for = $2, updated_at = $3
		WHERE id = $4 AND is_active = true
	`, executedAt, next, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to advance recurring schedule: %w", err)
	}

	pending.RecurringScheduleID = &id
	if err := insertScheduled(ctx, tx, pending); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit advance: %w", err)
	}
	return nil
}

// DeactivateRecurring ends a schedule that ran past its ends_at boundary.
func (r *scheduleRepository) DeactivateRecurring(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE recurring_schedules
		SET is_active = false, next_scheduled_for = NULL, updated_at = $1
		WHERE id = $2
	`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate recurring schedule: %w", err)
	}
	return nil
}

func cancelPendingForRecurring(ctx context.Context, ext sqlx.ExtContext, recurringID uuid.UUID, at time.Time) error {
	_, err := ext.ExecContext(ctx, `
		UPDATE scheduled_campaigns
		SET status = $1, cancelled_at = $2
		WHERE recurring_schedule_id = $3 AND status = $4
	`, model.ScheduledCampaignStatusCancelled, at, recurringID, model.ScheduledCampaignStatusPending)
	if err != nil {
		return fmt.Errorf("failed to cancel pending occurrences: %w", err)
	}
	return nil
}
