package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rallyhq/reengage-api/internal/model"
	apperrors "github.com/rallyhq/reengage-api/pkg/errors"
)

// CreateRun persists the run with its full fan-out in a single transaction.
// A partially written run must never be observable.
func (r *campaignRepository) CreateRun(ctx context.Context, run *model.RuleRun, targets []*model.RuleTarget, emails []*model.Email) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rule_runs (id, rule_id, started_at, completed_at)
		VALUES ($1, $2, $3, $4)
	`, run.ID, run.RuleID, run.StartedAt, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	targetStmt, err := tx.PreparexContext(ctx, `
		INSERT INTO rule_targets (id, run_id, rule_id, vehicle_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare target insert: %w", err)
	}
	defer targetStmt.Close()

	for _, t := range targets {
		if _, err := targetStmt.ExecContext(ctx, t.ID, t.RunID, t.RuleID, t.VehicleID, t.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert target: %w", err)
		}
	}

	emailStmt, err := tx.PreparexContext(ctx, `
		INSERT INTO emails (
			id, run_id, rule_id, customer_id, vehicle_id,
			to_address, subject, body, thread_id, status, queued_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare email insert: %w", err)
	}
	defer emailStmt.Close()

	for _, e := range emails {
		_, err := emailStmt.ExecContext(ctx,
			e.ID, e.RunID, e.RuleID, e.CustomerID, e.VehicleID,
			e.ToAddress, e.Subject, e.Body, e.ThreadID, e.Status, e.QueuedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert email: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

func (r *campaignRepository) GetRun(ctx context.Context, id uuid.UUID) (*model.RuleRun, error) {
	var run model.RuleRun
	err := r.db.GetContext(ctx, &run, `
		SELECT id, rule_id, started_at, completed_at
		FROM rule_runs
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("run", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

type runSummaryRow struct {
	model.RuleRun
	RuleID2         uuid.UUID         `db:"r_id"`
	RuleName        string            `db:"r_name"`
	RuleService     model.ServiceType `db:"r_service"`
	RuleCadence     int               `db:"r_cadence_months"`
	RuleWindowDays  int               `db:"r_send_window_days"`
	RuleWindowHours int               `db:"r_send_window_hours"`
	RuleTimezone    string            `db:"r_timezone"`
	RuleEnabled     bool              `db:"r_enabled"`
	RuleTemplate    string            `db:"r_email_template"`
	RuleCreatedAt   time.Time         `db:"r_created_at"`
	RuleUpdatedAt   time.Time         `db:"r_updated_at"`
	EmailCount      int               `db:"email_count"`
	TargetCount     int               `db:"target_count"`
}

func (row *runSummaryRow) toSummary() *model.RunSummary {
	return &model.RunSummary{
		Run: &model.RuleRun{
			ID:          row.ID,
			RuleID:      row.RuleID,
			StartedAt:   row.StartedAt,
			CompletedAt: row.CompletedAt,
		},
		Rule: &model.Rule{
			ID:              row.RuleID2,
			Name:            row.RuleName,
			Service:         row.RuleService,
			CadenceMonths:   row.RuleCadence,
			SendWindowDays:  row.RuleWindowDays,
			SendWindowHours: row.RuleWindowHours,
			Timezone:        row.RuleTimezone,
			Enabled:         row.RuleEnabled,
			EmailTemplate:   row.RuleTemplate,
			CreatedAt:       row.RuleCreatedAt,
			UpdatedAt:       row.RuleUpdatedAt,
		},
		EmailCount:  row.EmailCount,
		TargetCount: row.TargetCount,
	}
}

func (r *campaignRepository) ListRuns(ctx context.Context, incompleteOnly bool) ([]*model.RunSummary, error) {
	query := `
		SELECT rr.id, rr.rule_id, rr.started_at, rr.completed_at,
			   r.id AS r_id, r.name AS r_name, r.service AS r_service,
			   r.cadence_months AS r_cadence_months,
			   r.send_window_days AS r_send_window_days,
			   r.send_window_hours AS r_send_window_hours,
			   r.timezone AS r_timezone, r.enabled AS r_enabled,
			   r.email_template AS r_email_template,
			   r.created_at AS r_created_at, r.updated_at AS r_updated_at,
			   (SELECT COUNT(*) FROM emails e WHERE e.run_id = rr.id) AS email_count,
			   (SELECT COUNT(*) FROM rule_targets t WHERE t.run_id = rr.id) AS target_count
		FROM rule_runs rr
		JOIN rules r ON r.id = rr.rule_id
	`
	if incompleteOnly {
		query += ` WHERE rr.completed_at IS NULL`
	}
	query += ` ORDER BY rr.started_at DESC`

	var rows []runSummaryRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	summaries := make([]*model.RunSummary, 0, len(rows))
	for i := range rows {
		summaries = append(summaries, rows[i].toSummary())
	}
	return summaries, nil
}

func (r *campaignRepository) GetRunDetail(ctx context.Context, id uuid.UUID) (*model.RunDetail, error) {
	run, err := r.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}

	var rule model.Rule
	err = r.db.GetContext(ctx, &rule, `
		SELECT id, name, service, cadence_months,
			   send_window_days, send_window_hours, timezone,
			   enabled, email_template, created_at, updated_at
		FROM rules
		WHERE id = $1
	`, run.RuleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run rule: %w", err)
	}

	var emails []*model.Email
	err = r.db.SelectContext(ctx, &emails, `
		SELECT id, run_id, rule_id, customer_id, vehicle_id,
			   to_address, subject, body, thread_id, status,
			   queued_at, sent_at, delivered_at
		FROM emails
		WHERE run_id = $1
		ORDER BY queued_at, id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list run emails: %w", err)
	}

	return &model.RunDetail{Run: run, Rule: &rule, Emails: emails}, nil
}

func (r *campaignRepository) ListQueuedEmails(ctx context.Context, runID uuid.UUID) ([]*model.Email, error) {
	var emails []*model.Email
	err := r.db.SelectContext(ctx, &emails, `
		SELECT id, run_id, rule_id, customer_id, vehicle_id,
			   to_address, subject, body, thread_id, status,
			   queued_at, sent_at, delivered_at
		FROM emails
		WHERE run_id = $1 AND status = $2
		ORDER BY queued_at, id
	`, runID, model.EmailStatusQueued)
	if err != nil {
		return nil, fmt.Errorf("failed to list queued emails: %w", err)
	}
	return emails, nil
}

// MarkEmailSent advances QUEUED to SENT. The state predicate makes the
// transition idempotent: a second caller sees zero rows affected.
func (r *campaignRepository) MarkEmailSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE emails
		SET status = $1, sent_at = $2
		WHERE id = $3 AND status = $4
	`, model.EmailStatusSent, at, id, model.EmailStatusQueued)
	if err != nil {
		return false, fmt.Errorf("failed to mark email sent: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *campaignRepository) MarkEmailDelivered(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE emails
		SET status = $1, delivered_at = $2
		WHERE id = $3 AND status = $4
	`, model.EmailStatusDelivered, at, id, model.EmailStatusSent)
	if err != nil {
		return false, fmt.Errorf("failed to mark email delivered: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *campaignRepository) CountUndelivered(ctx context.Context, runID uuid.UUID) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*)
		FROM emails
		WHERE run_id = $1 AND status != $2
	`, runID, model.EmailStatusDelivered)
	if err != nil {
		return 0, fmt.Errorf("failed to count undelivered emails: %w", err)
	}
	return count, nil
}

// CompleteRun sets completed_at exactly once.
func (r *campaignRepository) CompleteRun(ctx context.Context, runID uuid.UUID, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE rule_runs
		SET completed_at = $1
		WHERE id = $2 AND completed_at IS NULL
	`, at, runID)
	if err != nil {
		return false, fmt.Errorf("failed to complete run: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}
