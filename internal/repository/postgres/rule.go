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

func (r *ruleRepository) Create(ctx context.Context, rule *model.Rule) error {
	query := `
		INSERT INTO rules (
			id, name, service, cadence_months,
			send_window_days, send_window_hours, timezone,
			enabled, email_template, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		rule.ID,
		rule.Name,
		rule.Service,
		rule.CadenceMonths,
		rule.SendWindowDays,
		rule.SendWindowHours,
		rule.Timezone,
		rule.Enabled,
		rule.EmailTemplate,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

func (r *ruleRepository) Get(ctx context.Context, id uuid.UUID) (*model.Rule, error) {
	query := `
		SELECT id, name, service, cadence_months,
			   send_window_days, send_window_hours, timezone,
			   enabled, email_template, created_at, updated_at
		FROM rules
		WHERE id = $1
	`
	var rule model.Rule
	err := r.db.GetContext(ctx, &rule, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("rule", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return &rule, nil
}

func (r *ruleRepository) List(ctx context.Context) ([]*model.Rule, error) {
	query := `
		SELECT id, name, service, cadence_months,
			   send_window_days, send_window_hours, timezone,
			   enabled, email_template, created_at, updated_at
		FROM rules
		ORDER BY created_at DESC
	`
	var rules []*model.Rule
	if err := r.db.SelectContext(ctx, &rules, query); err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}
