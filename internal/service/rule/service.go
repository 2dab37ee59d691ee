package rule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rallyhq/reengage-api/internal/model"
	"github.com/rallyhq/reengage-api/internal/repository"
	apperrors "github.com/rallyhq/reengage-api/pkg/errors"
	"github.com/rallyhq/reengage-api/pkg/logger"
)

type Service struct {
	repo        repository.RuleRepository
	vehicleRepo repository.VehicleRepository
	logger      *logger.Logger
	now         func() time.Time
}

func NewService(repo repository.RuleRepository, vehicleRepo repository.VehicleRepository, logger *logger.Logger) *Service {
	return &Service{
		repo:        repo,
		vehicleRepo: vehicleRepo,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *Service) CreateRule(ctx context.Context, req *model.CreateRuleRequest) (*model.Rule, error) {
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown timezone: %s", req.Timezone), err)
	}

	rule := &model.Rule{
		ID:              uuid.New(),
		Name:            req.Name,
		Service:         req.Service,
		CadenceMonths:   req.CadenceMonths,
		SendWindowDays:  req.SendWindowDays,
		SendWindowHours: req.SendWindowHours,
		Timezone:        req.Timezone,
		Enabled:         req.Enabled,
		EmailTemplate:   req.EmailTemplate,
	}

	if err := s.repo.Create(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}

	s.logger.Info("rule created", map[string]interface{}{
		"rule_id": rule.ID.String(),
		"service": string(rule.Service),
		"cadence": rule.CadenceMonths,
	})
	return rule, nil
}

func (s *Service) GetRule(ctx context.Context, id uuid.UUID) (*model.Rule, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListRules(ctx context.Context) ([]*model.Rule, error) {
	return s.repo.List(ctx)
}

// PreviewCohort computes the set of vehicles a rule would contact right now.
// The cutoff uses calendar-month subtraction, so running on March 31 with a
// one month cadence yields a cutoff on the last day of February.
func (s *Service) PreviewCohort(ctx context.Context, ruleID uuid.UUID) ([]*model.CohortMember, error) {
	rule, err := s.repo.Get(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	cutoff := now.AddDate(0, -rule.CadenceMonths, 0)

	members, err := s.vehicleRepo.ListEligible(ctx, rule.Service, cutoff, now)
	if err != nil {
		return nil, fmt.Errorf("failed to compute cohort: %w", err)
	}
	return members, nil
}
