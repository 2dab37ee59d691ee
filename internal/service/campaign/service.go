package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rallyhq/reengage-api/internal/email"
	"github.com/rallyhq/reengage-api/internal/model"
	"github.com/rallyhq/reengage-api/internal/repository"
	apperrors "github.com/rallyhq/reengage-api/pkg/errors"
	"github.com/rallyhq/reengage-api/pkg/logger"
	"github.com/rallyhq/reengage-api/pkg/messaging"
	"github.com/rallyhq/reengage-api/pkg/metrics"
)

// Progressor receives a run id after its fan-out transaction has committed
// and advances the run's messages through the delivery lifecycle
// asynchronously.
type Progressor interface {
	StartRun(runID uuid.UUID)
}

type Service struct {
	ruleRepo     repository.RuleRepository
	vehicleRepo  repository.VehicleRepository
	campaignRepo repository.CampaignRepository
	scheduleRepo repository.ScheduleRepository
	generator    email.Generator
	progressor   Progressor
	broker       messaging.Broker
	metrics      *metrics.Metrics
	logger       *logger.Logger
	now          func() time.Time
}

func NewService(
	ruleRepo repository.RuleRepository,
	vehicleRepo repository.VehicleRepository,
	campaignRepo repository.CampaignRepository,
	scheduleRepo repository.ScheduleRepository,
	generator email.Generator,
	progressor Progressor,
	broker messaging.Broker,
	m *metrics.Metrics,
	log *logger.Logger,
) *Service {
	return &Service{
		ruleRepo:     ruleRepo,
		vehicleRepo:  vehicleRepo,
		campaignRepo: campaignRepo,
		scheduleRepo: scheduleRepo,
		generator:    generator,
		progressor:   progressor,
		broker:       broker,
		metrics:      m,
		logger:       log,
		now:          time.Now,
	}
}

// ExecuteRule computes the rule's cohort and fans out the run. A nil run with
// a nil error means the cohort was empty, which is a normal outcome, not a
// failure. The run, its targets and its emails commit in one transaction;
// the delivery progressor is handed the run only after that commit.
func (s *Service) ExecuteRule(ctx context.Context, ruleID uuid.UUID) (*model.RuleRun, error) {
	rule, err := s.ruleRepo.Get(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	cutoff := now.AddDate(0, -rule.CadenceMonths, 0)

	members, err := s.vehicleRepo.ListEligible(ctx, rule.Service, cutoff, now)
	if err != nil {
		return nil, fmt.Errorf("failed to compute cohort: %w", err)
	}
	s.metrics.CohortSize.Observe(float64(len(members)))

	if len(members) == 0 {
		s.logger.Info("cohort empty, skipping run", map[string]interface{}{
			"rule_id": rule.ID.String(),
		})
		return nil, nil
	}

	run := &model.RuleRun{
		ID:        uuid.New(),
		RuleID:    rule.ID,
		StartedAt: now,
	}

	targets := make([]*model.RuleTarget, 0, len(members))
	emails := make([]*model.Email, 0, len(members))
	for _, member := range members {
		targets = append(targets, &model.RuleTarget{
			ID:        uuid.New(),
			RunID:     run.ID,
			RuleID:    rule.ID,
			VehicleID: member.Vehicle.ID,
			CreatedAt: now,
		})
		emails = append(emails, &model.Email{
			ID:         uuid.New(),
			RunID:      run.ID,
			RuleID:     rule.ID,
			CustomerID: member.Customer.ID,
			VehicleID:  member.Vehicle.ID,
			ToAddress:  member.Customer.Email,
			Subject:    s.generator.Subject(rule, member),
			Body:       s.generator.Body(rule, member),
			ThreadID:   fmt.Sprintf("<%s@reengage>", uuid.New()),
			Status:     model.EmailStatusQueued,
			QueuedAt:   now,
		})
	}

	if err := s.campaignRepo.CreateRun(ctx, run, targets, emails); err != nil {
		return nil, fmt.Errorf("failed to persist run: %w", err)
	}

	s.metrics.RunsStarted.Inc()
	s.metrics.EmailsQueued.Add(float64(len(emails)))
	s.logger.Info("rule run created", map[string]interface{}{
		"rule_id":     rule.ID.String(),
		"run_id":      run.ID.String(),
		"cohort_size": len(members),
	})

	// Handoff strictly after commit so the progressor can never observe
	// messages from a rolled-back transaction.
	s.progressor.StartRun(run.ID)

	return run, nil
}

// ExecuteScheduled claims a due campaign and runs it. The conditional
// PENDING to EXECUTING update is what makes dispatch at-most-once: a second
// caller, or an overlapping tick, loses the claim and does nothing. The
// returned bool reports whether this caller won the claim.
func (s *Service) ExecuteScheduled(ctx context.Context, scheduled *model.ScheduledCampaign) (bool, error) {
	claimed, err := s.scheduleRepo.ClaimScheduled(ctx, scheduled.ID)
	if err != nil {
		return false, fmt.Errorf("failed to claim scheduled campaign: %w", err)
	}
	if !claimed {
		return false, nil
	}
	s.metrics.ExecutionsClaimed.Inc()

	run, execErr := s.ExecuteRule(ctx, scheduled.RuleID)
	if execErr != nil {
		if _, failErr := s.scheduleRepo.FailScheduled(ctx, scheduled.ID); failErr != nil {
			s.logger.Error(failErr, "failed to mark scheduled campaign failed", map[string]interface{}{
				"scheduled_id": scheduled.ID.String(),
			})
		}
		s.metrics.ExecutionsFailed.Inc()
		s.publish(ctx, messaging.ChannelCampaignFailed, map[string]interface{}{
			"scheduled_id": scheduled.ID,
			"rule_id":      scheduled.RuleID,
			"error":        execErr.Error(),
		})
		return true, execErr
	}

	var runID *uuid.UUID
	if run != nil {
		runID = &run.ID
	}
	if _, err := s.scheduleRepo.CompleteScheduled(ctx, scheduled.ID, runID, s.now()); err != nil {
		return true, fmt.Errorf("failed to complete scheduled campaign: %w", err)
	}
	s.metrics.ExecutionsCompleted.Inc()
	s.publish(ctx, messaging.ChannelCampaignExecuted, map[string]interface{}{
		"scheduled_id": scheduled.ID,
		"rule_id":      scheduled.RuleID,
		"run_id":       runID,
	})
	return true, nil
}

// ScheduleCampaign registers a one-shot future execution. The instant must be
// strictly in the future.
func (s *Service) ScheduleCampaign(ctx context.Context, req *model.ScheduleCampaignRequest) (*model.ScheduledCampaign, error) {
	if _, err := s.ruleRepo.Get(ctx, req.RuleID); err != nil {
		return nil, err
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown timezone: %s", req.Timezone), err)
	}
	if !req.ScheduledFor.After(s.now()) {
		return nil, apperrors.NewBadRequest("scheduled_for must be in the future", nil)
	}

	scheduled := &model.ScheduledCampaign{
		ID:           uuid.New(),
		RuleID:       req.RuleID,
		ScheduledFor: req.ScheduledFor,
		Timezone:     req.Timezone,
		Status:       model.ScheduledCampaignStatusPending,
	}
	if err := s.scheduleRepo.CreateScheduled(ctx, scheduled); err != nil {
		return nil, err
	}

	s.logger.Info("campaign scheduled", map[string]interface{}{
		"scheduled_id":  scheduled.ID.String(),
		"rule_id":       scheduled.RuleID.String(),
		"scheduled_for": scheduled.ScheduledFor,
	})
	return scheduled, nil
}

// CancelScheduled cancels a pending campaign. Cancellation races with the
// dispatcher's claim; losing that race is an invalid state, not a silent
// no-op, because the caller's intent can no longer be honored.
func (s *Service) CancelScheduled(ctx context.Context, id uuid.UUID) (*model.ScheduledCampaign, error) {
	scheduled, err := s.scheduleRepo.GetScheduled(ctx, id)
	if err != nil {
		return nil, err
	}
	if scheduled.Status != model.ScheduledCampaignStatusPending {
		return nil, apperrors.NewInvalidState(fmt.Sprintf("cannot cancel campaign in state %s", scheduled.Status))
	}

	cancelled, err := s.scheduleRepo.CancelScheduled(ctx, id, s.now())
	if err != nil {
		return nil, err
	}
	if !cancelled {
		return nil, apperrors.NewInvalidState("campaign is no longer pending")
	}
	return s.scheduleRepo.GetScheduled(ctx, id)
}

func (s *Service) ListScheduled(ctx context.Context, pendingOnly bool) ([]*model.ScheduledCampaign, error) {
	return s.scheduleRepo.ListScheduled(ctx, pendingOnly)
}

func (s *Service) ListRuns(ctx context.Context, incompleteOnly bool) ([]*model.RunSummary, error) {
	return s.campaignRepo.ListRuns(ctx, incompleteOnly)
}

func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*model.RunDetail, error) {
	return s.campaignRepo.GetRunDetail(ctx, id)
}

func (s *Service) publish(ctx context.Context, channel string, payload interface{}) {
	if err := s.broker.Publish(ctx, channel, messaging.Message{Type: channel, Payload: payload}); err != nil {
		s.logger.Warn("failed to publish event", map[string]interface{}{
			"channel": channel,
			"error":   err.Error(),
		})
	}
}
