package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rallyhq/reengage-api/internal/model"
	"github.com/rallyhq/reengage-api/internal/repository"
	apperrors "github.com/rallyhq/reengage-api/pkg/errors"
	"github.com/rallyhq/reengage-api/pkg/logger"
	"github.com/rallyhq/reengage-api/pkg/recurrence"
)

// Service manages recurring schedules. Every mutation that touches both a
// schedule and its pending occurrences goes through a single repository
// transaction so a pause can never leave an orphaned PENDING occurrence.
type Service struct {
	repo     repository.ScheduleRepository
	ruleRepo repository.RuleRepository
	logger   *logger.Logger
	now      func() time.Time
}

func NewService(repo repository.ScheduleRepository, ruleRepo repository.RuleRepository, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		ruleRepo: ruleRepo,
		logger:   log,
		now:      time.Now,
	}
}

func (s *Service) Create(ctx context.Context, req *model.CreateRecurringScheduleRequest) (*model.RecurringSchedule, error) {
	if _, err := s.ruleRepo.Get(ctx, req.RuleID); err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	spec := specFor(req.Frequency, req.TimeOfDay, req.Timezone, req.DayOfWeek, req.DayOfMonth)
	first, err := recurrence.Next(spec, req.StartsAt)
	if err != nil {
		return nil, apperrors.NewBadRequest(err.Error(), err)
	}

	schedule := &model.RecurringSchedule{
		ID:               uuid.New(),
		RuleID:           req.RuleID,
		Frequency:        req.Frequency,
		TimeOfDay:        req.TimeOfDay,
		DayOfWeek:        req.DayOfWeek,
		DayOfMonth:       req.DayOfMonth,
		Timezone:         req.Timezone,
		StartsAt:         req.StartsAt,
		EndsAt:           req.EndsAt,
		IsActive:         true,
		NextScheduledFor: &first,
	}
	pending := pendingOccurrence(schedule, first)

	if err := s.repo.CreateRecurringWithPending(ctx, schedule, pending); err != nil {
		return nil, err
	}

	s.logger.Info("recurring schedule created", map[string]interface{}{
		"schedule_id": schedule.ID.String(),
		"rule_id":     schedule.RuleID.String(),
		"frequency":   string(schedule.Frequency),
		"first_at":    first,
	})
	return schedule, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.RecurringSchedule, error) {
	return s.repo.GetRecurring(ctx, id)
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]*model.RecurringSchedule, error) {
	return s.repo.ListRecurring(ctx, activeOnly)
}

// Pause deactivates the schedule and cancels its pending occurrences. The
// schedule itself survives and can be resumed.
func (s *Service) Pause(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.GetRecurring(ctx, id); err != nil {
		return err
	}
	if err := s.repo.PauseRecurring(ctx, id, s.now()); err != nil {
		return err
	}
	s.logger.Info("recurring schedule paused", map[string]interface{}{"schedule_id": id.String()})
	return nil
}

// Resume reactivates the schedule from "now", not from where it left off.
func (s *Service) Resume(ctx context.Context, id uuid.UUID) (*model.RecurringSchedule, error) {
	schedule, err := s.repo.GetRecurring(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := recurrence.Next(specForSchedule(schedule), s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to compute next occurrence: %w", err)
	}

	pending := pendingOccurrence(schedule, next)
	if err := s.repo.ResumeRecurringWithPending(ctx, id, next, pending); err != nil {
		return nil, err
	}

	s.logger.Info("recurring schedule resumed", map[string]interface{}{
		"schedule_id": id.String(),
		"next_at":     next,
	})
	return s.repo.GetRecurring(ctx, id)
}

// Stop cancels pending occurrences and deletes the schedule permanently.
func (s *Service) Stop(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.GetRecurring(ctx, id); err != nil {
		return err
	}
	if err := s.repo.StopRecurring(ctx, id, s.now()); err != nil {
		return err
	}
	s.logger.Info("recurring schedule stopped", map[string]interface{}{"schedule_id": id.String()})
	return nil
}

// OnOccurrenceCompleted advances the schedule after the dispatcher finishes a
// linked occurrence: it records the execution, and either seeds exactly one
// new PENDING occurrence or deactivates the schedule when it has run past
// its end boundary. Inactive schedules are left untouched.
func (s *Service) OnOccurrenceCompleted(ctx context.Context, id uuid.UUID) error {
	schedule, err := s.repo.GetRecurring(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			// Stopped between execution and this callback.
			return nil
		}
		return err
	}
	if !schedule.IsActive {
		return nil
	}

	now := s.now()
	if schedule.EndsAt != nil && !now.Before(*schedule.EndsAt) {
		if err := s.repo.DeactivateRecurring(ctx, id); err != nil {
			return err
		}
		s.logger.Info("recurring schedule reached its end", map[string]interface{}{
			"schedule_id": id.String(),
		})
		return nil
	}

	next, err := recurrence.Next(specForSchedule(schedule), now)
	if err != nil {
		return fmt.Errorf("failed to compute next occurrence: %w", err)
	}

	pending := pendingOccurrence(schedule, next)
	if err := s.repo.AdvanceRecurring(ctx, id, next, now, pending); err != nil {
		return err
	}

	s.logger.Info("recurring schedule advanced", map[string]interface{}{
		"schedule_id": id.String(),
		"next_at":     next,
	})
	return nil
}

func validateRequest(req *model.CreateRecurringScheduleRequest) error {
	switch req.Frequency {
	case model.RecurringFrequencyWeekly:
		if req.DayOfWeek == nil || *req.DayOfWeek < 0 || *req.DayOfWeek > 6 {
			return apperrors.NewBadRequest("day_of_week must be in [0,6] for weekly schedules", nil)
		}
	case model.RecurringFrequencyMonthly:
		if req.DayOfMonth == nil || *req.DayOfMonth < 1 || *req.DayOfMonth > 31 {
			return apperrors.NewBadRequest("day_of_month must be in [1,31] for monthly schedules", nil)
		}
	}
	if req.EndsAt != nil && !req.EndsAt.After(req.StartsAt) {
		return apperrors.NewBadRequest("ends_at must be after starts_at", nil)
	}
	return nil
}

func specFor(freq model.RecurringFrequency, timeOfDay, timezone string, dayOfWeek, dayOfMonth *int) recurrence.Spec {
	return recurrence.Spec{
		Frequency:  recurrence.Frequency(freq),
		TimeOfDay:  timeOfDay,
		Timezone:   timezone,
		DayOfWeek:  dayOfWeek,
		DayOfMonth: dayOfMonth,
	}
}

func specForSchedule(schedule *model.RecurringSchedule) recurrence.Spec {
	return specFor(schedule.Frequency, schedule.TimeOfDay, schedule.Timezone, schedule.DayOfWeek, schedule.DayOfMonth)
}

func pendingOccurrence(schedule *model.RecurringSchedule, at time.Time) *model.ScheduledCampaign {
	return &model.ScheduledCampaign{
		ID:           uuid.New(),
		RuleID:       schedule.RuleID,
		ScheduledFor: at,
		Timezone:     schedule.Timezone,
		Status:       model.ScheduledCampaignStatusPending,
	}
}
