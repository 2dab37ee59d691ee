package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rallyhq/reengage-api/internal/model"
)

// All repository interfaces in one file
type (
	// RuleRepository handles re-engagement rule records
	RuleRepository interface {
		Create(ctx context.Context, rule *model.Rule) error
		Get(ctx context.Context, id uuid.UUID) (*model.Rule, error)
		List(ctx context.Context) ([]*model.Rule, error)
	}

	// VehicleRepository covers the vehicle population the cohort query runs
	// against, plus the dashboard read surface.
	VehicleRepository interface {
		// ListEligible returns every vehicle with at least one service of
		// the given type performed at or before cutoff and no BOOKED
		// appointment of that type starting at or after now. Each member
		// carries the most recent matching service record, when one exists.
		ListEligible(ctx context.Context, service model.ServiceType, cutoff, now time.Time) ([]*model.CohortMember, error)
		Get(ctx context.Context, id uuid.UUID) (*model.VehicleDetail, error)
		ListCustomers(ctx context.Context) ([]*model.CustomerWithVehicles, error)
		CreateAppointment(ctx context.Context, appointment *model.Appointment) error
	}

	// CampaignRepository handles rule runs and their emails. Every delivery
	// transition is a conditional update keyed by id and prior state so two
	// workers can never apply the same transition twice.
	CampaignRepository interface {
		// CreateRun persists the run, its targets and its emails in one
		// transaction: either the whole fan-out is visible or none of it.
		CreateRun(ctx context.Context, run *model.RuleRun, targets []*model.RuleTarget, emails []*model.Email) error
		GetRun(ctx context.Context, id uuid.UUID) (*model.RuleRun, error)
		ListRuns(ctx context.Context, incompleteOnly bool) ([]*model.RunSummary, error)
		GetRunDetail(ctx context.Context, id uuid.UUID) (*model.RunDetail, error)
		ListQueuedEmails(ctx context.Context, runID uuid.UUID) ([]*model.Email, error)
		MarkEmailSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
		MarkEmailDelivered(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
		CountUndelivered(ctx context.Context, runID uuid.UUID) (int, error)
		CompleteRun(ctx context.Context, runID uuid.UUID, at time.Time) (bool, error)
	}

	// ScheduleRepository handles one-shot scheduled campaigns and recurring
	// schedules. Methods that touch a schedule together with its pending
	// executions run in one transaction.
	ScheduleRepository interface {
		CreateScheduled(ctx context.Context, sc *model.ScheduledCampaign) error
		GetScheduled(ctx context.Context, id uuid.UUID) (*model.ScheduledCampaign, error)
		ListScheduled(ctx context.Context, pendingOnly bool) ([]*model.ScheduledCampaign, error)
		ListDue(ctx context.Context, now time.Time) ([]*model.ScheduledCampaign, error)
		// ClaimScheduled flips PENDING to EXECUTING and reports whether this
		// caller won the claim. It is the at-most-once dispatch mechanism.
		ClaimScheduled(ctx context.Context, id uuid.UUID) (bool, error)
		CompleteScheduled(ctx context.Context, id uuid.UUID, runID *uuid.UUID, at time.Time) (bool, error)
		FailScheduled(ctx context.Context, id uuid.UUID) (bool, error)
		CancelScheduled(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
		// CompleteScheduledByRun marks the execution that produced runID
		// COMPLETED if it is not already terminal.
		CompleteScheduledByRun(ctx context.Context, runID uuid.UUID, at time.Time) error

		CreateRecurringWithPending(ctx context.Context, schedule *model.RecurringSchedule, pending *model.ScheduledCampaign) error
		GetRecurring(ctx context.Context, id uuid.UUID) (*model.RecurringSchedule, error)
		ListRecurring(ctx context.Context, activeOnly bool) ([]*model.RecurringSchedule, error)
		PauseRecurring(ctx context.Context, id uuid.UUID, at time.Time) error
		ResumeRecurringWithPending(ctx context.Context, id uuid.UUID, next time.Time, pending *model.ScheduledCampaign) error
		StopRecurring(ctx context.Context, id uuid.UUID, at time.Time) error
		AdvanceRecurring(ctx context.Context, id uuid.UUID, next, executedAt time.Time, pending *model.ScheduledCampaign) error
		DeactivateRecurring(ctx context.Context, id uuid.UUID) error
	}
)
