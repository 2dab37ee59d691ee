package model

import (
	"time"

	"github.com/google/uuid"
)

type ScheduledCampaignStatus string

const (
	ScheduledCampaignStatusPending   ScheduledCampaignStatus = "PENDING"
	ScheduledCampaignStatusExecuting ScheduledCampaignStatus = "EXECUTING"
	ScheduledCampaignStatusCompleted ScheduledCampaignStatus = "COMPLETED"
	ScheduledCampaignStatusCancelled ScheduledCampaignStatus = "CANCELLED"
	ScheduledCampaignStatusFailed    ScheduledCampaignStatus = "FAILED"
)

// IsTerminal reports whether the status can never change again.
func (s ScheduledCampaignStatus) IsTerminal() bool {
	return s == ScheduledCampaignStatusCompleted ||
		s == ScheduledCampaignStatusCancelled ||
		s == ScheduledCampaignStatusFailed
}

// ScheduledCampaign is a one-shot intent to run a rule at ScheduledFor.
// Status moves one way only: PENDING -> EXECUTING -> COMPLETED|FAILED, or
// PENDING -> CANCELLED via explicit cancellation.
type ScheduledCampaign struct {
	ID                  uuid.UUID               `db:"id" json:"id"`
	RuleID              uuid.UUID               `db:"rule_id" json:"rule_id"`
	ScheduledFor        time.Time               `db:"scheduled_for" json:"scheduled_for"`
	Timezone            string                  `db:"timezone" json:"timezone"`
	Status              ScheduledCampaignStatus `db:"status" json:"status"`
	RecurringScheduleID *uuid.UUID              `db:"recurring_schedule_id" json:"recurring_schedule_id,omitempty"`
	ExecutedRunID       *uuid.UUID              `db:"executed_run_id" json:"executed_run_id,omitempty"`
	ExecutedAt          *time.Time              `db:"executed_at" json:"executed_at,omitempty"`
	CancelledAt         *time.Time              `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt           time.Time               `db:"created_at" json:"created_at"`
}

type RecurringFrequency string

const (
	RecurringFrequencyDaily   RecurringFrequency = "DAILY"
	RecurringFrequencyWeekly  RecurringFrequency = "WEEKLY"
	RecurringFrequencyMonthly RecurringFrequency = "MONTHLY"
)

// RecurringSchedule generates one PENDING ScheduledCampaign per occurrence.
// TimeOfDay is a timezone-naive "HH:MM" string interpreted against the
// schedule's own Timezone at evaluation time. NextScheduledFor is a
// denormalized cache of the next pending occurrence's time.
type RecurringSchedule struct {
	ID               uuid.UUID          `db:"id" json:"id"`
	RuleID           uuid.UUID          `db:"rule_id" json:"rule_id"`
	Frequency        RecurringFrequency `db:"frequency" json:"frequency"`
	TimeOfDay        string             `db:"time_of_day" json:"time_of_day"`
	DayOfWeek        *int               `db:"day_of_week" json:"day_of_week,omitempty"`
	DayOfMonth       *int               `db:"day_of_month" json:"day_of_month,omitempty"`
	Timezone         string             `db:"timezone" json:"timezone"`
	StartsAt         time.Time          `db:"starts_at" json:"starts_at"`
	EndsAt           *time.Time         `db:"ends_at" json:"ends_at,omitempty"`
	IsActive         bool               `db:"is_active" json:"is_active"`
	LastExecutedAt   *time.Time         `db:"last_executed_at" json:"last_executed_at,omitempty"`
	NextScheduledFor *time.Time         `db:"next_scheduled_for" json:"next_scheduled_for,omitempty"`
	CreatedAt        time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `db:"updated_at" json:"updated_at"`
}

type ScheduleCampaignRequest struct {
	RuleID       uuid.UUID `json:"rule_id" binding:"required"`
	ScheduledFor time.Time `json:"scheduled_for" binding:"required"`
	Timezone     string    `json:"timezone" binding:"required,timezone"`
}

type CreateRecurringScheduleRequest struct {
	RuleID     uuid.UUID          `json:"rule_id" binding:"required"`
	Frequency  RecurringFrequency `json:"frequency" binding:"required,oneof=DAILY WEEKLY MONTHLY"`
	TimeOfDay  string             `json:"time_of_day" binding:"required,timeofday"`
	DayOfWeek  *int               `json:"day_of_week"`
	DayOfMonth *int               `json:"day_of_month"`
	Timezone   string             `json:"timezone" binding:"required,timezone"`
	StartsAt   time.Time          `json:"starts_at" binding:"required"`
	EndsAt     *time.Time         `json:"ends_at"`
}
