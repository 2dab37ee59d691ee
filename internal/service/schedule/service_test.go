package schedule

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rallyhq/reengage-api/internal/model"
	"github.com/rallyhq/reengage-api/internal/repository/memory"
	apperrors "github.com/rallyhq/reengage-api/pkg/errors"
	"github.com/rallyhq/reengage-api/pkg/logger"
)

func intPtr(n int) *int { return &n }

type fixture struct {
	store   *memory.Store
	service *Service
	rule    *model.Rule
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard, TimeFormat: time.RFC3339})

	svc := NewService(memory.NewScheduleRepository(store), memory.NewRuleRepository(store), log)

	rule := &model.Rule{ID: uuid.New(), Name: "brakes", Service: model.ServiceTypeBrakeInspection, CadenceMonths: 12, Timezone: "UTC"}
	store.Rules[rule.ID] = rule

	now := time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	return &fixture{store: store, service: svc, rule: rule, now: now}
}

func (f *fixture) pendingFor(scheduleID uuid.UUID) []*model.ScheduledCampaign {
	var pending []*model.ScheduledCampaign
	for _, sc := range f.store.Scheduled {
		if sc.RecurringScheduleID != nil && *sc.RecurringScheduleID == scheduleID &&
			sc.Status == model.ScheduledCampaignStatusPending {
			pending = append(pending, sc)
		}
	}
	return pending
}

func TestCreate_SeedsFirstOccurrence(t *testing.T) {
	f := newFixture(t)

	schedule, err := f.service.Create(context.Background(), &model.CreateRecurringScheduleRequest{
		RuleID:    f.rule.ID,
		Frequency: model.RecurringFrequencyDaily,
		TimeOfDay: "09:00",
		Timezone:  "UTC",
		StartsAt:  f.now,
	})

	require.NoError(t, err)
	assert.True(t, schedule.IsActive)
	require.NotNil(t, schedule.NextScheduledFor)
	// 09:00 has passed relative to the noon anchor, so the first occurrence
	// lands tomorrow.
	assert.Equal(t, time.Date(2026, time.June, 16, 9, 0, 0, 0, time.UTC), schedule.NextScheduledFor.UTC())

	pending := f.pendingFor(schedule.ID)
	require.Len(t, pending, 1)
	assert.Equal(t, f.rule.ID, pending[0].RuleID)
	assert.Equal(t, *schedule.NextScheduledFor, pending[0].ScheduledFor)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Create(context.Background(), &model.CreateRecurringScheduleRequest{
		RuleID:    f.rule.ID,
		Frequency: model.RecurringFrequencyWeekly,
		TimeOfDay: "09:00",
		Timezone:  "UTC",
		StartsAt:  f.now,
	})
	assert.True(t, apperrors.IsBadRequest(err), "weekly requires day_of_week")

	_, err = f.service.Create(context.Background(), &model.CreateRecurringScheduleRequest{
		RuleID:     f.rule.ID,
		Frequency:  model.RecurringFrequencyMonthly,
		TimeOfDay:  "09:00",
		DayOfMonth: intPtr(32),
		Timezone:   "UTC",
		StartsAt:   f.now,
	})
	assert.True(t, apperrors.IsBadRequest(err), "day_of_month out of range")

	_, err = f.service.Create(context.Background(), &model.CreateRecurringScheduleRequest{
		RuleID:    uuid.New(),
		Frequency: model.RecurringFrequencyDaily,
		TimeOfDay: "09:00",
		Timezone:  "UTC",
		StartsAt:  f.now,
	})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestPauseCancelsPendingOccurrences(t *testing.T) {
	f := newFixture(t)

	schedule, err := f.service.Create(context.Background(), &model.CreateRecurringScheduleRequest{
		RuleID:    f.rule.ID,
		Frequency: model.RecurringFrequencyDaily,
		TimeOfDay: "09:00",
		Timezone:  "UTC",
		StartsAt:  f.now,
	})
	require.NoError(t, err)

	require.NoError(t, f.service.Pause(context.Background(), schedule.ID))

	assert.False(t, f.store.Recurring[schedule.ID].IsActive)
	assert.Nil(t, f.store.Recurring[schedule.ID].NextScheduledFor)
	assert.Empty(t, f.pendingFor(schedule.ID), "pause must leave no pending occurrence")
}

func TestResumeRecomputesFromNow(t *testing.T) {
	f := newFixture(t)

	schedule, err := f.service.Create(context.Background(), &model.CreateRecurringScheduleRequest{
		RuleID:    f.rule.ID,
		Frequency: model.RecurringFrequencyWeekly,
		TimeOfDay: "09:00",
		DayOfWeek: intPtr(1), // Monday
		Timezone:  "UTC",
		StartsAt:  f.now,
	})
	require.NoError(t, err)
	require.NoError(t, f.service.Pause(context.Background(), schedule.ID))

	resumed, err := f.service.Resume(context.Background(), schedule.ID)
	require.NoError(t, err)

	assert.True(t, resumed.IsActive)
	require.NotNil(t, resumed.NextScheduledFor)
	// June 15 2026 is a Monday; 09:00 has passed, so next Monday.
	assert.Equal(t, time.Date(2026, time.June, 22, 9, 0, 0, 0, time.UTC), resumed.NextScheduledFor.UTC())
	assert.Len(t, f.pendingFor(schedule.ID), 1)
}

func TestStopDeletesSchedule(t *testing.T) {
	f := newFixture(t)

	schedule, err := f.service.Create(context.Background(), &model.CreateRecurringScheduleRequest{
		RuleID:    f.rule.ID,
		Frequency: model.RecurringFrequencyDaily,
		TimeOfDay: "09:00",
		Timezone:  "UTC",
		StartsAt:  f.now,
	})
	require.NoError(t, err)

	require.NoError(t, f.service.Stop(context.Background(), schedule.ID))

	assert.NotContains(t, f.store.Recurring, schedule.ID)
	assert.Empty(t, f.pendingFor(schedule.ID))

	err = f.service.Stop(context.Background(), schedule.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestOnOccurrenceCompleted_SeedsExactlyOne(t *testing.T) {
	f := newFixture(t)

	schedule, err := f.service.Create(context.Background(), &model.CreateRecurringScheduleRequest{
		RuleID:    f.rule.ID,
		Frequency: model.RecurringFrequencyDaily,
		TimeOfDay: "09:00",
		Timezone:  "UTC",
		StartsAt:  f.now.AddDate(0, 0, -1),
	})
	require.NoError(t, err)

	// Simulate dispatch of the seeded occurrence.
	for _, sc := range f.pendingFor(schedule.ID) {
		sc.Status = model.ScheduledCampaignStatusCompleted
	}

	require.NoError(t, f.service.OnOccurrenceCompleted(context.Background(), schedule.ID))

	updated := f.store.Recurring[schedule.ID]
	require.NotNil(t, updated.LastExecutedAt)
	assert.Equal(t, f.now, *updated.LastExecutedAt)
	require.NotNil(t, updated.NextScheduledFor)
	assert.Equal(t, time.Date(2026, time.June, 16, 9, 0, 0, 0, time.UTC), updated.NextScheduledFor.UTC())
	assert.Len(t, f.pendingFor(schedule.ID), 1)
}

func TestOnOccurrenceCompleted_InactiveIsNoop(t *testing.T) {
	f := newFixture(t)

	schedule, err := f.service.Create(context.Background(), &model.CreateRecurringScheduleRequest{
		RuleID:    f.rule.ID,
		Frequency: model.RecurringFrequencyDaily,
		TimeOfDay: "09:00",
		Timezone:  "UTC",
		StartsAt:  f.now,
	})
	require.NoError(t, err)
	require.NoError(t, f.service.Pause(context.Background(), schedule.ID))

	require.NoError(t, f.service.OnOccurrenceCompleted(context.Background(), schedule.ID))

	assert.Empty(t, f.pendingFor(schedule.ID))
}

func TestOnOccurrenceCompleted_PastEndDeactivates(t *testing.T) {
	f := newFixture(t)

	endsAt := f.now.Add(-time.Hour)
	schedule := &model.RecurringSchedule{
		ID:        uuid.New(),
		RuleID:    f.rule.ID,
		Frequency: model.RecurringFrequencyDaily,
		TimeOfDay: "09:00",
		Timezone:  "UTC",
		StartsAt:  f.now.AddDate(0, 0, -30),
		EndsAt:    &endsAt,
		IsActive:  true,
	}
	f.store.Recurring[schedule.ID] = schedule

	require.NoError(t, f.service.OnOccurrenceCompleted(context.Background(), schedule.ID))

	assert.False(t, schedule.IsActive)
	assert.Nil(t, schedule.NextScheduledFor)
	assert.Empty(t, f.pendingFor(schedule.ID), "no occurrence may be seeded past ends_at")
}

func TestOnOccurrenceCompleted_StoppedScheduleIsNoop(t *testing.T) {
	f := newFixture(t)

	err := f.service.OnOccurrenceCompleted(context.Background(), uuid.New())

	assert.NoError(t, err)
}
