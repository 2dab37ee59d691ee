package campaign

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rallyhq/reengage-api/internal/email"
	"github.com/rallyhq/reengage-api/internal/model"
	"github.com/rallyhq/reengage-api/internal/repository/memory"
	apperrors "github.com/rallyhq/reengage-api/pkg/errors"
	"github.com/rallyhq/reengage-api/pkg/logger"
	"github.com/rallyhq/reengage-api/pkg/messaging"
	"github.com/rallyhq/reengage-api/pkg/metrics"
)

type recordingProgressor struct {
	runs []uuid.UUID
}

func (p *recordingProgressor) StartRun(runID uuid.UUID) {
	p.runs = append(p.runs, runID)
}

type fixture struct {
	store      *memory.Store
	service    *Service
	progressor *recordingProgressor
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	progressor := &recordingProgressor{}
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard, TimeFormat: time.RFC3339})
	m := metrics.NewMetricsWithRegisterer(prometheus.NewRegistry(), "reengage", "test")

	svc := NewService(
		memory.NewRuleRepository(store),
		memory.NewVehicleRepository(store),
		memory.NewCampaignRepository(store),
		memory.NewScheduleRepository(store),
		email.NewTemplateGenerator(""),
		progressor,
		messaging.NoopBroker{},
		m,
		log,
	)

	now := time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	return &fixture{store: store, service: svc, progressor: progressor, now: now}
}

func (f *fixture) addRule(cadenceMonths int) *model.Rule {
	rule := &model.Rule{
		ID:            uuid.New(),
		Name:          "oil change reminder",
		Service:       model.ServiceTypeOilChange,
		CadenceMonths: cadenceMonths,
		Timezone:      "UTC",
		Enabled:       true,
	}
	f.store.Rules[rule.ID] = rule
	return rule
}

func (f *fixture) addVehicle(lastServiced time.Time, service model.ServiceType) *model.Vehicle {
	customer := &model.Customer{
		ID:        uuid.New(),
		FirstName: "Dana",
		LastName:  "Okafor",
		Email:     "dana@example.com",
	}
	vehicle := &model.Vehicle{
		ID:         uuid.New(),
		CustomerID: customer.ID,
		Make:       "Honda",
		Model:      "Civic",
		Year:       2020,
	}
	f.store.Customers[customer.ID] = customer
	f.store.Vehicles[vehicle.ID] = vehicle
	f.store.ServiceHistory = append(f.store.ServiceHistory, &model.ServiceHistory{
		ID:          uuid.New(),
		VehicleID:   vehicle.ID,
		Service:     service,
		PerformedAt: lastServiced,
	})
	return vehicle
}

func TestExecuteRule_EmptyCohort(t *testing.T) {
	f := newFixture(t)
	rule := f.addRule(6)

	run, err := f.service.ExecuteRule(context.Background(), rule.ID)

	require.NoError(t, err)
	assert.Nil(t, run)
	assert.Empty(t, f.store.Runs)
	assert.Empty(t, f.progressor.runs)
}

func TestExecuteRule_FanOut(t *testing.T) {
	f := newFixture(t)
	rule := f.addRule(6)

	overdue := f.addVehicle(f.now.AddDate(0, -7, 0), model.ServiceTypeOilChange)
	recent := f.addVehicle(f.now.AddDate(0, -1, 0), model.ServiceTypeOilChange)

	// Overdue but already re-booked; must be excluded from the cohort.
	booked := f.addVehicle(f.now.AddDate(0, -8, 0), model.ServiceTypeOilChange)
	f.store.Appointments[uuid.New()] = &model.Appointment{
		ID:        uuid.New(),
		VehicleID: booked.ID,
		Service:   model.ServiceTypeOilChange,
		Status:    model.AppointmentStatusBooked,
		StartsAt:  f.now.Add(48 * time.Hour),
	}

	run, err := f.service.ExecuteRule(context.Background(), rule.ID)

	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, rule.ID, run.RuleID)
	assert.Nil(t, run.CompletedAt)

	require.Len(t, f.store.Targets, 1)
	for _, target := range f.store.Targets {
		assert.Equal(t, overdue.ID, target.VehicleID)
		assert.Equal(t, run.ID, target.RunID)
	}

	require.Len(t, f.store.Emails, 1)
	for _, e := range f.store.Emails {
		assert.Equal(t, model.EmailStatusQueued, e.Status)
		assert.Equal(t, "dana@example.com", e.ToAddress)
		assert.NotEmpty(t, e.Subject)
		assert.NotEmpty(t, e.Body)
		assert.NotEqual(t, recent.ID, e.VehicleID)
	}

	require.Len(t, f.progressor.runs, 1)
	assert.Equal(t, run.ID, f.progressor.runs[0])
}

func TestExecuteRule_RuleNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.ExecuteRule(context.Background(), uuid.New())

	assert.True(t, apperrors.IsNotFound(err))
}

func TestExecuteScheduled_ClaimedOnlyOnce(t *testing.T) {
	f := newFixture(t)
	rule := f.addRule(6)
	f.addVehicle(f.now.AddDate(0, -7, 0), model.ServiceTypeOilChange)

	scheduled := &model.ScheduledCampaign{
		ID:           uuid.New(),
		RuleID:       rule.ID,
		ScheduledFor: f.now.Add(-time.Minute),
		Status:       model.ScheduledCampaignStatusPending,
	}
	f.store.Scheduled[scheduled.ID] = scheduled

	claimed, err := f.service.ExecuteScheduled(context.Background(), scheduled)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, model.ScheduledCampaignStatusCompleted, scheduled.Status)
	require.NotNil(t, scheduled.ExecutedRunID)
	assert.Len(t, f.store.Runs, 1)

	claimed, err = f.service.ExecuteScheduled(context.Background(), scheduled)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Len(t, f.store.Runs, 1, "a lost claim must not execute again")
}

func TestExecuteScheduled_EmptyCohortCompletesWithoutRun(t *testing.T) {
	f := newFixture(t)
	rule := f.addRule(6)

	scheduled := &model.ScheduledCampaign{
		ID:           uuid.New(),
		RuleID:       rule.ID,
		ScheduledFor: f.now.Add(-time.Minute),
		Status:       model.ScheduledCampaignStatusPending,
	}
	f.store.Scheduled[scheduled.ID] = scheduled

	claimed, err := f.service.ExecuteScheduled(context.Background(), scheduled)

	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, model.ScheduledCampaignStatusCompleted, scheduled.Status)
	assert.Nil(t, scheduled.ExecutedRunID)
	assert.NotNil(t, scheduled.ExecutedAt)
}

func TestExecuteScheduled_FailureIsTerminal(t *testing.T) {
	f := newFixture(t)

	scheduled := &model.ScheduledCampaign{
		ID:           uuid.New(),
		RuleID:       uuid.New(), // rule does not exist
		ScheduledFor: f.now.Add(-time.Minute),
		Status:       model.ScheduledCampaignStatusPending,
	}
	f.store.Scheduled[scheduled.ID] = scheduled

	claimed, err := f.service.ExecuteScheduled(context.Background(), scheduled)

	assert.True(t, claimed)
	assert.Error(t, err)
	assert.Equal(t, model.ScheduledCampaignStatusFailed, scheduled.Status)
}

func TestScheduleCampaign_RejectsPastInstant(t *testing.T) {
	f := newFixture(t)
	rule := f.addRule(6)

	_, err := f.service.ScheduleCampaign(context.Background(), &model.ScheduleCampaignRequest{
		RuleID:       rule.ID,
		ScheduledFor: f.now.Add(-time.Second),
		Timezone:     "UTC",
	})
	assert.True(t, apperrors.IsBadRequest(err))

	_, err = f.service.ScheduleCampaign(context.Background(), &model.ScheduleCampaignRequest{
		RuleID:       rule.ID,
		ScheduledFor: f.now,
		Timezone:     "UTC",
	})
	assert.True(t, apperrors.IsBadRequest(err), "the exact current instant is not in the future")
}

func TestScheduleCampaign_Pending(t *testing.T) {
	f := newFixture(t)
	rule := f.addRule(6)

	scheduled, err := f.service.ScheduleCampaign(context.Background(), &model.ScheduleCampaignRequest{
		RuleID:       rule.ID,
		ScheduledFor: f.now.Add(time.Hour),
		Timezone:     "America/New_York",
	})

	require.NoError(t, err)
	assert.Equal(t, model.ScheduledCampaignStatusPending, scheduled.Status)
	assert.Contains(t, f.store.Scheduled, scheduled.ID)
}

func TestCancelScheduled(t *testing.T) {
	f := newFixture(t)
	rule := f.addRule(6)

	pending := &model.ScheduledCampaign{
		ID:           uuid.New(),
		RuleID:       rule.ID,
		ScheduledFor: f.now.Add(time.Hour),
		Status:       model.ScheduledCampaignStatusPending,
	}
	f.store.Scheduled[pending.ID] = pending

	cancelled, err := f.service.CancelScheduled(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ScheduledCampaignStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)

	executing := &model.ScheduledCampaign{
		ID:           uuid.New(),
		RuleID:       rule.ID,
		ScheduledFor: f.now,
		Status:       model.ScheduledCampaignStatusExecuting,
	}
	f.store.Scheduled[executing.ID] = executing

	_, err = f.service.CancelScheduled(context.Background(), executing.ID)
	assert.True(t, apperrors.IsInvalidState(err))

	_, err = f.service.CancelScheduled(context.Background(), uuid.New())
	assert.True(t, apperrors.IsNotFound(err))
}
