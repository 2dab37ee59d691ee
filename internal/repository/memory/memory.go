// Package memory provides map-backed repository implementations with the
// same conditional-update semantics as the postgres layer. Tests use them to
// exercise state machines without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rallyhq/reengage-api/internal/model"
	apperrors "github.com/rallyhq/reengage-api/pkg/errors"
)

type Store struct {
	mu sync.Mutex

	Rules          map[uuid.UUID]*model.Rule
	Customers      map[uuid.UUID]*model.Customer
	Vehicles       map[uuid.UUID]*model.Vehicle
	ServiceHistory []*model.ServiceHistory
	Appointments   map[uuid.UUID]*model.Appointment

	Runs      map[uuid.UUID]*model.RuleRun
	Targets   map[uuid.UUID]*model.RuleTarget
	Emails    map[uuid.UUID]*model.Email
	Scheduled map[uuid.UUID]*model.ScheduledCampaign
	Recurring map[uuid.UUID]*model.RecurringSchedule
}

func NewStore() *Store {
	return &Store{
		Rules:        make(map[uuid.UUID]*model.Rule),
		Customers:    make(map[uuid.UUID]*model.Customer),
		Vehicles:     make(map[uuid.UUID]*model.Vehicle),
		Appointments: make(map[uuid.UUID]*model.Appointment),
		Runs:         make(map[uuid.UUID]*model.RuleRun),
		Targets:      make(map[uuid.UUID]*model.RuleTarget),
		Emails:       make(map[uuid.UUID]*model.Email),
		Scheduled:    make(map[uuid.UUID]*model.ScheduledCampaign),
		Recurring:    make(map[uuid.UUID]*model.RecurringSchedule),
	}
}

// RuleRepository

type RuleRepository struct{ store *Store }

func NewRuleRepository(store *Store) *RuleRepository { return &RuleRepository{store: store} }

func (r *RuleRepository) Create(_ context.Context, rule *model.Rule) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	r.store.Rules[rule.ID] = rule
	return nil
}

func (r *RuleRepository) Get(_ context.Context, id uuid.UUID) (*model.Rule, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	rule, ok := r.store.Rules[id]
	if !ok {
		return nil, apperrors.NewNotFound("rule", nil)
	}
	return rule, nil
}

func (r *RuleRepository) List(_ context.Context) ([]*model.Rule, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	rules := make([]*model.Rule, 0, len(r.store.Rules))
	for _, rule := range r.store.Rules {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].CreatedAt.After(rules[j].CreatedAt) })
	return rules, nil
}

// VehicleRepository

type VehicleRepository struct{ store *Store }

func NewVehicleRepository(store *Store) *VehicleRepository {
	return &VehicleRepository{store: store}
}

func (r *VehicleRepository) ListEligible(_ context.Context, service model.ServiceType, cutoff, now time.Time) ([]*model.CohortMember, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var members []*model.CohortMember
	for _, v := range r.store.Vehicles {
		qualifies := false
		var last *model.ServiceHistory
		for _, sh := range r.store.ServiceHistory {
			if sh.VehicleID != v.ID || sh.Service != service {
				continue
			}
			if !sh.PerformedAt.After(cutoff) {
				qualifies = true
			}
			if last == nil || sh.PerformedAt.After(last.PerformedAt) {
				last = sh
			}
		}
		if !qualifies {
			continue
		}

		blocked := false
		for _, a := range r.store.Appointments {
			if a.VehicleID == v.ID && a.Service == service &&
				a.Status == model.AppointmentStatusBooked && !a.StartsAt.Before(now) {
				blocked = true
				break
			}
		}
		if blocked {
			continue
		}

		members = append(members, &model.CohortMember{
			Vehicle:     v,
			Customer:    r.store.Customers[v.CustomerID],
			LastService: last,
		})
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].Vehicle.ID.String() < members[j].Vehicle.ID.String()
	})
	return members, nil
}

func (r *VehicleRepository) Get(_ context.Context, id uuid.UUID) (*model.VehicleDetail, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	v, ok := r.store.Vehicles[id]
	if !ok {
		return nil, apperrors.NewNotFound("vehicle", nil)
	}
	detail := &model.VehicleDetail{Vehicle: v, Customer: r.store.Customers[v.CustomerID]}
	for _, sh := range r.store.ServiceHistory {
		if sh.VehicleID == id {
			detail.ServiceHistory = append(detail.ServiceHistory, sh)
		}
	}
	for _, a := range r.store.Appointments {
		if a.VehicleID == id {
			detail.Appointments = append(detail.Appointments, a)
		}
	}
	return detail, nil
}

func (r *VehicleRepository) ListCustomers(_ context.Context) ([]*model.CustomerWithVehicles, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	result := make([]*model.CustomerWithVehicles, 0, len(r.store.Customers))
	for _, c := range r.store.Customers {
		cw := &model.CustomerWithVehicles{Customer: c}
		for _, v := range r.store.Vehicles {
			if v.CustomerID == c.ID {
				cw.Vehicles = append(cw.Vehicles, v)
			}
		}
		result = append(result, cw)
	}
	return result, nil
}

func (r *VehicleRepository) CreateAppointment(_ context.Context, appointment *model.Appointment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}
	r.store.Appointments[appointment.ID] = appointment
	return nil
}

// CampaignRepository

type CampaignRepository struct{ store *Store }

func NewCampaignRepository(store *Store) *CampaignRepository {
	return &CampaignRepository{store: store}
}

func (r *CampaignRepository) CreateRun(_ context.Context, run *model.RuleRun, targets []*model.RuleTarget, emails []*model.Email) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.Runs[run.ID] = run
	for _, t := range targets {
		r.store.Targets[t.ID] = t
	}
	for _, e := range emails {
		r.store.Emails[e.ID] = e
	}
	return nil
}

func (r *CampaignRepository) GetRun(_ context.Context, id uuid.UUID) (*model.RuleRun, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	run, ok := r.store.Runs[id]
	if !ok {
		return nil, apperrors.NewNotFound("run", nil)
	}
	return run, nil
}

func (r *CampaignRepository) ListRuns(_ context.Context, incompleteOnly bool) ([]*model.RunSummary, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var summaries []*model.RunSummary
	for _, run := range r.store.Runs {
		if incompleteOnly && run.CompletedAt != nil {
			continue
		}
		summary := &model.RunSummary{Run: run, Rule: r.store.Rules[run.RuleID]}
		for _, e := range r.store.Emails {
			if e.RunID == run.ID {
				summary.EmailCount++
			}
		}
		for _, t := range r.store.Targets {
			if t.RunID == run.ID {
				summary.TargetCount++
			}
		}
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Run.StartedAt.After(summaries[j].Run.StartedAt)
	})
	return summaries, nil
}

func (r *CampaignRepository) GetRunDetail(ctx context.Context, id uuid.UUID) (*model.RunDetail, error) {
	run, err := r.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	detail := &model.RunDetail{Run: run, Rule: r.store.Rules[run.RuleID]}
	for _, e := range r.store.Emails {
		if e.RunID == id {
			detail.Emails = append(detail.Emails, e)
		}
	}
	sort.Slice(detail.Emails, func(i, j int) bool {
		return detail.Emails[i].ID.String() < detail.Emails[j].ID.String()
	})
	return detail, nil
}

func (r *CampaignRepository) ListQueuedEmails(_ context.Context, runID uuid.UUID) ([]*model.Email, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var emails []*model.Email
	for _, e := range r.store.Emails {
		if e.RunID == runID && e.Status == model.EmailStatusQueued {
			emails = append(emails, e)
		}
	}
	sort.Slice(emails, func(i, j int) bool { return emails[i].ID.String() < emails[j].ID.String() })
	return emails, nil
}

func (r *CampaignRepository) MarkEmailSent(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	e, ok := r.store.Emails[id]
	if !ok || e.Status != model.EmailStatusQueued {
		return false, nil
	}
	e.Status = model.EmailStatusSent
	e.SentAt = &at
	return true, nil
}

func (r *CampaignRepository) MarkEmailDelivered(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	e, ok := r.store.Emails[id]
	if !ok || e.Status != model.EmailStatusSent {
		return false, nil
	}
	e.Status = model.EmailStatusDelivered
	e.DeliveredAt = &at
	return true, nil
}

func (r *CampaignRepository) CountUndelivered(_ context.Context, runID uuid.UUID) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	count := 0
	for _, e := range r.store.Emails {
		if e.RunID == runID && e.Status != model.EmailStatusDelivered {
			count++
		}
	}
	return count, nil
}

func (r *CampaignRepository) CompleteRun(_ context.Context, runID uuid.UUID, at time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	run, ok := r.store.Runs[runID]
	if !ok || run.CompletedAt != nil {
		return false, nil
	}
	run.CompletedAt = &at
	return true, nil
}

// ScheduleRepository

type ScheduleRepository struct{ store *Store }

func NewScheduleRepository(store *Store) *ScheduleRepository {
	return &ScheduleRepository{store: store}
}

func (r *ScheduleRepository) CreateScheduled(_ context.Context, sc *model.ScheduledCampaign) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.insertScheduled(sc)
}

func (r *ScheduleRepository) insertScheduled(sc *model.ScheduledCampaign) error {
	if sc.ID == uuid.Nil {
		sc.ID = uuid.New()
	}
	if sc.Status == "" {
		sc.Status = model.ScheduledCampaignStatusPending
	}
	r.store.Scheduled[sc.ID] = sc
	return nil
}

func (r *ScheduleRepository) GetScheduled(_ context.Context, id uuid.UUID) (*model.ScheduledCampaign, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	sc, ok := r.store.Scheduled[id]
	if !ok {
		return nil, apperrors.NewNotFound("scheduled campaign", nil)
	}
	return sc, nil
}

func (r *ScheduleRepository) ListScheduled(_ context.Context, pendingOnly bool) ([]*model.ScheduledCampaign, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var result []*model.ScheduledCampaign
	for _, sc := range r.store.Scheduled {
		if pendingOnly && sc.Status != model.ScheduledCampaignStatusPending {
			continue
		}
		result = append(result, sc)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ScheduledFor.Before(result[j].ScheduledFor) })
	return result, nil
}

func (r *ScheduleRepository) ListDue(_ context.Context, now time.Time) ([]*model.ScheduledCampaign, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var due []*model.ScheduledCampaign
	for _, sc := range r.store.Scheduled {
		if sc.Status == model.ScheduledCampaignStatusPending && !sc.ScheduledFor.After(now) {
			due = append(due, sc)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledFor.Before(due[j].ScheduledFor) })
	return due, nil
}

func (r *ScheduleRepository) ClaimScheduled(_ context.Context, id uuid.UUID) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	sc, ok := r.store.Scheduled[id]
	if !ok || sc.Status != model.ScheduledCampaignStatusPending {
		return false, nil
	}
	sc.Status = model.ScheduledCampaignStatusExecuting
	return true, nil
}

func (r *ScheduleRepository) CompleteScheduled(_ context.Context, id uuid.UUID, runID *uuid.UUID, at time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	sc, ok := r.store.Scheduled[id]
	if !ok || sc.Status != model.ScheduledCampaignStatusExecuting {
		return false, nil
	}
	sc.Status = model.ScheduledCampaignStatusCompleted
	sc.ExecutedRunID = runID
	sc.ExecutedAt = &at
	return true, nil
}

func (r *ScheduleRepository) FailScheduled(_ context.Context, id uuid.UUID) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	sc, ok := r.store.Scheduled[id]
	if !ok || sc.Status != model.ScheduledCampaignStatusExecuting {
		return false, nil
	}
	sc.Status = model.ScheduledCampaignStatusFailed
	return true, nil
}

func (r *ScheduleRepository) CancelScheduled(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	sc, ok := r.store.Scheduled[id]
	if !ok || sc.Status != model.ScheduledCampaignStatusPending {
		return false, nil
	}
	sc.Status = model.ScheduledCampaignStatusCancelled
	sc.CancelledAt = &at
	return true, nil
}

func (r *ScheduleRepository) CompleteScheduledByRun(_ context.Context, runID uuid.UUID, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, sc := range r.store.Scheduled {
		if sc.ExecutedRunID != nil && *sc.ExecutedRunID == runID &&
			sc.Status == model.ScheduledCampaignStatusExecuting {
			sc.Status = model.ScheduledCampaignStatusCompleted
			if sc.ExecutedAt == nil {
				sc.ExecutedAt = &at
			}
		}
	}
	return nil
}

func (r *ScheduleRepository) CreateRecurringWithPending(_ context.Context, schedule *model.RecurringSchedule, pending *model.ScheduledCampaign) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if schedule.ID == uuid.Nil {
		schedule.ID = uuid.New()
	}
	r.store.Recurring[schedule.ID] = schedule
	pending.RecurringScheduleID = &schedule.ID
	return r.insertScheduled(pending)
}

func (r *ScheduleRepository) GetRecurring(_ context.Context, id uuid.UUID) (*model.RecurringSchedule, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	schedule, ok := r.store.Recurring[id]
	if !ok {
		return nil, apperrors.NewNotFound("recurring schedule", nil)
	}
	return schedule, nil
}

func (r *ScheduleRepository) ListRecurring(_ context.Context, activeOnly bool) ([]*model.RecurringSchedule, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var result []*model.RecurringSchedule
	for _, schedule := range r.store.Recurring {
		if activeOnly && !schedule.IsActive {
			continue
		}
		result = append(result, schedule)
	}
	return result, nil
}

func (r *ScheduleRepository) PauseRecurring(_ context.Context, id uuid.UUID, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.cancelPending(id, at)
	if schedule, ok := r.store.Recurring[id]; ok {
		schedule.IsActive = false
		schedule.NextScheduledFor = nil
	}
	return nil
}

func (r *ScheduleRepository) ResumeRecurringWithPending(_ context.Context, id uuid.UUID, next time.Time, pending *model.ScheduledCampaign) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if schedule, ok := r.store.Recurring[id]; ok {
		schedule.IsActive = true
		schedule.NextScheduledFor = &next
	}
	pending.RecurringScheduleID = &id
	return r.insertScheduled(pending)
}

func (r *ScheduleRepository) StopRecurring(_ context.Context, id uuid.UUID, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.cancelPending(id, at)
	delete(r.store.Recurring, id)
	return nil
}

func (r *ScheduleRepository) AdvanceRecurring(_ context.Context, id uuid.UUID, next, executedAt time.Time, pending *model.ScheduledCampaign) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	schedule, ok := r.store.Recurring[id]
	if ok && schedule.IsActive {
		schedule.LastExecutedAt = &executedAt
		schedule.NextScheduledFor = &next
	}
	pending.RecurringScheduleID = &id
	return r.insertScheduled(pending)
}

func (r *ScheduleRepository) DeactivateRecurring(_ context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if schedule, ok := r.store.Recurring[id]; ok {
		schedule.IsActive = false
		schedule.NextScheduledFor = nil
	}
	return nil
}

func (r *ScheduleRepository) cancelPending(recurringID uuid.UUID, at time.Time) {
	for _, sc := range r.store.Scheduled {
		if sc.RecurringScheduleID != nil && *sc.RecurringScheduleID == recurringID &&
			sc.Status == model.ScheduledCampaignStatusPending {
			sc.Status = model.ScheduledCampaignStatusCancelled
			sc.CancelledAt = &at
		}
	}
}
