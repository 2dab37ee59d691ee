package model

import (
	"time"

	"github.com/google/uuid"
)

// RuleRun is one atomic execution of a rule. CompletedAt stays null while any
// message in the run is still short of a terminal delivery state, and is set
// exactly once.
type RuleRun struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	RuleID      uuid.UUID  `db:"rule_id" json:"rule_id"`
	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// RuleTarget records that a vehicle was included in a run. It is the audit
// trail for cohort membership at execution time.
type RuleTarget struct {
	ID        uuid.UUID `db:"id" json:"id"`
	RunID     uuid.UUID `db:"run_id" json:"run_id"`
	RuleID    uuid.UUID `db:"rule_id" json:"rule_id"`
	VehicleID uuid.UUID `db:"vehicle_id" json:"vehicle_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type EmailStatus string

const (
	EmailStatusQueued    EmailStatus = "QUEUED"
	EmailStatusSent      EmailStatus = "SENT"
	EmailStatusDelivered EmailStatus = "DELIVERED"
)

// Email is one outbound message generated for one cohort member within one
// run. Delivery timestamps are monotonic: each is set once and never unset,
// and status only moves forward.
type Email struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	RunID       uuid.UUID   `db:"run_id" json:"run_id"`
	RuleID      uuid.UUID   `db:"rule_id" json:"rule_id"`
	CustomerID  uuid.UUID   `db:"customer_id" json:"customer_id"`
	VehicleID   uuid.UUID   `db:"vehicle_id" json:"vehicle_id"`
	ToAddress   string      `db:"to_address" json:"to_address"`
	Subject     string      `db:"subject" json:"subject"`
	Body        string      `db:"body" json:"body"`
	ThreadID    string      `db:"thread_id" json:"thread_id"`
	Status      EmailStatus `db:"status" json:"status"`
	QueuedAt    time.Time   `db:"queued_at" json:"queued_at"`
	SentAt      *time.Time  `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt *time.Time  `db:"delivered_at" json:"delivered_at,omitempty"`
}

// RunSummary is the monitoring list view of a run.
type RunSummary struct {
	Run         *RuleRun `json:"run"`
	Rule        *Rule    `json:"rule"`
	EmailCount  int      `json:"email_count"`
	TargetCount int      `json:"target_count"`
}

// RunDetail is the monitoring detail view of a run.
type RunDetail struct {
	Run    *RuleRun `json:"run"`
	Rule   *Rule    `json:"rule"`
	Emails []*Email `json:"emails"`
}
