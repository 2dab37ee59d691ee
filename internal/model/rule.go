package model

import (
	"time"

	"github.com/google/uuid"
)

type ServiceType string

const (
	ServiceTypeRoutineMaintenance ServiceType = "ROUTINE_MAINTENANCE"
	ServiceTypeOilChange          ServiceType = "OIL_CHANGE"
	ServiceTypeBrakeInspection    ServiceType = "BRAKE_INSPECTION"
	ServiceTypeTireRotation       ServiceType = "TIRE_ROTATION"
	ServiceTypeBatteryCheck       ServiceType = "BATTERY_CHECK"
	ServiceTypeOther              ServiceType = "OTHER"
)

// Rule is an operator-defined re-engagement policy: contact owners of
// vehicles whose last service of the given type is older than CadenceMonths.
type Rule struct {
	ID              uuid.UUID   `db:"id" json:"id"`
	Name            string      `db:"name" json:"name"`
	Service         ServiceType `db:"service" json:"service"`
	CadenceMonths   int         `db:"cadence_months" json:"cadence_months"`
	SendWindowDays  int         `db:"send_window_days" json:"send_window_days"`
	SendWindowHours int         `db:"send_window_hours" json:"send_window_hours"`
	Timezone        string      `db:"timezone" json:"timezone"`
	Enabled         bool        `db:"enabled" json:"enabled"`
	EmailTemplate   string      `db:"email_template" json:"email_template"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

type CreateRuleRequest struct {
	Name            string      `json:"name" binding:"required"`
	Service         ServiceType `json:"service" binding:"required,oneof=ROUTINE_MAINTENANCE OIL_CHANGE BRAKE_INSPECTION TIRE_ROTATION BATTERY_CHECK OTHER"`
	CadenceMonths   int         `json:"cadence_months" binding:"required,min=1"`
	SendWindowDays  int         `json:"send_window_days" binding:"min=0"`
	SendWindowHours int         `json:"send_window_hours" binding:"min=0,max=23"`
	Timezone        string      `json:"timezone" binding:"required,timezone"`
	Enabled         bool        `json:"enabled"`
	EmailTemplate   string      `json:"email_template" binding:"required"`
}

// CohortMember is a computed view of one eligible vehicle. It exists only for
// the duration of one cohort computation and is never persisted.
type CohortMember struct {
	Vehicle     *Vehicle        `json:"vehicle"`
	Customer    *Customer       `json:"customer"`
	LastService *ServiceHistory `json:"last_service,omitempty"`
}
