package model

import (
	"time"

	"github.com/google/uuid"
)

type Customer struct {
	ID        uuid.UUID `db:"id" json:"id"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Vehicle struct {
	ID         uuid.UUID `db:"id" json:"id"`
	CustomerID uuid.UUID `db:"customer_id" json:"customer_id"`
	Make       string    `db:"make" json:"make"`
	Model      string    `db:"model" json:"model"`
	Year       int       `db:"year" json:"year"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ServiceHistory records one performed service event. Append-only.
type ServiceHistory struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	VehicleID   uuid.UUID   `db:"vehicle_id" json:"vehicle_id"`
	Service     ServiceType `db:"service" json:"service"`
	PerformedAt time.Time   `db:"performed_at" json:"performed_at"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

type AppointmentStatus string

const (
	AppointmentStatusBooked    AppointmentStatus = "BOOKED"
	AppointmentStatusCompleted AppointmentStatus = "COMPLETED"
	AppointmentStatusCancelled AppointmentStatus = "CANCELLED"
)

type Appointment struct {
	ID        uuid.UUID         `db:"id" json:"id"`
	VehicleID uuid.UUID         `db:"vehicle_id" json:"vehicle_id"`
	Service   ServiceType       `db:"service" json:"service"`
	Status    AppointmentStatus `db:"status" json:"status"`
	StartsAt  time.Time         `db:"starts_at" json:"starts_at"`
	EndsAt    time.Time         `db:"ends_at" json:"ends_at"`
	ThreadID  *string           `db:"thread_id" json:"thread_id,omitempty"`
	Notes     string            `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt time.Time         `db:"updated_at" json:"updated_at"`
}

type CreateAppointmentRequest struct {
	VehicleID uuid.UUID   `json:"vehicle_id" binding:"required"`
	Service   ServiceType `json:"service" binding:"required,oneof=ROUTINE_MAINTENANCE OIL_CHANGE BRAKE_INSPECTION TIRE_ROTATION BATTERY_CHECK OTHER"`
	StartsAt  time.Time   `json:"starts_at" binding:"required"`
	EndsAt    time.Time   `json:"ends_at" binding:"required,gtfield=StartsAt"`
	ThreadID  *string     `json:"thread_id"`
	Notes     string      `json:"notes" binding:"max=1000"`
}

// VehicleDetail is the read view used by the operator dashboard.
type VehicleDetail struct {
	Vehicle        *Vehicle          `json:"vehicle"`
	Customer       *Customer         `json:"customer"`
	ServiceHistory []*ServiceHistory `json:"service_history"`
	Appointments   []*Appointment    `json:"appointments"`
}

// CustomerWithVehicles is the customer list view.
type CustomerWithVehicles struct {
	Customer *Customer  `json:"customer"`
	Vehicles []*Vehicle `json:"vehicles"`
}
