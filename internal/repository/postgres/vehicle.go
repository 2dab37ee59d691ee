package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rallyhq/reengage-api/internal/model"
	apperrors "github.com/rallyhq/reengage-api/pkg/errors"
)

// eligibleRow flattens the vehicle, its owner and the most recent matching
// service record into one scannable row.
type eligibleRow struct {
	VehicleID        uuid.UUID  `db:"vehicle_id"`
	CustomerID       uuid.UUID  `db:"customer_id"`
	Make             string     `db:"make"`
	Model            string     `db:"model"`
	Year             int        `db:"year"`
	VehicleCreatedAt time.Time  `db:"vehicle_created_at"`
	FirstName        string     `db:"first_name"`
	LastName         string     `db:"last_name"`
	Email            string     `db:"email"`
	Phone            string     `db:"phone"`
	CustCreatedAt    time.Time  `db:"customer_created_at"`
	ServiceID        *uuid.UUID `db:"service_id"`
	PerformedAt      *time.Time `db:"performed_at"`
	ServiceCreatedAt *time.Time `db:"service_created_at"`
}

func (r *vehicleRepository) ListEligible(ctx context.Context, service model.ServiceType, cutoff, now time.Time) ([]*model.CohortMember, error) {
	query := `
		SELECT v.id AS vehicle_id, v.customer_id, v.make, v.model, v.year,
			   v.created_at AS vehicle_created_at,
			   c.first_name, c.last_name, c.email, c.phone,
			   c.created_at AS customer_created_at,
			   ls.id AS service_id, ls.performed_at,
			   ls.created_at AS service_created_at
		FROM vehicles v
		JOIN customers c ON c.id = v.customer_id
		LEFT JOIN LATERAL (
			SELECT sh.id, sh.performed_at, sh.created_at
			FROM service_history sh
			WHERE sh.vehicle_id = v.id AND sh.service = $1
			ORDER BY sh.performed_at DESC
			LIMIT 1
		) ls ON true
		WHERE EXISTS (
			SELECT 1 FROM service_history sh
			WHERE sh.vehicle_id = v.id
			  AND sh.service = $1
			  AND sh.performed_at <= $2
		)
		AND NOT EXISTS (
			SELECT 1 FROM appointments a
			WHERE a.vehicle_id = v.id
			  AND a.service = $1
			  AND a.status = 'BOOKED'
			  AND a.starts_at >= $3
		)
		ORDER BY ls.performed_at ASC
	`
	var rows []eligibleRow
	if err := r.db.SelectContext(ctx, &rows, query, service, cutoff, now); err != nil {
		return nil, fmt.Errorf("failed to query eligible vehicles: %w", err)
	}

	members := make([]*model.CohortMember, 0, len(rows))
	for _, row := range rows {
		member := &model.CohortMember{
			Vehicle: &model.Vehicle{
				ID:         row.VehicleID,
				CustomerID: row.CustomerID,
				Make:       row.Make,
				Model:      row.Model,
				Year:       row.Year,
				CreatedAt:  row.VehicleCreatedAt,
			},
			Customer: &model.Customer{
				ID:        row.CustomerID,
				FirstName: row.FirstName,
				LastName:  row.LastName,
				Email:     row.Email,
				Phone:     row.Phone,
				CreatedAt: row.CustCreatedAt,
			},
		}
		if row.ServiceID != nil {
			member.LastService = &model.ServiceHistory{
				ID:          *row.ServiceID,
				VehicleID:   row.VehicleID,
				Service:     service,
				PerformedAt: *row.PerformedAt,
				CreatedAt:   *row.ServiceCreatedAt,
			}
		}
		members = append(members, member)
	}
	return members, nil
}

func (r *vehicleRepository) Get(ctx context.Context, id uuid.UUID) (*model.VehicleDetail, error) {
	var vehicle model.Vehicle
	err := r.db.GetContext(ctx, &vehicle, `
		SELECT id, customer_id, make, model, year, created_at
		FROM vehicles
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("vehicle", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}

	var customer model.Customer
	err = r.db.GetContext(ctx, &customer, `
		SELECT id, first_name, last_name, email, phone, created_at
		FROM customers
		WHERE id = $1
	`, vehicle.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle owner: %w", err)
	}

	var history []*model.ServiceHistory
	err = r.db.SelectContext(ctx, &history, `
		SELECT id, vehicle_id, service, performed_at, created_at
		FROM service_history
		WHERE vehicle_id = $1
		ORDER BY performed_at DESC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list service history: %w", err)
	}

	var appointments []*model.Appointment
	err = r.db.SelectContext(ctx, &appointments, `
		SELECT id, vehicle_id, service, status, starts_at, ends_at,
			   thread_id, notes, created_at, updated_at
		FROM appointments
		WHERE vehicle_id = $1
		ORDER BY starts_at DESC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}

	return &model.VehicleDetail{
		Vehicle:        &vehicle,
		Customer:       &customer,
		ServiceHistory: history,
		Appointments:   appointments,
	}, nil
}

func (r *vehicleRepository) ListCustomers(ctx context.Context) ([]*model.CustomerWithVehicles, error) {
	var customers []*model.Customer
	err := r.db.SelectContext(ctx, &customers, `
		SELECT id, first_name, last_name, email, phone, created_at
		FROM customers
		ORDER BY last_name, first_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}

	var vehicles []*model.Vehicle
	err = r.db.SelectContext(ctx, &vehicles, `
		SELECT id, customer_id, make, model, year, created_at
		FROM vehicles
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}

	byCustomer := make(map[uuid.UUID][]*model.Vehicle, len(customers))
	for _, v := range vehicles {
		byCustomer[v.CustomerID] = append(byCustomer[v.CustomerID], v)
	}

	result := make([]*model.CustomerWithVehicles, 0, len(customers))
	for _, c := range customers {
		result = append(result, &model.CustomerWithVehicles{
			Customer: c,
			Vehicles: byCustomer[c.ID],
		})
	}
	return result, nil
}

func (r *vehicleRepository) CreateAppointment(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, vehicle_id, service, status, starts_at, ends_at,
			thread_id, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}
	appointment.CreatedAt = time.Now()
	appointment.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		appointment.ID,
		appointment.VehicleID,
		appointment.Service,
		appointment.Status,
		appointment.StartsAt,
		appointment.EndsAt,
		appointment.ThreadID,
		appointment.Notes,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}
