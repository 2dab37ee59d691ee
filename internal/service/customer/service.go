package customer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rallyhq/reengage-api/internal/model"
	"github.com/rallyhq/reengage-api/internal/repository"
	apperrors "github.com/rallyhq/reengage-api/pkg/errors"
	"github.com/rallyhq/reengage-api/pkg/logger"
)

// Service exposes the customer and vehicle read surface plus appointment
// booking. A booked appointment is what removes a vehicle from future
// cohorts of that service type.
type Service struct {
	repo   repository.VehicleRepository
	logger *logger.Logger
	now    func() time.Time
}

func NewService(repo repository.VehicleRepository, log *logger.Logger) *Service {
	return &Service{repo: repo, logger: log, now: time.Now}
}

func (s *Service) ListCustomers(ctx context.Context) ([]*model.CustomerWithVehicles, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) GetVehicle(ctx context.Context, id uuid.UUID) (*model.VehicleDetail, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) BookAppointment(ctx context.Context, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	if !req.StartsAt.After(s.now()) {
		return nil, apperrors.NewBadRequest("starts_at must be in the future", nil)
	}
	if _, err := s.repo.Get(ctx, req.VehicleID); err != nil {
		return nil, err
	}

	appointment := &model.Appointment{
		ID:        uuid.New(),
		VehicleID: req.VehicleID,
		Service:   req.Service,
		Status:    model.AppointmentStatusBooked,
		StartsAt:  req.StartsAt,
		EndsAt:    req.EndsAt,
		ThreadID:  req.ThreadID,
		Notes:     req.Notes,
	}
	if err := s.repo.CreateAppointment(ctx, appointment); err != nil {
		return nil, err
	}

	s.logger.Info("appointment booked", map[string]interface{}{
		"appointment_id": appointment.ID.String(),
		"vehicle_id":     appointment.VehicleID.String(),
		"service":        string(appointment.Service),
	})
	return appointment, nil
}
