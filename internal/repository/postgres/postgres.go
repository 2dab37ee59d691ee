package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/rallyhq/reengage-api/internal/repository"
)

type ruleRepository struct {
	db *sqlx.DB
}

type vehicleRepository struct {
	db *sqlx.DB
}

type campaignRepository struct {
	db *sqlx.DB
}

type scheduleRepository struct {
	db *sqlx.DB
}

func NewRuleRepository(db *sqlx.DB) repository.RuleRepository {
	return &ruleRepository{db: db}
}

func NewVehicleRepository(db *sqlx.DB) repository.VehicleRepository {
	return &vehicleRepository{db: db}
}

func NewCampaignRepository(db *sqlx.DB) repository.CampaignRepository {
	return &campaignRepository{db: db}
}

func NewScheduleRepository(db *sqlx.DB) repository.ScheduleRepository {
	return &scheduleRepository{db: db}
}
