// Seeder populates the database with a demo fleet: customers, vehicles,
// service history, an already-booked appointment here and there, and a
// starter rule per service type. Intended for local development.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/rallyhq/reengage-api/internal/config"
	"github.com/rallyhq/reengage-api/internal/model"
	"github.com/rallyhq/reengage-api/internal/repository/postgres"
)

var services = []model.ServiceType{
	model.ServiceTypeRoutineMaintenance,
	model.ServiceTypeOilChange,
	model.ServiceTypeBrakeInspection,
	model.ServiceTypeTireRotation,
	model.ServiceTypeBatteryCheck,
}

func main() {
	customers := flag.Int("customers", 50, "number of customers to create")
	seed := flag.Int64("seed", 0, "fake data seed, 0 for random")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if *seed != 0 {
		gofakeit.Seed(*seed)
		rand.Seed(*seed)
	}

	ctx := context.Background()
	now := time.Now()

	for i := 0; i < *customers; i++ {
		customerID := uuid.New()
		_, err := db.ExecContext(ctx, `
			INSERT INTO customers (id, first_name, last_name, email, phone, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, customerID, gofakeit.FirstName(), gofakeit.LastName(), gofakeit.Email(), gofakeit.Phone(), now)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to insert customer")
		}

		vehicles := 1 + rand.Intn(2)
		for v := 0; v < vehicles; v++ {
			vehicleID := uuid.New()
			_, err := db.ExecContext(ctx, `
				INSERT INTO vehicles (id, customer_id, make, model, year, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, vehicleID, customerID, gofakeit.CarMaker(), gofakeit.CarModel(), gofakeit.Number(2005, 2026), now)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to insert vehicle")
			}

			// A few service visits spread over the past two years, so some
			// vehicles are overdue for re-engagement and some are not.
			visits := 1 + rand.Intn(4)
			for s := 0; s < visits; s++ {
				performed := now.AddDate(0, -rand.Intn(24), -rand.Intn(28))
				_, err := db.ExecContext(ctx, `
					INSERT INTO service_history (id, vehicle_id, service, performed_at, created_at)
					VALUES ($1, $2, $3, $4, $5)
				`, uuid.New(), vehicleID, services[rand.Intn(len(services))], performed, now)
				if err != nil {
					log.Fatal().Err(err).Msg("failed to insert service history")
				}
			}

			// One in ten vehicles already has a future booking.
			if rand.Intn(10) == 0 {
				starts := now.AddDate(0, 0, 1+rand.Intn(14))
				_, err := db.ExecContext(ctx, `
					INSERT INTO appointments (id, vehicle_id, service, status, starts_at, ends_at, notes, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				`, uuid.New(), vehicleID, services[rand.Intn(len(services))],
					model.AppointmentStatusBooked, starts, starts.Add(time.Hour),
					gofakeit.Sentence(6), now, now)
				if err != nil {
					log.Fatal().Err(err).Msg("failed to insert appointment")
				}
			}
		}
	}

	template := "Hi {firstName}, your {year} {make} {model} is due for {service}. " +
		"Your last visit was {lastServiceDate}. Book online any time."

	for _, service := range services {
		_, err := db.ExecContext(ctx, `
			INSERT INTO rules (id, name, service, cadence_months, send_window_days, send_window_hours, timezone, enabled, email_template, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, uuid.New(), fmt.Sprintf("%s reminder", service), service, 6, 7, 9,
			"America/New_York", true, template, now, now)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to insert rule")
		}
	}

	log.Info().Int("customers", *customers).Msg("seed complete")
}
