package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/rallyhq/reengage-api/internal/config"
	"github.com/rallyhq/reengage-api/internal/email"
	campaignHandler "github.com/rallyhq/reengage-api/internal/handler/campaign"
	customerHandler "github.com/rallyhq/reengage-api/internal/handler/customer"
	ruleHandler "github.com/rallyhq/reengage-api/internal/handler/rule"
	scheduleHandler "github.com/rallyhq/reengage-api/internal/handler/schedule"
	"github.com/rallyhq/reengage-api/internal/repository/postgres"
	"github.com/rallyhq/reengage-api/internal/router"
	campaignService "github.com/rallyhq/reengage-api/internal/service/campaign"
	customerService "github.com/rallyhq/reengage-api/internal/service/customer"
	ruleService "github.com/rallyhq/reengage-api/internal/service/rule"
	scheduleService "github.com/rallyhq/reengage-api/internal/service/schedule"
	"github.com/rallyhq/reengage-api/internal/worker"
	"github.com/rallyhq/reengage-api/pkg/logger"
	"github.com/rallyhq/reengage-api/pkg/messaging"
	redisbroker "github.com/rallyhq/reengage-api/pkg/messaging/redis"
	"github.com/rallyhq/reengage-api/pkg/metrics"
)

func main() {
	// .env is optional; real deployments configure via environment.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	m := metrics.NewMetrics("reengage", "api")

	var broker messaging.Broker = messaging.NoopBroker{}
	if cfg.Redis.Enabled {
		broker, err = redisbroker.NewRedisBroker(redisbroker.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, appLogger.Zerolog())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
	}
	defer broker.Close()

	ruleRepo := postgres.NewRuleRepository(db)
	vehicleRepo := postgres.NewVehicleRepository(db)
	campaignRepo := postgres.NewCampaignRepository(db)
	scheduleRepo := postgres.NewScheduleRepository(db)

	var sender email.Sender
	switch cfg.Delivery.Transport {
	case "smtp":
		sender = email.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
	default:
		sender = email.NewSimulatedSender(cfg.Delivery.SendDelay, cfg.Delivery.DeliverDelay)
	}

	generator := email.NewGuardedGenerator(email.NewTemplateGenerator(""), 5*time.Second, appLogger)

	progressor := worker.NewDeliveryProgressor(campaignRepo, scheduleRepo, sender, broker, appLogger, m)

	ruleSvc := ruleService.NewService(ruleRepo, vehicleRepo, appLogger)
	campaignSvc := campaignService.NewService(ruleRepo, vehicleRepo, campaignRepo, scheduleRepo, generator, progressor, broker, m, appLogger)
	scheduleSvc := scheduleService.NewService(scheduleRepo, ruleRepo, appLogger)
	customerSvc := customerService.NewService(vehicleRepo, appLogger)

	dispatcher := worker.NewDispatcher(scheduleRepo, campaignSvc, scheduleSvc, worker.DispatcherConfig{
		PollInterval: cfg.Dispatcher.PollInterval,
	}, appLogger, m)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	progressor.Start(workerCtx)
	go dispatcher.Start(workerCtx)

	// Pick up runs interrupted by a previous shutdown.
	if err := progressor.RequeueIncomplete(workerCtx); err != nil {
		appLogger.Error(err, "failed to requeue incomplete runs")
	}

	r := router.NewRouter(appLogger, router.Config{
		RateLimit: 100,
		RateBurst: 200,
		CacheTTL:  30 * time.Second,
	},
		ruleHandler.NewHandler(ruleSvc),
		campaignHandler.NewHandler(campaignSvc),
		scheduleHandler.NewHandler(scheduleSvc),
		customerHandler.NewHandler(customerSvc),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	appLogger.Info("server started", map[string]interface{}{"port": cfg.Server.Port})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	dispatcher.Stop()
	cancelWorkers()
	progressor.Stop()

	appLogger.Info("server exited")
}
