package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rallyhq/reengage-api/internal/model"
	"github.com/rallyhq/reengage-api/internal/repository"
	"github.com/rallyhq/reengage-api/pkg/logger"
	"github.com/rallyhq/reengage-api/pkg/metrics"
)

// CampaignExecutor runs one claimed campaign. The bool reports whether the
// caller won the claim.
type CampaignExecutor interface {
	ExecuteScheduled(ctx context.Context, scheduled *model.ScheduledCampaign) (bool, error)
}

// ScheduleAdvancer seeds the next occurrence of a recurring schedule.
type ScheduleAdvancer interface {
	OnOccurrenceCompleted(ctx context.Context, scheduleID uuid.UUID) error
}

type DispatcherConfig struct {
	PollInterval time.Duration
}

// Dispatcher polls for due scheduled campaigns and executes them. One
// instance per deployment; the conditional claim in the executor is what
// keeps overlapping ticks from double-dispatching, not the loop itself.
type Dispatcher struct {
	repo     repository.ScheduleRepository
	executor CampaignExecutor
	advancer ScheduleAdvancer
	config   DispatcherConfig
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewDispatcher(
	repo repository.ScheduleRepository,
	executor CampaignExecutor,
	advancer ScheduleAdvancer,
	config DispatcherConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) *Dispatcher {
	if config.PollInterval <= 0 {
		config.PollInterval = time.Minute
	}
	return &Dispatcher{
		repo:     repo,
		executor: executor,
		advancer: advancer,
		config:   config,
		logger:   log,
		metrics:  m,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the polling loop until the context is cancelled or Stop is
// called. It blocks; run it in its own goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	d.logger.Info("dispatcher started", map[string]interface{}{
		"poll_interval": d.config.PollInterval.String(),
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Stop signals the loop to exit and waits for the in-flight tick to finish.
// Delivery progressors already handed off keep running.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
	<-d.done
}

// Tick processes every currently due campaign. One campaign's failure does
// not abort the rest of the batch.
func (d *Dispatcher) Tick(ctx context.Context) {
	d.metrics.DispatcherTicks.Inc()

	due, err := d.repo.ListDue(ctx, d.now())
	if err != nil {
		d.logger.Error(err, "failed to list due campaigns")
		return
	}

	for _, scheduled := range due {
		d.dispatch(ctx, scheduled)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, scheduled *model.ScheduledCampaign) {
	start := time.Now()
	defer func() {
		d.metrics.DispatchLatency.Observe(time.Since(start).Seconds())
	}()

	claimed, err := d.executor.ExecuteScheduled(ctx, scheduled)
	if !claimed {
		if err != nil {
			d.logger.Error(err, "failed to claim scheduled campaign", map[string]interface{}{
				"scheduled_id": scheduled.ID.String(),
			})
		}
		return
	}
	if err != nil {
		// Terminal: FAILED campaigns are never retried automatically.
		d.logger.Error(err, "scheduled campaign failed", map[string]interface{}{
			"scheduled_id": scheduled.ID.String(),
			"rule_id":      scheduled.RuleID.String(),
		})
		return
	}

	d.logger.Info("scheduled campaign executed", map[string]interface{}{
		"scheduled_id": scheduled.ID.String(),
		"rule_id":      scheduled.RuleID.String(),
	})

	if scheduled.RecurringScheduleID != nil {
		if err := d.advancer.OnOccurrenceCompleted(ctx, *scheduled.RecurringScheduleID); err != nil {
			d.logger.Error(err, "failed to advance recurring schedule", map[string]interface{}{
				"schedule_id": scheduled.RecurringScheduleID.String(),
			})
		}
	}
}
