package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rallyhq/reengage-api/internal/email"
	"github.com/rallyhq/reengage-api/internal/repository"
	"github.com/rallyhq/reengage-api/pkg/logger"
	"github.com/rallyhq/reengage-api/pkg/messaging"
	"github.com/rallyhq/reengage-api/pkg/metrics"
)

// DeliveryProgressor advances each run's messages through
// QUEUED -> SENT -> DELIVERED, one goroutine per run, out-of-band from the
// dispatcher tick that created the run. Every transition is a conditional
// update keyed on the prior state, so a duplicate progressor for the same run
// cannot apply a transition twice or move a timestamp backwards.
type DeliveryProgressor struct {
	campaignRepo repository.CampaignRepository
	scheduleRepo repository.ScheduleRepository
	sender       email.Sender
	broker       messaging.Broker
	logger       *logger.Logger
	metrics      *metrics.Metrics
	now          func() time.Time

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDeliveryProgressor(
	campaignRepo repository.CampaignRepository,
	scheduleRepo repository.ScheduleRepository,
	sender email.Sender,
	broker messaging.Broker,
	log *logger.Logger,
	m *metrics.Metrics,
) *DeliveryProgressor {
	return &DeliveryProgressor{
		campaignRepo: campaignRepo,
		scheduleRepo: scheduleRepo,
		sender:       sender,
		broker:       broker,
		logger:       log,
		metrics:      m,
		now:          time.Now,
	}
}

// Start establishes the lifetime for all per-run goroutines.
func (p *DeliveryProgressor) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctx, p.cancel = context.WithCancel(ctx)
}

// Stop cancels in-flight progressions and waits for them to exit. Messages
// left mid-lifecycle stay in their current state; a restarted progressor can
// pick the runs up again via RequeueIncomplete.
func (p *DeliveryProgressor) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

// StartRun begins asynchronous delivery progression for one committed run.
func (p *DeliveryProgressor) StartRun(runID uuid.UUID) {
	p.mu.Lock()
	ctx := p.ctx
	p.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.progress(ctx, runID)
	}()
}

// RequeueIncomplete restarts progression for every run that was interrupted
// before completing, typically after a process restart.
func (p *DeliveryProgressor) RequeueIncomplete(ctx context.Context) error {
	runs, err := p.campaignRepo.ListRuns(ctx, true)
	if err != nil {
		return err
	}
	for _, summary := range runs {
		p.StartRun(summary.Run.ID)
	}
	return nil
}

func (p *DeliveryProgressor) progress(ctx context.Context, runID uuid.UUID) {
	emails, err := p.campaignRepo.ListQueuedEmails(ctx, runID)
	if err != nil {
		p.logger.Error(err, "failed to list queued emails", map[string]interface{}{
			"run_id": runID.String(),
		})
		return
	}

	for _, e := range emails {
		if ctx.Err() != nil {
			return
		}
		if err := p.sender.Send(ctx, e); err != nil {
			p.logger.Error(err, "failed to send email", map[string]interface{}{
				"email_id": e.ID.String(),
				"run_id":   runID.String(),
			})
			continue
		}
		advanced, err := p.campaignRepo.MarkEmailSent(ctx, e.ID, p.now())
		if err != nil {
			p.logger.Error(err, "failed to mark email sent", map[string]interface{}{
				"email_id": e.ID.String(),
			})
			continue
		}
		if advanced {
			p.metrics.EmailsSent.Inc()
		}
	}

	for _, e := range emails {
		if ctx.Err() != nil {
			return
		}
		if err := p.sender.Deliver(ctx, e); err != nil {
			p.logger.Error(err, "failed to confirm delivery", map[string]interface{}{
				"email_id": e.ID.String(),
				"run_id":   runID.String(),
			})
			continue
		}
		advanced, err := p.campaignRepo.MarkEmailDelivered(ctx, e.ID, p.now())
		if err != nil {
			p.logger.Error(err, "failed to mark email delivered", map[string]interface{}{
				"email_id": e.ID.String(),
			})
			continue
		}
		if advanced {
			p.metrics.EmailsDelivered.Inc()
		}
	}

	p.finishRun(ctx, runID)
}

// finishRun closes out the run once nothing is left undelivered. The
// conditional completed_at update makes it safe for two progressors of the
// same run to race here.
func (p *DeliveryProgressor) finishRun(ctx context.Context, runID uuid.UUID) {
	undelivered, err := p.campaignRepo.CountUndelivered(ctx, runID)
	if err != nil {
		p.logger.Error(err, "failed to count undelivered emails", map[string]interface{}{
			"run_id": runID.String(),
		})
		return
	}
	if undelivered > 0 {
		return
	}

	now := p.now()
	completed, err := p.campaignRepo.CompleteRun(ctx, runID, now)
	if err != nil {
		p.logger.Error(err, "failed to complete run", map[string]interface{}{
			"run_id": runID.String(),
		})
		return
	}
	if !completed {
		return
	}

	p.metrics.RunsCompleted.Inc()
	if err := p.scheduleRepo.CompleteScheduledByRun(ctx, runID, now); err != nil {
		p.logger.Error(err, "failed to complete originating scheduled campaign", map[string]interface{}{
			"run_id": runID.String(),
		})
	}

	payload := messaging.Message{
		Type:    messaging.ChannelRunCompleted,
		Payload: map[string]interface{}{"run_id": runID},
	}
	if err := p.broker.Publish(ctx, messaging.ChannelRunCompleted, payload); err != nil {
		p.logger.Warn("failed to publish run completion", map[string]interface{}{
			"run_id": runID.String(),
			"error":  err.Error(),
		})
	}

	p.logger.Info("run fully delivered", map[string]interface{}{
		"run_id": runID.String(),
	})
}
