package email

import (
	"errors"
	"time"

	"github.com/rallyhq/reengage-api/internal/model"
	"github.com/rallyhq/reengage-api/pkg/circuitbreaker"
	"github.com/rallyhq/reengage-api/pkg/logger"
)

var errGenerateTimeout = errors.New("content generation timed out")

type content struct {
	subject string
	body    string
}

// GuardedGenerator shields the run fan-out transaction from a stalled or
// failing content generator. Each render runs under a deadline and a circuit
// breaker; on timeout, panic or open breaker it falls back to the stock
// template so a run is never blocked on content.
type GuardedGenerator struct {
	inner    Generator
	fallback *TemplateGenerator
	breaker  *circuitbreaker.CircuitBreaker
	timeout  time.Duration
	logger   *logger.Logger
}

func NewGuardedGenerator(inner Generator, timeout time.Duration, log *logger.Logger) *GuardedGenerator {
	return &GuardedGenerator{
		inner:    inner,
		fallback: NewTemplateGenerator(""),
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "content-generator",
			MaxRequests: 5,
			Timeout:     30 * time.Second,
		}),
		timeout: timeout,
		logger:  log,
	}
}

func (g *GuardedGenerator) Subject(rule *model.Rule, member *model.CohortMember) string {
	return g.render(rule, member, func() content {
		return content{subject: g.inner.Subject(rule, member)}
	}).subject
}

func (g *GuardedGenerator) Body(rule *model.Rule, member *model.CohortMember) string {
	return g.render(rule, member, func() content {
		return content{body: g.inner.Body(rule, member)}
	}).body
}

func (g *GuardedGenerator) render(rule *model.Rule, member *model.CohortMember, fn func() content) content {
	done := make(chan content, 1)

	err := g.breaker.Execute(func() error {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					g.logger.Warn("content generator panicked", map[string]interface{}{"panic": r})
				}
			}()
			done <- fn()
		}()

		timer := time.NewTimer(g.timeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			return errGenerateTimeout
		case c := <-done:
			done <- c
			return nil
		}
	})
	if err != nil {
		g.logger.Warn("content generation fell back to stock template", map[string]interface{}{
			"rule_id": rule.ID.String(),
			"reason":  err.Error(),
		})
		return content{
			subject: g.fallback.Subject(rule, member),
			body:    g.fallback.Body(rule, member),
		}
	}
	return <-done
}
