package email

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/rallyhq/reengage-api/internal/model"
)

// Sender pushes one message through the outbound transport. Send returns once
// the transport has accepted the message; Deliver blocks until the transport
// confirms receipt by the destination.
type Sender interface {
	Send(ctx context.Context, email *model.Email) error
	Deliver(ctx context.Context, email *model.Email) error
}

// SimulatedSender stands in for a real provider. It succeeds after a
// configurable delay so the delivery lifecycle is observable in development
// and exercisable in tests.
type SimulatedSender struct {
	SendDelay    time.Duration
	DeliverDelay time.Duration
}

func NewSimulatedSender(sendDelay, deliverDelay time.Duration) *SimulatedSender {
	return &SimulatedSender{SendDelay: sendDelay, DeliverDelay: deliverDelay}
}

func (s *SimulatedSender) Send(ctx context.Context, _ *model.Email) error {
	return wait(ctx, s.SendDelay)
}

func (s *SimulatedSender) Deliver(ctx context.Context, _ *model.Email) error {
	return wait(ctx, s.DeliverDelay)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SMTPSender hands messages to an SMTP relay. The relay offers no delivery
// receipt, so Deliver is a no-op and the lifecycle advances as soon as the
// relay accepts the message.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (s *SMTPSender) Send(_ context.Context, email *model.Email) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", email.ToAddress)
	m.SetHeader("Subject", email.Subject)
	if email.ThreadID != "" {
		m.SetHeader("References", email.ThreadID)
	}
	m.SetBody("text/plain", email.Body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email via smtp: %w", err)
	}
	return nil
}

func (s *SMTPSender) Deliver(_ context.Context, _ *model.Email) error {
	return nil
}
