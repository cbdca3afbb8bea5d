// Package email renders the transactional emails and hands them to a
// transport: SMTP directly, the message broker, or the log.
package email

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/online-cinema/internal/config"
)

// Template names a built-in email.
type Template string

const (
	Activation            Template = "activation"
	ActivationComplete    Template = "activation_complete"
	PasswordReset         Template = "password_reset"
	PasswordResetComplete Template = "password_reset_complete"
	PaymentSuccess        Template = "payment_success"
)

// Sender delivers a templated email.  Callers treat failures as
// non-fatal: the surrounding operation has already committed.
type Sender interface {
	Send(ctx context.Context, tmpl Template, to string, data map[string]any) error
}

// Message is a rendered email.  It is also the payload of the email queue.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Publisher is the part of the broker client the queue transport needs.
type Publisher interface {
	PublishJSON(ctx context.Context, queue string, v any) error
}

// New builds the Sender selected by cfg.Transport.
func New(cfg config.MailConfig, queueName string, pub Publisher, logger *zap.Logger) (Sender, error) {
	logger = logger.With(zap.String("component", "email"))
	switch cfg.Transport {
	case "smtp":
		return NewSMTPSender(cfg, logger), nil
	case "queue":
		if pub == nil {
			return nil, fmt.Errorf("email transport %q needs a broker", cfg.Transport)
		}
		return NewQueueSender(pub, queueName, logger), nil
	case "", "log":
		return NewLogSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown email transport %q", cfg.Transport)
	}
}

// QueueSender renders the email and publishes it; a consumer running
// SMTPSender.HandleQueued does the delivery.
type QueueSender struct {
	pub    Publisher
	queue  string
	logger *zap.Logger
}

func NewQueueSender(pub Publisher, queue string, logger *zap.Logger) *QueueSender {
	return &QueueSender{pub: pub, queue: queue, logger: logger}
}

func (s *QueueSender) Send(ctx context.Context, tmpl Template, to string, data map[string]any) error {
	msg, err := Render(tmpl, to, data)
	if err != nil {
		return err
	}
	if err := s.pub.PublishJSON(ctx, s.queue, msg); err != nil {
		return fmt.Errorf("queue email %s: %w", tmpl, err)
	}
	s.logger.Debug("email queued", zap.String("template", string(tmpl)), zap.String("to", to))
	return nil
}

// LogSender only logs what would have been sent.  Used in development.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender { return &LogSender{logger: logger} }

func (s *LogSender) Send(_ context.Context, tmpl Template, to string, data map[string]any) error {
	msg, err := Render(tmpl, to, data)
	if err != nil {
		return err
	}
	fields := []zap.Field{
		zap.String("template", string(tmpl)),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	}
	if link, ok := data["link"].(string); ok {
		fields = append(fields, zap.String("link", link))
	}
	s.logger.Info("email", fields...)
	return nil
}
