package email

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/iliyamo/online-cinema/internal/config"
)

// dialer is satisfied by *gomail.Dialer.
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender delivers email through an SMTP relay.
type SMTPSender struct {
	dialer dialer
	from   string
	logger *zap.Logger
}

func NewSMTPSender(cfg config.MailConfig, logger *zap.Logger) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass),
		from:   cfg.From,
		logger: logger,
	}
}

func (s *SMTPSender) Send(_ context.Context, tmpl Template, to string, data map[string]any) error {
	msg, err := Render(tmpl, to, data)
	if err != nil {
		return err
	}
	return s.Deliver(msg)
}

// Deliver sends an already rendered message.
func (s *SMTPSender) Deliver(msg Message) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	s.logger.Debug("email sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

// HandleQueued is the email queue consumer handler.
func (s *SMTPSender) HandleQueued(_ context.Context, body []byte) error {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal email: %w", err)
	}
	if msg.To == "" {
		return fmt.Errorf("queued email without recipient")
	}
	return s.Deliver(msg)
}
