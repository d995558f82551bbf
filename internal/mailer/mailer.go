// Package mailer sends transactional email.
package mailer

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"shopnest-backend/internal/config"
	"shopnest-backend/internal/logging"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, m Message) error
}

// SMTP delivers through an authenticated SMTP relay.
type SMTP struct {
	cfg config.SMTPConfig
}

func NewSMTP(cfg config.SMTPConfig) *SMTP { return &SMTP{cfg: cfg} }

func (s *SMTP) Send(ctx context.Context, m Message) error {
	msg, err := build(s.cfg.From, m)
	if err != nil {
		return err
	}
	c, err := mail.NewClient(s.cfg.Host,
		mail.WithPort(s.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.Username),
		mail.WithPassword(s.cfg.Password),
	)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", m.To, err)
	}
	return nil
}

func build(from string, m Message) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}
	if err := msg.To(m.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", m.To, err)
	}
	msg.Subject(m.Subject)
	msg.SetBodyString(mail.TypeTextPlain, m.Body)
	return msg, nil
}

// Log writes messages to the logger instead of sending them.
type Log struct {
	log logging.Logger
}

func NewLog(log logging.Logger) *Log { return &Log{log: log} }

func (l *Log) Send(_ context.Context, m Message) error {
	l.log.Info("mail not sent, no SMTP relay configured", map[string]interface{}{
		"to":      m.To,
		"subject": m.Subject,
		"body":    m.Body,
	})
	return nil
}

// New picks the SMTP sender when a host is configured.
func New(cfg config.SMTPConfig, log logging.Logger) Sender {
	if cfg.Host == "" {
		return NewLog(log)
	}
	return NewSMTP(cfg)
}
