package notification

import (
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/nyumbahub/rentals/internal/config"
)

// Mailer delivers the email copy of a notification
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer sends plain-text email via SMTP
type SMTPMailer struct {
	cfg    config.NotifyConfig
	logger *logrus.Logger
}

// NewSMTPMailer creates a mailer, or returns nil when SMTP is not configured
func NewSMTPMailer(cfg config.NotifyConfig, logger *logrus.Logger) Mailer {
	if cfg.SMTPHost == "" {
		return nil
	}
	return &SMTPMailer{cfg: cfg, logger: logger}
}

// Send delivers a single message
func (m *SMTPMailer) Send(to, subject, body string) error {
	e := email.NewEmail()
	e.From = m.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = subject
	e.Text = []byte(body + "\n\nNyumbaHub")

	addr := fmt.Sprintf("%s:%s", m.cfg.SMTPHost, m.cfg.SMTPPort)
	var auth smtp.Auth
	if m.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", m.cfg.SMTPUsername, m.cfg.SMTPPassword, m.cfg.SMTPHost)
	}
	if err := e.Send(addr, auth); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.Infof("Email sent to %s: %s", to, subject)
	return nil
}
