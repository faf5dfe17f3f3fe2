// Package notify implements core.Notifier, the operational-notification
// boundary spec §7 calls for on persistence failure and post-update-pass
// bad-file summaries.
package notify

import (
	"fmt"
	"net/smtp"

	"github.com/ayudhien/erddap/config"
	"github.com/ayudhien/erddap/internal/logx"
)

// NoOp discards notifications, matching the teacher's pattern of a
// zero-value default collaborator where a real one isn't configured.
type NoOp struct{}

func (NoOp) Notify(subject, body string) error { return nil }

// Logging emits notifications through logx instead of a human channel --
// useful for local runs and tests that want to observe notification
// traffic without standing up SMTP.
type Logging struct{}

func (Logging) Notify(subject, body string) error {
	logx.Printf("NOTIFY: %s\n%s", subject, body)
	return nil
}

// SMTP sends notifications as plain-text email through an SMTP relay,
// the concrete home for spec §7's "email a human" requirement (the
// original calls EDStatic.email(...) at the same points).
type SMTP struct {
	cfg config.SMTPConfiguration
}

func NewSMTP(cfg config.SMTPConfiguration) *SMTP {
	return &SMTP{cfg: cfg}
}

func (s *SMTP) Notify(subject, body string) error {
	if !s.cfg.Enabled {
		return nil
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", s.cfg.From, s.cfg.To, subject, body)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{s.cfg.To}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp notify: %w", err)
	}
	return nil
}
