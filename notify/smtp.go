package notify

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/samber/oops"
)

// SMTPConfig configures the SMTP mailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTP mails reset codes through a submission server with PLAIN auth when a username is
// set.
type SMTP struct {
	config SMTPConfig
	send   sendFunc
	now    func() time.Time
}

// NewSMTP validates cfg and returns a mailer.
func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if cfg.Host == "" {
		return nil, oops.Code("NOTIFY_SMTP_CONFIG").Errorf("smtp host required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, oops.Code("NOTIFY_SMTP_CONFIG").With("port", cfg.Port).Errorf("smtp port out of range")
	}
	if err := checkDestination(cfg.From); err != nil {
		return nil, oops.Code("NOTIFY_SMTP_CONFIG").Errorf("smtp from address required")
	}
	if cfg.Subject == "" {
		cfg.Subject = "Password reset"
	}
	return &SMTP{config: cfg, send: smtp.SendMail, now: time.Now}, nil
}

// Deliver sends code to destination.
func (s *SMTP) Deliver(ctx context.Context, destination, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkDestination(destination); err != nil {
		return err
	}

	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	if err := s.send(addr, auth, s.config.From, []string{destination}, s.message(destination, code)); err != nil {
		return oops.Code("NOTIFY_SMTP_FAILED").
			With("addr", addr).
			With("email", destination).
			Wrap(err)
	}
	return nil
}

func (s *SMTP) message(destination, code string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", s.config.From)
	fmt.Fprintf(&b, "To: %s\r\n", destination)
	fmt.Fprintf(&b, "Subject: %s\r\n", s.config.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", s.now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "Your password reset code: %s\r\n", code)
	return b.Bytes()
}
