package channel

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"careops-alert-engine/internal/rule"
)

// sendMailFunc matches smtp.SendMail, injectable for tests.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailAdapter delivers email_alert actions through an SMTP relay.
type EmailAdapter struct {
	host     string
	port     int
	from     string
	auth     smtp.Auth
	sendMail sendMailFunc
}

// NewEmailAdapter creates an email adapter. Username may be empty for
// relays that accept unauthenticated submission.
func NewEmailAdapter(host string, port int, from, username, password string) *EmailAdapter {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &EmailAdapter{
		host:     host,
		port:     port,
		from:     from,
		auth:     auth,
		sendMail: smtp.SendMail,
	}
}

func (a *EmailAdapter) Type() rule.ActionType {
	return rule.ActionEmailAlert
}

func (a *EmailAdapter) Send(ctx context.Context, action *rule.Action, message string) error {
	cfg := action.Email
	if cfg == nil {
		return fmt.Errorf("email action has no config")
	}

	subject := cfg.Subject
	if subject == "" {
		subject = "CareOps alert"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", a.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(cfg.Recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	if cfg.Severity != "" {
		fmt.Fprintf(&b, "X-CareOps-Severity: %s\r\n", cfg.Severity)
	}
	b.WriteString("\r\n")
	b.WriteString(message)

	done := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf("%s:%d", a.host, a.port)
		done <- a.sendMail(addr, a.auth, a.from, cfg.Recipients, []byte(b.String()))
	}()

	// smtp.SendMail has no context support, so honor cancellation here
	// and let the dial time out on its own.
	select {
	case err := <-done:
		if err != nil {
			return Transient(fmt.Errorf("smtp send: %w", err))
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
