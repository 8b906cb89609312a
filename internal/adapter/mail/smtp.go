package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Sender delivers transactional email. Delivery failures are reported but
// callers treat them as non-fatal.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPSender sends mail through a configured SMTP relay with PLAIN auth.
type SMTPSender struct {
	host string
	port int
	user string
	pass string
}

var _ Sender = (*SMTPSender)(nil)

// NewSMTPSender constructs a sender for the given relay.
func NewSMTPSender(host string, port int, user, pass string) *SMTPSender {
	return &SMTPSender{host: host, port: port, user: user, pass: pass}
}

// Send composes and submits the message. The context deadline is not honored
// by net/smtp itself; callers dispatch sends on their own goroutine.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	auth := smtp.PlainAuth("", s.user, s.pass, s.host)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.user)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("\r\n")
	msg.WriteString(body)
	msg.WriteString("\r\n")

	if err := smtp.SendMail(addr, auth, s.user, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// DisabledSender is used when SMTP credentials are missing; it logs a
// warning instead of delivering, matching the demo behavior of skipping
// email without failing registration.
type DisabledSender struct {
	logger *zap.Logger
}

var _ Sender = (*DisabledSender)(nil)

// NewDisabledSender constructs the no-op sender.
func NewDisabledSender(logger *zap.Logger) *DisabledSender {
	if logger == nil {
		logger = zap.L()
	}
	return &DisabledSender{logger: logger}
}

func (s *DisabledSender) Send(ctx context.Context, to, subject, body string) error {
	s.logger.Warn("smtp credentials missing; email not sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}
