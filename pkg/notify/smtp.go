package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/mariusgr/contactflow/pkg/api"
)

// SMTPSender sends the email notification via plain SMTP, for deployments
// without a transactional email provider.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
	Subject  string
}

// Ensure SMTPSender implements Sender.
var _ Sender = (*SMTPSender)(nil)

func (s *SMTPSender) Name() string { return "email" }

func (s *SMTPSender) Send(ctx context.Context, payload api.ContactPayload) error {
	if s.Host == "" || s.From == "" || s.To == "" {
		return api.NewPermanentSenderError(s.Name(), "sender is not fully configured", nil)
	}

	port := s.Port
	if port == 0 {
		port = 587
	}
	addr := fmt.Sprintf("%s:%d", s.Host, port)

	subject := s.Subject
	if subject == "" {
		subject = fmt.Sprintf("Contact request from %s", payload.Name)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nReply-To: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		s.From, s.To, payload.Email, subject, formatMessage(payload))

	var auth smtp.Auth
	if s.Password != "" {
		user := s.Username
		if user == "" {
			user = s.From
		}
		auth = smtp.PlainAuth("", user, s.Password, s.Host)
	}

	// net/smtp has no context support; rely on server timeouts. Failures
	// here are connection-level and worth retrying.
	if err := smtp.SendMail(addr, auth, s.From, []string{s.To}, []byte(msg)); err != nil {
		return api.NewRetryableSenderError(s.Name(), "smtp send", err)
	}
	return nil
}
