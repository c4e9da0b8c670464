package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Template identifies an outbound notification kind.
type Template string

const (
	TemplateSigningRequest  Template = "signing_request"
	TemplateSigningReminder Template = "signing_reminder"
	TemplateCompleted       Template = "envelope_completed"
	TemplateRejected        Template = "envelope_rejected"
)

// TemplatePayload carries the variables rendered into notification bodies.
type TemplatePayload struct {
	RecipientName string
	EnvelopeTitle string
	SigningLink   string
	SenderName    string
	Reason        string
}

// Render produces the subject and plain-text body for a notification template.
func Render(template Template, p TemplatePayload) (subject, body string, err error) {
	name := strings.TrimSpace(p.RecipientName)
	if name == "" {
		name = "there"
	}

	switch template {
	case TemplateSigningRequest:
		subject = fmt.Sprintf("Please sign %q", p.EnvelopeTitle)
		body = fmt.Sprintf(
			"Hi %s,\r\n\r\n%s has requested your signature on %q.\r\n\r\nSign here: %s\r\n",
			name, p.SenderName, p.EnvelopeTitle, p.SigningLink,
		)
	case TemplateSigningReminder:
		subject = fmt.Sprintf("Reminder: %q is waiting for your signature", p.EnvelopeTitle)
		body = fmt.Sprintf(
			"Hi %s,\r\n\r\nThis is a reminder that %q is still waiting for you.\r\n\r\nSign here: %s\r\n",
			name, p.EnvelopeTitle, p.SigningLink,
		)
	case TemplateCompleted:
		subject = fmt.Sprintf("%q has been completed", p.EnvelopeTitle)
		body = fmt.Sprintf(
			"Hi %s,\r\n\r\nAll parties have signed %q. The sealed document and signing certificate are attached to your account.\r\n",
			name, p.EnvelopeTitle,
		)
	case TemplateRejected:
		subject = fmt.Sprintf("%q was rejected", p.EnvelopeTitle)
		body = fmt.Sprintf(
			"Hi %s,\r\n\r\n%q was rejected.\r\n\r\nReason: %s\r\n",
			name, p.EnvelopeTitle, p.Reason,
		)
	default:
		return "", "", fmt.Errorf("mail: unknown template %q", template)
	}

	return subject, body, nil
}

// Notify renders a template and delivers it to a single address. A nil mailer
// and a disabled SMTP configuration both swallow the send, so callers only see
// errors worth logging.
func Notify(ctx context.Context, m Mailer, to string, template Template, p TemplatePayload) error {
	if m == nil {
		return nil
	}

	subject, body, err := Render(template, p)
	if err != nil {
		return err
	}

	err = m.Send(ctx, Message{To: []string{to}, Subject: subject, Body: body})
	if err != nil && !errors.Is(err, ErrSMTPDisabled) {
		return err
	}
	return nil
}
