package mail

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSendDisabledReturnsSentinel(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	require.NoError(t, err)

	err = mailer.Send(context.Background(), Message{To: []string{"a@example.com"}})
	require.ErrorIs(t, err, ErrSMTPDisabled)
}

func TestNewSMTPMailerRequiresHostWhenEnabled(t *testing.T) {
	_, err := NewSMTPMailer(SMTPSettings{Enabled: true, Port: 587})
	require.Error(t, err)
}

func TestRenderSigningRequest(t *testing.T) {
	subject, body, err := Render(TemplateSigningRequest, TemplatePayload{
		RecipientName: "Ada",
		EnvelopeTitle: "NDA",
		SenderName:    "Graham",
		SigningLink:   "https://signer.example.com/sign/tok123",
	})
	require.NoError(t, err)
	require.Contains(t, subject, "NDA")
	require.Contains(t, body, "Ada")
	require.Contains(t, body, "https://signer.example.com/sign/tok123")
}

func TestRenderRejectedIncludesReason(t *testing.T) {
	_, body, err := Render(TemplateRejected, TemplatePayload{
		EnvelopeTitle: "Offer Letter",
		Reason:        "salary is wrong",
	})
	require.NoError(t, err)
	require.Contains(t, body, "salary is wrong")
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, _, err := Render(Template("bogus"), TemplatePayload{})
	require.Error(t, err)
}

type recordMailer struct {
	messages []Message
}

func (m *recordMailer) Send(_ context.Context, msg Message) error {
	m.messages = append(m.messages, msg)
	return nil
}

func TestNotifyRendersAndSends(t *testing.T) {
	m := &recordMailer{}
	err := Notify(context.Background(), m, "ada@example.com", TemplateSigningRequest, TemplatePayload{
		EnvelopeTitle: "NDA",
		SigningLink:   "https://signer.example.com/sign/tok123",
	})
	require.NoError(t, err)
	require.Len(t, m.messages, 1)
	require.Equal(t, []string{"ada@example.com"}, m.messages[0].To)
	require.Contains(t, m.messages[0].Body, "https://signer.example.com/sign/tok123")
}

func TestNotifySwallowsDisabledDelivery(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	require.NoError(t, err)

	require.NoError(t, Notify(context.Background(), mailer, "a@example.com", TemplateCompleted, TemplatePayload{EnvelopeTitle: "NDA"}))
	require.NoError(t, Notify(context.Background(), nil, "a@example.com", TemplateCompleted, TemplatePayload{}))
}

func TestNotifyUnknownTemplate(t *testing.T) {
	err := Notify(context.Background(), &recordMailer{}, "a@example.com", Template("bogus"), TemplatePayload{})
	require.Error(t, err)
}

func TestFormatMessageEscapesHeaders(t *testing.T) {
	msg := formatMessage("a@example.com", []string{"b@example.com"}, "line1\r\nline2", "body")
	require.False(t, strings.Contains(msg, "Subject: line1\r\nline2"))
	require.Contains(t, msg, "Subject: line1 line2")
}
