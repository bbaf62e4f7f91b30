// Package resend sends email through the Resend HTTP API.
package resend

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/resend/resend-go/v2"

	"github.com/quantonganh/dailybrief"
)

// Mailer sends email using the Resend API.
type Mailer struct {
	client *resend.Client
}

// NewMailer creates a Resend mailer. timeout bounds every HTTP call.
func NewMailer(apiKey string, timeout time.Duration) *Mailer {
	return &Mailer{
		client: resend.NewCustomClient(&http.Client{Timeout: timeout}, apiKey),
	}
}

// Send sends a single message. Any provider or transport error is reported as Rejected.
func (m *Mailer) Send(ctx context.Context, msg dailybrief.Message) dailybrief.SendResult {
	params := &resend.SendEmailRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Headers: msg.Headers,
	}

	resp, err := m.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return dailybrief.Rejected{Err: errors.Wrap(err, "resend: failed to send email")}
	}
	return dailybrief.Sent{ID: resp.Id}
}
