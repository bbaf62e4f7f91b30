package email

import (
	"context"

	"github.com/rs/zerolog"
	uuid "github.com/satori/go.uuid"

	"github.com/quantonganh/dailybrief"
)

// LogMailer writes messages to the log instead of sending them. Used when no provider is configured.
type LogMailer struct {
	Logger zerolog.Logger
}

func (m *LogMailer) Send(ctx context.Context, msg dailybrief.Message) dailybrief.SendResult {
	if err := ctx.Err(); err != nil {
		return dailybrief.Rejected{Err: err}
	}

	id := uuid.NewV4().String()
	m.Logger.Info().
		Str("id", id).
		Str("from", msg.From).
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Interface("headers", msg.Headers).
		Int("html_bytes", len(msg.HTML)).
		Msg("email not sent, log mailer")
	return dailybrief.Sent{ID: id}
}
