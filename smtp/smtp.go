// Package smtp sends email through an SMTP relay with gomail.
package smtp

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	"gopkg.in/gomail.v2"

	"github.com/quantonganh/dailybrief"
)

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer sends email via SMTP
type Mailer struct {
	dialer sender
	domain string
}

// NewMailer returns an SMTP mailer. domain is used on the right hand side of Message-ID.
func NewMailer(host string, port int, username, password, domain string) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(host, port, username, password),
		domain: domain,
	}
}

// Send dials the relay and sends one message. The dial is abandoned when ctx is done.
func (m *Mailer) Send(ctx context.Context, msg dailybrief.Message) dailybrief.SendResult {
	id := uuid.NewV4().String()
	gm := m.newMessage(id, msg)

	errc := make(chan error, 1)
	go func() {
		errc <- m.dialer.DialAndSend(gm)
	}()

	select {
	case <-ctx.Done():
		return dailybrief.Rejected{Err: errors.Wrapf(ctx.Err(), "failed to send mail to %s", msg.To)}
	case err := <-errc:
		if err != nil {
			return dailybrief.Rejected{Err: errors.Errorf("failed to send mail to %s: %v", msg.To, err)}
		}
	}

	return dailybrief.Sent{ID: id}
}

func (m *Mailer) newMessage(id string, msg dailybrief.Message) *gomail.Message {
	gm := gomail.NewMessage()
	gm.SetHeader("From", msg.From)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetHeader("Message-ID", fmt.Sprintf("<%s@%s>", id, m.messageDomain(msg.From)))
	for k, v := range msg.Headers {
		gm.SetHeader(k, v)
	}
	gm.SetBody("text/html", msg.HTML)
	return gm
}

func (m *Mailer) messageDomain(from string) string {
	if m.domain != "" {
		return m.domain
	}
	from = strings.TrimSuffix(strings.TrimSpace(from), ">")
	if i := strings.LastIndex(from, "@"); i >= 0 {
		return from[i+1:]
	}
	return "localhost"
}
