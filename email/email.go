// Package email renders the transactional and newsletter emails with hermes
// and hands them to a dailybrief.Mailer.
package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/matcornic/hermes/v2"
	"github.com/pkg/errors"

	"github.com/quantonganh/dailybrief"
)

func newHermes(product, siteURL string) hermes.Hermes {
	return hermes.Hermes{
		Theme: new(hermes.Default),
		Product: hermes.Product{
			Name:      product,
			Link:      siteURL,
			Copyright: fmt.Sprintf("© %d %s. All rights reserved.", time.Now().Year(), product),
		},
	}
}

type newsletterService struct {
	mailer  dailybrief.Mailer
	from    string
	product string
	h       hermes.Hermes
}

// NewNewsletterService returns the service sending confirmation and welcome emails.
func NewNewsletterService(mailer dailybrief.Mailer, from, product, siteURL string) dailybrief.NewsletterService {
	return &newsletterService{
		mailer:  mailer,
		from:    from,
		product: product,
		h:       newHermes(product, siteURL),
	}
}

// SendConfirmationEmail sends a confirmation email
func (ns *newsletterService) SendConfirmationEmail(ctx context.Context, to, confirmURL, unsubscribeURL string) error {
	email := hermes.Email{
		Body: hermes.Body{
			Title: "Confirm your subscription",
			Intros: []string{
				"Quick confirm, this makes sure nobody subscribed you by mistake.",
			},
			Actions: []hermes.Action{
				{
					Button: hermes.Button{
						Color: "#2563eb",
						Text:  "Confirm subscription",
						Link:  confirmURL,
					},
				},
				{
					Instructions: "Not interested after all?",
					Button: hermes.Button{
						Color: "#64748b",
						Text:  "Unsubscribe",
						Link:  unsubscribeURL,
					},
				},
			},
			Outros: []string{
				"If you didn't request this, ignore this email.",
			},
		},
	}

	body, err := ns.h.GenerateHTML(email)
	if err != nil {
		return errors.Errorf("failed to generate HTML email: %v", err)
	}

	return ns.send(ctx, to, "Confirm your subscription", body)
}

// SendWelcomeEmail sends the one-time welcome email after a confirmation
func (ns *newsletterService) SendWelcomeEmail(ctx context.Context, to, unsubscribeURL, referralURL string) error {
	var md strings.Builder
	fmt.Fprintf(&md, "You're now subscribed to **%s**.\n\n", ns.product)
	md.WriteString("**What to expect:**\n\n")
	md.WriteString("- Daily at 9:30 AM GMT (Mon-Fri)\n")
	md.WriteString("- 5 hand-picked signals from payments & fintech\n")
	md.WriteString("- 3-minute read, zero fluff\n\n")
	md.WriteString("Whitelist this address so the first issue does not land in spam.\n\n")
	if referralURL != "" {
		fmt.Fprintf(&md, "Know someone who'd benefit? Share your link: [%s](%s)\n\n", referralURL, referralURL)
	}
	fmt.Fprintf(&md, "[Unsubscribe](%s)\n", unsubscribeURL)

	email := hermes.Email{
		Body: hermes.Body{
			Title:        "Welcome 👋",
			FreeMarkdown: hermes.Markdown(md.String()),
			Signature:    "P.S. Questions? Just reply",
		},
	}

	body, err := ns.h.GenerateHTML(email)
	if err != nil {
		return errors.Errorf("failed to generate HTML email: %v", err)
	}

	return ns.send(ctx, to, "Welcome to "+ns.product, body)
}

func (ns *newsletterService) send(ctx context.Context, to, subject, body string) error {
	result := ns.mailer.Send(ctx, dailybrief.Message{
		From:    ns.from,
		To:      to,
		Subject: subject,
		HTML:    body,
	})

	switch r := result.(type) {
	case dailybrief.Sent:
		return nil
	case dailybrief.Rejected:
		return errors.Wrapf(r, "failed to send %q to %s", subject, to)
	default:
		return errors.Errorf("unexpected send result %T", result)
	}
}
