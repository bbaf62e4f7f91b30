package email

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/matcornic/hermes/v2"
	"github.com/pkg/errors"

	"github.com/quantonganh/dailybrief"
)

type issueRenderer struct {
	siteURL string
	h       hermes.Hermes
}

// NewIssueRenderer returns a renderer producing the daily issue body.
func NewIssueRenderer(product, siteURL string) dailybrief.IssueRenderer {
	return &issueRenderer{
		siteURL: siteURL,
		h:       newHermes(product, siteURL),
	}
}

// RenderIssue renders the issue with the per-recipient unsubscribe and referral links.
func (r *issueRenderer) RenderIssue(issue *dailybrief.Issue, unsubscribeURL, referralURL string) (string, error) {
	if issue == nil {
		return "", errors.New("nil issue")
	}

	email := hermes.Email{
		Body: hermes.Body{
			Title:        FormatDate(issue.PublicationDate),
			FreeMarkdown: hermes.Markdown(issueMarkdown(issue, r.siteURL, unsubscribeURL, referralURL)),
			Signature:    "Made with ❤️ for the payments community",
		},
	}

	body, err := r.h.GenerateHTML(email)
	if err != nil {
		return "", errors.Errorf("failed to generate HTML email: %v", err)
	}
	return body, nil
}

func issueMarkdown(issue *dailybrief.Issue, siteURL, unsubscribeURL, referralURL string) string {
	c := issue.Content

	var md strings.Builder
	fmt.Fprintf(&md, "[View online](%s)\n\n", siteURL)

	if p := strings.TrimSpace(c.Perspective); p != "" {
		md.WriteString("**WHAT MATTERS TODAY**\n\n")
		fmt.Fprintf(&md, "> %s\n\n---\n\n", p)
	}

	for i, item := range c.News {
		switch i {
		case 0:
			md.WriteString("**TODAY'S LEAD STORY**\n\n")
			fmt.Fprintf(&md, "## %s\n\n", item.Title)
		case 1:
			md.WriteString("---\n\n**ALSO WORTH KNOWING**\n\n")
			fallthrough
		default:
			fmt.Fprintf(&md, "### %s\n\n", item.Title)
		}
		fmt.Fprintf(&md, "%s\n\n", item.Body)
		if item.Source != "" {
			fmt.Fprintf(&md, "[→ %s](%s)\n\n", SourceName(item.Source), SourceURL(item.Source))
		}
	}

	for _, s := range c.Sections {
		fmt.Fprintf(&md, "---\n\n### %s\n\n%s\n\n", s.Title, s.Body)
	}

	if c.Curiosity.Text != "" {
		md.WriteString("---\n\n**💡 DID YOU KNOW?**\n\n")
		fmt.Fprintf(&md, "_%s_\n\n", c.Curiosity.Text)
		if c.Curiosity.Source != "" {
			fmt.Fprintf(&md, "— [%s](%s)\n\n", SourceName(c.Curiosity.Source), SourceURL(c.Curiosity.Source))
		}
	}

	if referralURL != "" {
		md.WriteString("---\n\n**Share the Nerd's take**\n\n")
		md.WriteString("Your payments friends get smarter, you get rewarded. Share your unique link:\n\n")
		fmt.Fprintf(&md, "[%s](%s)\n\n", referralURL, referralURL)
	}

	fmt.Fprintf(&md, "---\n\n[Unsubscribe](%s)\n", unsubscribeURL)
	return md.String()
}

// FormatDate turns 2006-01-02 into "January 2, 2006". Unparseable input is returned as is.
func FormatDate(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format("January 2, 2006")
}

// SourceURL accepts either a bare domain or a full URL.
func SourceURL(source string) string {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return source
	}
	return "https://" + source
}

// SourceName is the host of a source without the www prefix.
func SourceName(source string) string {
	u, err := url.Parse(SourceURL(source))
	if err != nil || u.Host == "" {
		return source
	}
	return strings.TrimPrefix(u.Host, "www.")
}
