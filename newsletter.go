package dailybrief

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the layout of Issue.PublicationDate.
const DateLayout = "2006-01-02"

// Issue is one dated newsletter.
type Issue struct {
	// PublicationDate is formatted as YYYY-MM-DD so that lexical order is date order.
	PublicationDate string       `json:"publication_date" storm:"id"`
	Content         IssueContent `json:"content"`
}

type IssueContent struct {
	News        []NewsItem `json:"news"`
	Curiosity   Curiosity  `json:"curiosity"`
	Perspective string     `json:"perspective,omitempty"`
	Sections    []Section  `json:"sections,omitempty"`
}

type NewsItem struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	Source string `json:"source"`
}

type Curiosity struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

type Section struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Subject builds the email subject of an issue from its lead story.
func (i *Issue) Subject(product string) string {
	if len(i.Content.News) > 0 {
		if title := strings.TrimSpace(i.Content.News[0].Title); title != "" {
			return fmt.Sprintf("%s | %s", title, product)
		}
	}
	return fmt.Sprintf("%s — %s", product, i.PublicationDate)
}

// Validate checks that an issue can be stored and rendered.
func (i *Issue) Validate() error {
	if _, err := time.Parse(DateLayout, i.PublicationDate); err != nil {
		return &Error{Code: ErrInvalid, Op: "issue.validate", Message: fmt.Sprintf("publication_date %q is not YYYY-MM-DD", i.PublicationDate)}
	}
	if len(i.Content.News) == 0 {
		return &Error{Code: ErrInvalid, Op: "issue.validate", Message: "issue has no news"}
	}
	return nil
}

// IssueService is the interface that wraps methods related to newsletter issues.
type IssueService interface {
	// Latest returns the issue with the most recent publication date or ErrNoIssueFound.
	Latest(ctx context.Context) (*Issue, error)
	Save(ctx context.Context, issue *Issue) error
}

// NewsletterService is the interface that wraps the transactional emails of the subscription flow.
type NewsletterService interface {
	SendConfirmationEmail(ctx context.Context, to, confirmURL, unsubscribeURL string) error
	SendWelcomeEmail(ctx context.Context, to, unsubscribeURL, referralURL string) error
}

// IssueRenderer renders an issue into a personalized HTML body.
type IssueRenderer interface {
	RenderIssue(issue *Issue, unsubscribeURL, referralURL string) (string, error)
}

// DispatchService broadcasts the latest issue.
type DispatchService interface {
	Dispatch(ctx context.Context) (*DispatchReport, error)
	SendTest(ctx context.Context, to string) (*TestSendResult, error)
}

// DispatchReport summarizes one dispatch run.
type DispatchReport struct {
	OK              bool            `json:"ok"`
	PublicationDate string          `json:"publication_date"`
	Sent            int             `json:"sent"`
	Failed          int             `json:"failed"`
	Skipped         int             `json:"skipped,omitempty"`
	Total           int             `json:"total"`
	Errors          []DispatchError `json:"errors,omitempty"`
}

type DispatchError struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

type TestSendResult struct {
	EmailID         string `json:"email_id"`
	PublicationDate string `json:"publication_date"`
	NewsCount       int    `json:"news_count"`
}
