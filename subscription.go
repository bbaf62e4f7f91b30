package dailybrief

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// SubscriptionService is the interface that wraps methods related to subscribers.
type SubscriptionService interface {
	// UpsertPending creates the subscriber or resets an existing one to pending,
	// clearing confirmed_at and unsubscribed_at.
	UpsertPending(ctx context.Context, email string, meta SubscriptionMeta) error
	FindByEmail(ctx context.Context, email string) (*Subscriber, error)
	// SetActive moves a subscriber to active and stamps confirmed_at unless it is
	// already confirmed. It reports whether this call made the transition.
	SetActive(ctx context.Context, email string, at time.Time) (bool, error)
	SetUnsubscribed(ctx context.Context, email string, at time.Time, reason, feedback string) error
	// ListActive returns active subscribers ordered by creation time.
	ListActive(ctx context.Context) ([]Subscriber, error)
	CountAll(ctx context.Context) (int, error)
}

// Subscriber represents a newsletter subscriber
type Subscriber struct {
	ID                  int    `storm:"id,increment"`
	Email               string `storm:"unique"`
	Status              string `storm:"index"`
	Source              string
	ReferralCode        string `storm:"index"`
	ConsentIP           string
	ConsentUserAgent    string
	UnsubscribeReason   string
	UnsubscribeFeedback string
	CreatedAt           time.Time `storm:"index"`
	ConfirmedAt         *time.Time
	UnsubscribedAt      *time.Time
}

// Subscriber status
const (
	StatusPending      = "pending"
	StatusActive       = "active"
	StatusUnsubscribed = "unsubscribed"
)

// Confirmed reports whether the subscriber already went through Confirm.
func (s *Subscriber) Confirmed() bool {
	return s.Status == StatusActive && s.ConfirmedAt != nil
}

// SubscriptionMeta is the consent metadata captured on Subscribe.
type SubscriptionMeta struct {
	Source           string
	ConsentIP        string
	ConsentUserAgent string
	// ReferralCode is only used when a new row is created.
	ReferralCode string
}

type SubscriptionRequest struct {
	Email  string `json:"email"`
	Source string `json:"source"`
}

type SubscriptionResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type UnsubscribeRequest struct {
	Reason   string `json:"reason"`
	Feedback string `json:"feedback"`
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail checks the simple local@domain.tld shape.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}
