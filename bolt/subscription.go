package bolt

import (
	"context"
	"sort"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/go-errors/errors"

	"github.com/quantonganh/dailybrief"
)

type subscriptionService struct {
	db *DB
}

func NewSubscriptionService(db *DB) dailybrief.SubscriptionService {
	return &subscriptionService{
		db: db,
	}
}

// FindByEmail finds a subscriber by email
func (ss *subscriptionService) FindByEmail(_ context.Context, email string) (*dailybrief.Subscriber, error) {
	var s dailybrief.Subscriber
	if err := ss.db.stormDB.One("Email", email, &s); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return nil, dailybrief.NotFound("bolt.FindByEmail", "subscriber not found")
		}
		return nil, dailybrief.Unavailable("bolt.FindByEmail", err)
	}

	return &s, nil
}

// UpsertPending inserts a new pending subscriber or resets an existing one
func (ss *subscriptionService) UpsertPending(ctx context.Context, email string, meta dailybrief.SubscriptionMeta) error {
	s, err := ss.FindByEmail(ctx, email)
	if err != nil {
		if dailybrief.ErrorCode(err) != dailybrief.ErrNotFound {
			return err
		}
		s = &dailybrief.Subscriber{
			Email:        email,
			ReferralCode: meta.ReferralCode,
			CreatedAt:    time.Now().UTC(),
		}
	}

	s.Status = dailybrief.StatusPending
	s.Source = meta.Source
	s.ConsentIP = meta.ConsentIP
	s.ConsentUserAgent = meta.ConsentUserAgent
	s.ConfirmedAt = nil
	s.UnsubscribedAt = nil
	if s.ReferralCode == "" {
		s.ReferralCode = meta.ReferralCode
	}

	if err := ss.db.stormDB.Save(s); err != nil {
		return dailybrief.Unavailable("bolt.UpsertPending", errors.Errorf("failed to save: %v", err))
	}

	return nil
}

// SetActive flips a pending subscriber to active inside one write transaction,
// so that of two concurrent confirmations only one reports true.
func (ss *subscriptionService) SetActive(_ context.Context, email string, at time.Time) (bool, error) {
	tx, err := ss.db.stormDB.Begin(true)
	if err != nil {
		return false, dailybrief.Unavailable("bolt.SetActive", errors.Errorf("failed to begin: %v", err))
	}
	defer tx.Rollback()

	var s dailybrief.Subscriber
	if err := tx.One("Email", email, &s); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return false, dailybrief.NotFound("bolt.SetActive", "subscriber not found")
		}
		return false, dailybrief.Unavailable("bolt.SetActive", err)
	}
	if s.Confirmed() {
		return false, nil
	}

	s.Status = dailybrief.StatusActive
	s.ConfirmedAt = &at
	if err := tx.Save(&s); err != nil {
		return false, dailybrief.Unavailable("bolt.SetActive", errors.Errorf("failed to save: %v", err))
	}
	if err := tx.Commit(); err != nil {
		return false, dailybrief.Unavailable("bolt.SetActive", errors.Errorf("failed to commit: %v", err))
	}

	return true, nil
}

// SetUnsubscribed unsubscribes from newsletter
func (ss *subscriptionService) SetUnsubscribed(ctx context.Context, email string, at time.Time, reason, feedback string) error {
	s, err := ss.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	s.Status = dailybrief.StatusUnsubscribed
	s.UnsubscribedAt = &at
	if reason != "" {
		s.UnsubscribeReason = reason
	}
	if feedback != "" {
		s.UnsubscribeFeedback = feedback
	}
	if err := ss.db.stormDB.Save(s); err != nil {
		return dailybrief.Unavailable("bolt.SetUnsubscribed", errors.Errorf("failed to save: %v", err))
	}

	return nil
}

// ListActive finds active subscribers, oldest first
func (ss *subscriptionService) ListActive(_ context.Context) ([]dailybrief.Subscriber, error) {
	var subscribers []dailybrief.Subscriber
	if err := ss.db.stormDB.Find("Status", dailybrief.StatusActive, &subscribers); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return []dailybrief.Subscriber{}, nil
		}
		return nil, dailybrief.Unavailable("bolt.ListActive", errors.Errorf("failed to find by status: %v", err))
	}

	sort.SliceStable(subscribers, func(i, j int) bool {
		if !subscribers[i].CreatedAt.Equal(subscribers[j].CreatedAt) {
			return subscribers[i].CreatedAt.Before(subscribers[j].CreatedAt)
		}
		return subscribers[i].ID < subscribers[j].ID
	})

	return subscribers, nil
}

// CountAll counts subscribers in every status
func (ss *subscriptionService) CountAll(_ context.Context) (int, error) {
	n, err := ss.db.stormDB.Count(&dailybrief.Subscriber{})
	if err != nil {
		return 0, dailybrief.Unavailable("bolt.CountAll", err)
	}
	return n, nil
}
