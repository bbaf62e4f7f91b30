package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

const subscriberColumns = `email, status, source, referral_code, created_at, confirmed_at, unsubscribed_at`

// UpsertPending inserts a pending subscriber, or resets an existing row keyed by email.
// The referral code of an existing row is kept.
func (ss *subscriptionService) UpsertPending(ctx context.Context, email string, meta dailybrief.SubscriptionMeta) error {
	_, err := ss.db.sqlDB.ExecContext(ctx, `
		INSERT INTO subscribers (email, status, source, referral_code, consent_ip, consent_user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (email) DO UPDATE SET
			status = EXCLUDED.status,
			source = EXCLUDED.source,
			consent_ip = EXCLUDED.consent_ip,
			consent_user_agent = EXCLUDED.consent_user_agent,
			confirmed_at = NULL,
			unsubscribed_at = NULL`,
		email, dailybrief.StatusPending, meta.Source, meta.ReferralCode,
		nullString(meta.ConsentIP), nullString(meta.ConsentUserAgent), time.Now().UTC())
	if err != nil {
		return dailybrief.Unavailable("postgres.UpsertPending", fmt.Errorf("failed to upsert: %w", err))
	}
	return nil
}

// FindByEmail finds a subscriber by email
func (ss *subscriptionService) FindByEmail(ctx context.Context, email string) (*dailybrief.Subscriber, error) {
	row := ss.db.sqlDB.QueryRowContext(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE email = $1`, email)

	s, err := scanSubscriber(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dailybrief.NotFound("postgres.FindByEmail", "subscriber not found")
		}
		return nil, dailybrief.Unavailable("postgres.FindByEmail", fmt.Errorf("failed to find by email %s: %w", email, err))
	}
	return s, nil
}

// SetActive flips a subscriber to active unless it is already confirmed. The
// guard lives in the WHERE clause so concurrent confirmations update the row once.
func (ss *subscriptionService) SetActive(ctx context.Context, email string, at time.Time) (bool, error) {
	res, err := ss.db.sqlDB.ExecContext(ctx,
		`UPDATE subscribers SET status = $1, confirmed_at = $2 WHERE email = $3 AND (status <> $1 OR confirmed_at IS NULL)`,
		dailybrief.StatusActive, at, email)
	if err != nil {
		return false, dailybrief.Unavailable("postgres.SetActive", fmt.Errorf("failed to update status: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dailybrief.Unavailable("postgres.SetActive", err)
	}
	if n > 0 {
		return true, nil
	}

	var exists bool
	if err := ss.db.sqlDB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM subscribers WHERE email = $1)`, email).Scan(&exists); err != nil {
		return false, dailybrief.Unavailable("postgres.SetActive", fmt.Errorf("failed to look up %s: %w", email, err))
	}
	if !exists {
		return false, dailybrief.NotFound("postgres.SetActive", "subscriber not found")
	}
	return false, nil
}

// SetUnsubscribed unsubscribes from newsletter. Empty reason or feedback leave the stored values untouched.
func (ss *subscriptionService) SetUnsubscribed(ctx context.Context, email string, at time.Time, reason, feedback string) error {
	res, err := ss.db.sqlDB.ExecContext(ctx, `
		UPDATE subscribers SET
			status = $1,
			unsubscribed_at = $2,
			unsubscribe_reason = COALESCE($3, unsubscribe_reason),
			unsubscribe_feedback = COALESCE($4, unsubscribe_feedback)
		WHERE email = $5`,
		dailybrief.StatusUnsubscribed, at, nullString(reason), nullString(feedback), email)
	if err != nil {
		return dailybrief.Unavailable("postgres.SetUnsubscribed", fmt.Errorf("failed to update status: %w", err))
	}
	return expectRow("postgres.SetUnsubscribed", res)
}

// ListActive finds active subscribers, oldest first
func (ss *subscriptionService) ListActive(ctx context.Context) ([]dailybrief.Subscriber, error) {
	rows, err := ss.db.sqlDB.QueryContext(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE status = $1 ORDER BY created_at ASC, id ASC`,
		dailybrief.StatusActive)
	if err != nil {
		return nil, dailybrief.Unavailable("postgres.ListActive", fmt.Errorf("failed to find by status: %w", err))
	}
	defer rows.Close()

	subscribers := []dailybrief.Subscriber{}
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, dailybrief.Unavailable("postgres.ListActive", fmt.Errorf("failed to scan row: %w", err))
		}
		subscribers = append(subscribers, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, dailybrief.Unavailable("postgres.ListActive", err)
	}

	return subscribers, nil
}

// CountAll counts subscribers in every status
func (ss *subscriptionService) CountAll(ctx context.Context) (int, error) {
	var n int
	if err := ss.db.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscribers`).Scan(&n); err != nil {
		return 0, dailybrief.Unavailable("postgres.CountAll", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscriber(row scanner) (*dailybrief.Subscriber, error) {
	var (
		s              dailybrief.Subscriber
		confirmedAt    sql.NullTime
		unsubscribedAt sql.NullTime
	)
	if err := row.Scan(&s.Email, &s.Status, &s.Source, &s.ReferralCode, &s.CreatedAt, &confirmedAt, &unsubscribedAt); err != nil {
		return nil, err
	}
	if confirmedAt.Valid {
		s.ConfirmedAt = &confirmedAt.Time
	}
	if unsubscribedAt.Valid {
		s.UnsubscribedAt = &unsubscribedAt.Time
	}
	return &s, nil
}

func expectRow(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return dailybrief.Unavailable(op, err)
	}
	if n == 0 {
		return dailybrief.NotFound(op, "subscriber not found")
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
