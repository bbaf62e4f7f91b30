package postgres

import (
	"context"
	"fmt"

	"github.com/quantonganh/dailybrief"
)

type eventService struct {
	db *DB
}

func NewEventService(db *DB) dailybrief.EventService {
	return &eventService{
		db: db,
	}
}

// Record inserts one row into email_analytics
func (es *eventService) Record(ctx context.Context, e *dailybrief.Event) error {
	var metadata interface{}
	if len(e.Metadata) > 0 {
		metadata = []byte(e.Metadata)
	}

	err := es.db.sqlDB.QueryRowContext(ctx, `
		INSERT INTO email_analytics (email, event_type, newsletter_date, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		nullString(e.Email), string(e.Type), nullString(e.NewsletterDate), metadata).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return dailybrief.Unavailable("postgres.Record", fmt.Errorf("failed to insert event: %w", err))
	}
	return nil
}
