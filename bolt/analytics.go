package bolt

import (
	"context"
	"time"

	"github.com/go-errors/errors"

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

// Record appends an analytics event
func (es *eventService) Record(_ context.Context, e *dailybrief.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := es.db.stormDB.Save(e); err != nil {
		return dailybrief.Unavailable("bolt.Record", errors.Errorf("failed to save: %v", err))
	}

	return nil
}
