package bolt

import (
	"context"

	"github.com/asdine/storm/v3"
	"github.com/go-errors/errors"

	"github.com/quantonganh/dailybrief"
)

type issueService struct {
	db *DB
}

func NewIssueService(db *DB) dailybrief.IssueService {
	return &issueService{
		db: db,
	}
}

// Latest returns the issue with the greatest publication date. Keys are
// YYYY-MM-DD strings so the bucket order is the date order.
func (is *issueService) Latest(_ context.Context) (*dailybrief.Issue, error) {
	var issues []dailybrief.Issue
	if err := is.db.stormDB.All(&issues, storm.Limit(1), storm.Reverse()); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return nil, dailybrief.ErrNoIssueFound
		}
		return nil, dailybrief.Unavailable("bolt.Latest", err)
	}
	if len(issues) == 0 {
		return nil, dailybrief.ErrNoIssueFound
	}

	return &issues[0], nil
}

// Save inserts or replaces the issue of a publication date
func (is *issueService) Save(_ context.Context, issue *dailybrief.Issue) error {
	if issue.PublicationDate == "" {
		return &dailybrief.Error{Code: dailybrief.ErrInvalid, Op: "bolt.Save", Message: "publication date is required"}
	}
	if err := is.db.stormDB.Save(issue); err != nil {
		return dailybrief.Unavailable("bolt.Save", errors.Errorf("failed to save: %v", err))
	}

	return nil
}
