package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quantonganh/dailybrief"
)

const dateLayout = "2006-01-02"

type issueService struct {
	db *DB
}

func NewIssueService(db *DB) dailybrief.IssueService {
	return &issueService{
		db: db,
	}
}

// Latest returns the newsletter with the most recent publication_date
func (is *issueService) Latest(ctx context.Context) (*dailybrief.Issue, error) {
	var (
		date    time.Time
		content []byte
	)
	err := is.db.sqlDB.QueryRowContext(ctx, `SELECT publication_date, content FROM newsletters ORDER BY publication_date DESC LIMIT 1`).
		Scan(&date, &content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dailybrief.ErrNoIssueFound
		}
		return nil, dailybrief.Unavailable("postgres.Latest", err)
	}

	issue := &dailybrief.Issue{PublicationDate: date.Format(dateLayout)}
	if err := json.Unmarshal(content, &issue.Content); err != nil {
		return nil, &dailybrief.Error{Code: dailybrief.ErrInternal, Op: "postgres.Latest", Err: fmt.Errorf("failed to decode content: %w", err)}
	}

	return issue, nil
}

// Save inserts or replaces the newsletter of a publication date
func (is *issueService) Save(ctx context.Context, issue *dailybrief.Issue) error {
	if _, err := time.Parse(dateLayout, issue.PublicationDate); err != nil {
		return &dailybrief.Error{Code: dailybrief.ErrInvalid, Op: "postgres.Save", Message: "publication date must be YYYY-MM-DD"}
	}

	content, err := json.Marshal(issue.Content)
	if err != nil {
		return err
	}

	_, err = is.db.sqlDB.ExecContext(ctx, `
		INSERT INTO newsletters (publication_date, content) VALUES ($1, $2)
		ON CONFLICT (publication_date) DO UPDATE SET content = EXCLUDED.content`,
		issue.PublicationDate, content)
	if err != nil {
		return dailybrief.Unavailable("postgres.Save", fmt.Errorf("failed to save newsletter: %w", err))
	}
	return nil
}
