package dailybrief

import "context"

// DispatchLedger remembers which recipients already received an issue and
// guards an issue against concurrent runs.
type DispatchLedger interface {
	// Acquire takes the run lock for an issue. It returns false if another run holds it.
	Acquire(ctx context.Context, publicationDate string) (bool, error)
	// Extend pushes back the expiry of a held lock. It returns false once the lock
	// has expired or belongs to another run.
	Extend(ctx context.Context, publicationDate string) (bool, error)
	Release(ctx context.Context, publicationDate string) error
	Delivered(ctx context.Context, publicationDate, email string) (bool, error)
	MarkDelivered(ctx context.Context, publicationDate, email string) error
}
