package storage

import (
	"context"

	"price-history/internal/domain"
)

// PriceStore provides access to price_points storage.
type PriceStore interface {
	// Insert adds a single point. Returns ErrDuplicateKey if a point for
	// (token, network, date) already exists.
	Insert(ctx context.Context, p *domain.PricePoint) error

	// InsertBatch adds multiple points. Points whose (token, network, date)
	// key already exists are skipped silently, so a batch that revisits a
	// boundary day is an idempotent no-op for those days.
	InsertBatch(ctx context.Context, points []*domain.PricePoint) error

	// QueryNear retrieves points within [ts-tolerance, ts+tolerance],
	// ordered by timestamp ASC.
	QueryNear(ctx context.Context, token, network string, ts, tolerance int64) ([]*domain.PricePoint, error)

	// QueryBefore retrieves the nearest point strictly before ts.
	// Returns ErrNotFound if none exists.
	QueryBefore(ctx context.Context, token, network string, ts int64) (*domain.PricePoint, error)

	// QueryAfter retrieves the nearest point strictly after ts.
	// Returns ErrNotFound if none exists.
	QueryAfter(ctx context.Context, token, network string, ts int64) (*domain.PricePoint, error)

	// QueryLatestDate returns the latest stored date (UTC day start) for
	// the pair. Returns ErrNotFound if no points exist.
	QueryLatestDate(ctx context.Context, token, network string) (int64, error)

	// QueryRange retrieves points with timestamp within [from, to]
	// (inclusive), ordered by timestamp ASC.
	QueryRange(ctx context.Context, token, network string, from, to int64) ([]*domain.PricePoint, error)
}

// BackfillJobStore provides persistence for backfill job state.
// Job records survive process restarts so that progress is observable
// and a crashed run can be diagnosed and rescheduled.
type BackfillJobStore interface {
	// GetJob retrieves a job by its ID. Returns ErrNotFound if not exists.
	GetJob(ctx context.Context, jobID string) (*domain.BackfillJob, error)

	// PutJob inserts or replaces a job record keyed by JobID.
	PutJob(ctx context.Context, job *domain.BackfillJob) error

	// ListJobs retrieves all jobs, most recently updated first.
	ListJobs(ctx context.Context) ([]*domain.BackfillJob, error)
}
