package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"price-history/internal/domain"
	"price-history/internal/observability"
	"price-history/internal/storage"
)

// JobStore implements storage.BackfillJobStore using PostgreSQL.
type JobStore struct {
	pool *Pool
}

// NewJobStore creates a new JobStore.
func NewJobStore(pool *Pool) *JobStore {
	return &JobStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BackfillJobStore = (*JobStore)(nil)

// GetJob retrieves a job by its ID. Returns ErrNotFound if not exists.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (*domain.BackfillJob, error) {
	query := `
		SELECT job_id, token, network, total_days, completed_days, status, error_message, started_at, updated_at
		FROM backfill_jobs
		WHERE job_id = $1
	`

	start := time.Now()
	job, err := scanJob(s.pool.QueryRow(ctx, query, jobID))
	if isNotFoundError(err) {
		observability.RecordDBQuery("postgres", "get_job", time.Since(start).Seconds(), nil)
		return nil, storage.ErrNotFound
	}
	observability.RecordDBQuery("postgres", "get_job", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// PutJob inserts or replaces a job record keyed by JobID.
func (s *JobStore) PutJob(ctx context.Context, job *domain.BackfillJob) error {
	if job == nil || job.JobID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO backfill_jobs (
			job_id, token, network, total_days, completed_days, status, error_message, started_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (job_id) DO UPDATE SET
			completed_days = EXCLUDED.completed_days,
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at
	`

	start := time.Now()
	_, err := s.pool.Exec(ctx, query,
		job.JobID, job.Token, job.Network,
		job.TotalDays, job.CompletedDays,
		string(job.Status), job.ErrorMessage,
		job.StartedAt, job.UpdatedAt,
	)
	observability.RecordDBQuery("postgres", "put_job", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("put job: %w", err)
	}
	return nil
}

// ListJobs retrieves all jobs, most recently updated first.
func (s *JobStore) ListJobs(ctx context.Context) ([]*domain.BackfillJob, error) {
	query := `
		SELECT job_id, token, network, total_days, completed_days, status, error_message, started_at, updated_at
		FROM backfill_jobs
		ORDER BY updated_at DESC
	`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query)
	observability.RecordDBQuery("postgres", "list_jobs", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.BackfillJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}

	return jobs, nil
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*domain.BackfillJob, error) {
	var job domain.BackfillJob
	var status string

	err := row.Scan(
		&job.JobID, &job.Token, &job.Network,
		&job.TotalDays, &job.CompletedDays,
		&status, &job.ErrorMessage,
		&job.StartedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = domain.JobStatus(status)
	return &job, nil
}
