package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"price-history/internal/domain"
	"price-history/internal/storage"
	"price-history/internal/storage/postgres"
)

func TestJobStore_PutGetUpdate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewJobStore(pool)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	job := &domain.BackfillJob{
		JobID:     "job-1",
		Token:     "0xabc",
		Network:   "ethereum",
		TotalDays: 10,
		Status:    domain.JobPending,
		StartedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.PutJob(ctx, job))

	got, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, 10, got.TotalDays)
	require.Equal(t, domain.JobPending, got.Status)

	job.Status = domain.JobRunning
	job.CompletedDays = 10
	job.Status = domain.JobCompleted
	job.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, store.PutJob(ctx, job))

	got, err = store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, domain.JobCompleted, got.Status)
	require.Equal(t, 10, got.CompletedDays)
}

func TestJobStore_GetMissing(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewJobStore(pool)

	_, err := store.GetJob(context.Background(), "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestJobStore_ListJobs(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewJobStore(pool)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Microsecond)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.PutJob(ctx, &domain.BackfillJob{
			JobID:     id,
			Token:     "0xabc",
			Network:   "ethereum",
			TotalDays: 1,
			Status:    domain.JobPending,
			StartedAt: base,
			UpdatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	jobs, err := store.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	require.Equal(t, "c", jobs[0].JobID)
	require.Equal(t, "a", jobs[2].JobID)
}
