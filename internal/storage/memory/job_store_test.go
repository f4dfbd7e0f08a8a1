package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"price-history/internal/domain"
	"price-history/internal/storage"
)

func TestJobStore_PutAndGet(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	job := &domain.BackfillJob{
		JobID:     "job-1",
		Token:     "0xabc",
		Network:   "ethereum",
		TotalDays: 10,
		Status:    domain.JobPending,
		StartedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := store.PutJob(ctx, job); err != nil {
		t.Fatalf("PutJob failed: %v", err)
	}

	got, err := store.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.TotalDays != 10 || got.Status != domain.JobPending {
		t.Errorf("GetJob = %+v", got)
	}

	// Mutating the returned copy must not affect the stored record.
	got.CompletedDays = 99
	again, _ := store.GetJob(ctx, "job-1")
	if again.CompletedDays != 0 {
		t.Errorf("store leaked internal state: CompletedDays = %d", again.CompletedDays)
	}
}

func TestJobStore_PutReplaces(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	job := &domain.BackfillJob{JobID: "job-1", Status: domain.JobPending, TotalDays: 5}
	if err := store.PutJob(ctx, job); err != nil {
		t.Fatalf("PutJob failed: %v", err)
	}

	job.Status = domain.JobRunning
	job.CompletedDays = 3
	if err := store.PutJob(ctx, job); err != nil {
		t.Fatalf("PutJob (update) failed: %v", err)
	}

	got, err := store.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != domain.JobRunning || got.CompletedDays != 3 {
		t.Errorf("GetJob after update = %+v", got)
	}
}

func TestJobStore_NotFound(t *testing.T) {
	store := NewJobStore()

	_, err := store.GetJob(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestJobStore_ListJobsOrder(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		job := &domain.BackfillJob{
			JobID:     id,
			Status:    domain.JobPending,
			UpdatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.PutJob(ctx, job); err != nil {
			t.Fatalf("PutJob failed: %v", err)
		}
	}

	jobs, err := store.ListJobs(ctx)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("Expected 3 jobs, got %d", len(jobs))
	}
	if jobs[0].JobID != "c" || jobs[2].JobID != "a" {
		t.Errorf("ListJobs order = %s, %s, %s; want c, b, a", jobs[0].JobID, jobs[1].JobID, jobs[2].JobID)
	}
}

func TestJobStore_InvalidInput(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	if err := store.PutJob(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("nil job: expected ErrInvalidInput, got %v", err)
	}
	if err := store.PutJob(ctx, &domain.BackfillJob{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty JobID: expected ErrInvalidInput, got %v", err)
	}
}
