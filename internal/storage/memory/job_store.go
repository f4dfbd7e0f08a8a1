package memory

import (
	"context"
	"sort"
	"sync"

	"price-history/internal/domain"
	"price-history/internal/storage"
)

// JobStore is an in-memory implementation of storage.BackfillJobStore.
type JobStore struct {
	mu   sync.RWMutex
	data map[string]*domain.BackfillJob // keyed by job_id
}

// NewJobStore creates a new in-memory backfill job store.
func NewJobStore() *JobStore {
	return &JobStore{
		data: make(map[string]*domain.BackfillJob),
	}
}

// Compile-time interface check.
var _ storage.BackfillJobStore = (*JobStore)(nil)

// GetJob retrieves a job by its ID. Returns ErrNotFound if not exists.
func (s *JobStore) GetJob(_ context.Context, jobID string) (*domain.BackfillJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.data[jobID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	jobCopy := *job
	return &jobCopy, nil
}

// PutJob inserts or replaces a job record keyed by JobID.
func (s *JobStore) PutJob(_ context.Context, job *domain.BackfillJob) error {
	if job == nil || job.JobID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jobCopy := *job
	s.data[job.JobID] = &jobCopy
	return nil
}

// ListJobs retrieves all jobs, most recently updated first.
func (s *JobStore) ListJobs(_ context.Context) ([]*domain.BackfillJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.BackfillJob, 0, len(s.data))
	for _, job := range s.data {
		jobCopy := *job
		result = append(result, &jobCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})

	return result, nil
}
