package backfill

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"price-history/internal/domain"
	"price-history/internal/idhash"
	"price-history/internal/observability"
	"price-history/internal/storage"
	"price-history/internal/upstream"
)

const (
	// DefaultChunkSize is the number of days fetched concurrently per chunk.
	DefaultChunkSize = 10

	// DefaultChunkInterval is the minimum spacing between chunk starts.
	DefaultChunkInterval = 2 * time.Second

	// JobIDUpToDate is returned by Schedule when the pair already has every
	// day stored and no job is started.
	JobIDUpToDate = "up-to-date"
)

// ErrCancelled is recorded as the error message of a cancelled job.
var ErrCancelled = errors.New("cancelled")

// PacingLimiter builds the chunk pacing limiter for a given spacing. The
// burst of one lets the first chunk start immediately.
func PacingLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Options configures a Runner.
type Options struct {
	PriceStore storage.PriceStore
	JobStore   storage.BackfillJobStore
	Source     upstream.PriceSource
	Origin     upstream.OriginLookup

	// Limiter paces chunk starts. Defaults to one chunk per
	// DefaultChunkInterval with no delay before the first chunk.
	Limiter *rate.Limiter

	// ChunkSize is the number of concurrent fetches per chunk.
	ChunkSize int

	// Now overrides the clock, for tests.
	Now func() time.Time

	Logger *log.Logger
}

// jobHandle tracks one in-flight job.
type jobHandle struct {
	cancel atomic.Bool
	done   chan struct{}
}

// Runner schedules and executes backfill jobs. Chunks within a job run
// strictly in order; fetches within a chunk run concurrently.
type Runner struct {
	prices  storage.PriceStore
	jobs    storage.BackfillJobStore
	source  upstream.PriceSource
	origin  upstream.OriginLookup
	limiter *rate.Limiter
	chunk   int
	now     func() time.Time
	log     *log.Logger

	mu     sync.Mutex
	active map[string]*jobHandle
	wg     sync.WaitGroup
}

// New creates a Runner. PriceStore, JobStore, Source and Origin are required.
func New(opts Options) (*Runner, error) {
	if opts.PriceStore == nil {
		return nil, errors.New("backfill: PriceStore is required")
	}
	if opts.JobStore == nil {
		return nil, errors.New("backfill: JobStore is required")
	}
	if opts.Source == nil {
		return nil, errors.New("backfill: Source is required")
	}
	if opts.Origin == nil {
		return nil, errors.New("backfill: Origin is required")
	}

	limiter := opts.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(DefaultChunkInterval), 1)
	}
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[backfill] ", log.LstdFlags)
	}

	return &Runner{
		prices:  opts.PriceStore,
		jobs:    opts.JobStore,
		source:  opts.Source,
		origin:  opts.Origin,
		limiter: limiter,
		chunk:   chunk,
		now:     now,
		log:     logger,
	}, nil
}

// Schedule determines the missing day range for (token, network), records a
// pending job and starts it in the background. Returns the job ID and the
// number of days the job will fetch. When no days are missing no job is
// started and the JobIDUpToDate sentinel is returned with zero days.
func (r *Runner) Schedule(ctx context.Context, token, network string) (string, int, error) {
	token = domain.NormalizeToken(token)
	if token == "" || network == "" {
		return "", 0, storage.ErrInvalidInput
	}

	now := r.now()

	start, err := r.startTimestamp(ctx, token, network)
	if err != nil {
		return "", 0, err
	}

	days := enumerateDays(start, now.Unix())
	if len(days) == 0 {
		r.log.Printf("backfill %s/%s already up to date", network, token)
		return JobIDUpToDate, 0, nil
	}

	jobID := idhash.ComputeJobID(token, network, days[0], now.UnixNano())
	job := &domain.BackfillJob{
		JobID:     jobID,
		Token:     token,
		Network:   network,
		TotalDays: len(days),
		Status:    domain.JobPending,
		StartedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
	if err := r.jobs.PutJob(ctx, job); err != nil {
		return "", 0, fmt.Errorf("record pending job: %w", err)
	}

	handle := &jobHandle{done: make(chan struct{})}
	r.mu.Lock()
	if r.active == nil {
		r.active = make(map[string]*jobHandle)
	}
	r.active[jobID] = handle
	observability.SetActiveBackfillJobs(len(r.active))
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(job, days, handle)

	r.log.Printf("scheduled backfill %s for %s/%s: %d days from %d",
		jobID[:12], network, token, len(days), days[0])
	return jobID, len(days), nil
}

// startTimestamp picks the first day to fetch: the day after the latest
// stored one, or the token's first-seen day when nothing is stored yet.
func (r *Runner) startTimestamp(ctx context.Context, token, network string) (int64, error) {
	latest, err := r.prices.QueryLatestDate(ctx, token, network)
	if err == nil {
		return latest + domain.DaySeconds, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("query latest date: %w", err)
	}

	firstSeen, err := r.origin.FirstSeen(ctx, token, network)
	if err != nil {
		return 0, fmt.Errorf("lookup token origin: %w", err)
	}
	return firstSeen, nil
}

// run executes a job to completion. It uses a background context so that the
// scheduling request's cancellation does not abort the job; Cancel is the
// only way to stop it early.
func (r *Runner) run(job *domain.BackfillJob, days []int64, handle *jobHandle) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		delete(r.active, job.JobID)
		observability.SetActiveBackfillJobs(len(r.active))
		r.mu.Unlock()
		close(handle.done)
	}()

	ctx := context.Background()

	job.Status = domain.JobRunning
	r.putJob(ctx, job)

	for _, chunk := range chunkDays(days, r.chunk) {
		if handle.cancel.Load() {
			r.finish(ctx, job, domain.JobError, ErrCancelled.Error())
			return
		}

		if err := r.limiter.Wait(ctx); err != nil {
			r.finish(ctx, job, domain.JobError, fmt.Sprintf("pacing interrupted: %v", err))
			return
		}

		points, fetchErr := r.fetchChunk(ctx, job, chunk)

		// Fetched siblings of a failed day are still written so a later
		// run resumes past them.
		if len(points) > 0 {
			if err := r.prices.InsertBatch(ctx, points); err != nil {
				r.finish(ctx, job, domain.JobError, fmt.Sprintf("write chunk: %v", err))
				return
			}
			job.CompletedDays += len(points)
			observability.RecordBackfillChunk(len(points))
		}

		if fetchErr != nil {
			r.finish(ctx, job, domain.JobError, fetchErr.Error())
			return
		}

		r.putJob(ctx, job)
	}

	r.finish(ctx, job, domain.JobCompleted, "")
}

// fetchChunk fetches all days of a chunk concurrently. It returns every
// successfully fetched point sorted by timestamp, plus the error of the
// earliest failed day if any fetch failed.
func (r *Runner) fetchChunk(ctx context.Context, job *domain.BackfillJob, chunk []int64) ([]*domain.PricePoint, error) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		points  []*domain.PricePoint
		failTs  int64
		failErr error
	)

	for _, ts := range chunk {
		wg.Add(1)
		go func(ts int64) {
			defer wg.Done()

			price, err := r.source.FetchAt(ctx, job.Token, job.Network, ts)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if failErr == nil || ts < failTs {
					failTs, failErr = ts, err
				}
				return
			}
			points = append(points, domain.NewPricePoint(job.Token, job.Network, ts, price))
		}(ts)
	}
	wg.Wait()

	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp < points[j].Timestamp })

	if failErr != nil {
		return points, fmt.Errorf("fetch day %d: %w", failTs, failErr)
	}
	return points, nil
}

// finish moves the job to a terminal state and persists it.
func (r *Runner) finish(ctx context.Context, job *domain.BackfillJob, status domain.JobStatus, errMsg string) {
	job.Status = status
	job.ErrorMessage = errMsg
	r.putJob(ctx, job)
	observability.RecordBackfillJob(string(status))

	if status == domain.JobError {
		r.log.Printf("backfill %s failed after %d/%d days: %s",
			job.JobID[:12], job.CompletedDays, job.TotalDays, errMsg)
		return
	}
	r.log.Printf("backfill %s completed: %d days", job.JobID[:12], job.CompletedDays)
}

// putJob persists job progress. Persistence failures are logged, not fatal;
// the in-memory job keeps running and the next update retries.
func (r *Runner) putJob(ctx context.Context, job *domain.BackfillJob) {
	job.UpdatedAt = r.now().UTC()
	if err := r.jobs.PutJob(ctx, job); err != nil {
		r.log.Printf("WARN: persist job %s: %v", job.JobID[:12], err)
	}
}

// Status returns the stored state of a job. The JobIDUpToDate sentinel maps
// to a synthetic completed job with zero days.
func (r *Runner) Status(ctx context.Context, jobID string) (*domain.BackfillJob, error) {
	if jobID == JobIDUpToDate {
		now := r.now().UTC()
		return &domain.BackfillJob{
			JobID:     JobIDUpToDate,
			Status:    domain.JobCompleted,
			StartedAt: now,
			UpdatedAt: now,
		}, nil
	}
	return r.jobs.GetJob(ctx, jobID)
}

// Cancel requests that a running job stop before its next chunk. The job
// finishes with status error and message "cancelled". Returns ErrNotFound
// when the job is not currently running.
func (r *Runner) Cancel(jobID string) error {
	r.mu.Lock()
	handle, ok := r.active[jobID]
	r.mu.Unlock()
	if !ok {
		return storage.ErrNotFound
	}
	handle.cancel.Store(true)
	return nil
}

// Wait blocks until the job finishes. Returns immediately when the job is
// not currently running.
func (r *Runner) Wait(jobID string) {
	r.mu.Lock()
	handle, ok := r.active[jobID]
	r.mu.Unlock()
	if !ok {
		return
	}
	<-handle.done
}

// Drain waits for all in-flight jobs to finish. Used on shutdown.
func (r *Runner) Drain() {
	r.wg.Wait()
}
