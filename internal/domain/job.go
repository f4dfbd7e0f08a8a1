package domain

import "time"

// JobStatus is the lifecycle state of a backfill job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobError     JobStatus = "error"
)

// BackfillJob tracks one historical-backfill run for a (token, network) pair.
// Invariants: CompletedDays <= TotalDays; Status is JobCompleted iff
// CompletedDays == TotalDays; JobError and JobCompleted are terminal.
type BackfillJob struct {
	JobID         string
	Token         string // normalized lowercase
	Network       string
	TotalDays     int
	CompletedDays int
	Status        JobStatus
	ErrorMessage  string
	StartedAt     time.Time
	UpdatedAt     time.Time
}

// Terminal reports whether the job can no longer transition.
func (j *BackfillJob) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobError
}
