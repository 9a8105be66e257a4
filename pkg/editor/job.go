// pkg/editor/job.go
package editor

import (
	"time"

	"github.com/google/uuid"

	"github.com/David-Botos/parquet-editor/pkg/compiler"
	"github.com/David-Botos/parquet-editor/pkg/locator"
)

// CommitJob represents one attempt to materialize a ledger
type CommitJob struct {
	ID          string      // Unique job identifier
	SessionID   string      // Session the ledger came from, empty for stateless commits
	Source      locator.Ref // File the edits were made against
	Destination locator.Ref // File to write
	Compression string      // Parquet codec
	CreatedAt   time.Time   // Job creation timestamp
}

// NewCommitJob creates a new commit job with defaults
func NewCommitJob(source, destination locator.Ref) CommitJob {
	return CommitJob{
		ID:          uuid.New().String(),
		Source:      source,
		Destination: destination,
		Compression: "snappy",
		CreatedAt:   time.Now(),
	}
}

// WithCompression sets the parquet codec and returns the modified job
func (j CommitJob) WithCompression(compression string) CommitJob {
	if compression != "" {
		j.Compression = compression
	}
	return j
}

// WithSession records the originating session and returns the modified job
func (j CommitJob) WithSession(sessionID string) CommitJob {
	j.SessionID = sessionID
	return j
}

// CommitResult represents the result of a commit
type CommitResult struct {
	JobID           string                 `json:"job_id"`
	SessionID       string                 `json:"session_id,omitempty"`
	Source          string                 `json:"source"`
	Destination     string                 `json:"destination"`
	Success         bool                   `json:"success"`
	RowsWritten     int64                  `json:"rows_written"`
	AppliedEdits    int                    `json:"applied_edits"`
	RemovedRows     int                    `json:"removed_rows"`
	RemovedColumns  int                    `json:"removed_columns"`
	AffectedColumns []string               `json:"affected_columns"`
	Dropped         []compiler.DroppedEdit `json:"-"`
	Warnings        []string               `json:"warnings"`
	Verification    *VerificationReport    `json:"verification,omitempty"`
	StartTime       time.Time              `json:"start_time"`
	EndTime         time.Time              `json:"end_time"`
	Duration        time.Duration          `json:"duration_ns"`
}

// NewCommitResult initializes a commit result for a job
func NewCommitResult(job CommitJob) *CommitResult {
	return &CommitResult{
		JobID:       job.ID,
		SessionID:   job.SessionID,
		Source:      job.Source.Path,
		Destination: job.Destination.Path,
		StartTime:   time.Now(),
		Warnings:    make([]string, 0),
	}
}

// Complete marks the commit as complete and calculates duration
func (r *CommitResult) Complete(success bool) {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
	r.Success = success
}

// AddWarning adds a warning to the result
func (r *CommitResult) AddWarning(warning string) {
	r.Warnings = append(r.Warnings, warning)
}
