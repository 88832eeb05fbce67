package transcode

import (
	"context"

	"github.com/amankumarsingh77/cloud-video-transcoder/internal/models"
)

// JobStore is the single source of truth for job existence and state.
// Every state change goes through an atomic compare-and-set on the job's
// current state, so two paths can never both finish the same job.
type JobStore interface {
	Create(ctx context.Context, job *models.EncodeJob) error
	Get(ctx context.Context, jobID string) (*models.EncodeJob, error)
	Delete(ctx context.Context, jobID string) error

	// Enqueue appends jobID to the FIFO queue. It returns ErrQueueFull when
	// limit > 0 and the queue already holds limit entries.
	Enqueue(ctx context.Context, jobID string, limit int64) error
	// Dequeue pops the oldest queued id. It returns "" with a nil error when
	// the queue is empty.
	Dequeue(ctx context.Context) (string, error)
	QueueLength(ctx context.Context) (int64, error)

	// Claim moves a queued job to running under owner.
	Claim(ctx context.Context, jobID, owner string) (*models.EncodeJob, error)
	UpdateProgress(ctx context.Context, jobID string, progress int) error
	// Finish moves a running job to a terminal state.
	Finish(ctx context.Context, job *models.EncodeJob) error
	RunningJobs(ctx context.Context) ([]string, error)

	Heartbeat(ctx context.Context, owner string) error
	IsAlive(ctx context.Context, owner string) (bool, error)
}
