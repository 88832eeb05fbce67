package transcode

import (
	"context"

	"github.com/amankumarsingh77/cloud-video-transcoder/internal/models"
	"github.com/amankumarsingh77/cloud-video-transcoder/pkg/utils"
)

type UseCase interface {
	Submit(ctx context.Context, input *models.SubmitInput) (*models.JobStatus, error)
	Status(ctx context.Context, jobID string) (*models.JobStatus, error)
	ListJobs(ctx context.Context, pq *utils.Pagination) (*models.JobList, error)
}

// Dispatcher is the worker pool as seen from admission.
type Dispatcher interface {
	// TryDispatch claims job into a free slot and starts it. It reports
	// false only when every slot is held by a running job.
	TryDispatch(ctx context.Context, job *models.EncodeJob) bool
	// Notify wakes an idle slot after a job has been enqueued.
	Notify()
	Capacity() int
	Running() int
}

// Encoder is the external encode engine. The returned channel delivers zero
// or more non-terminal events followed by exactly one terminal event and is
// then closed.
type Encoder interface {
	Encode(ctx context.Context, req *models.EncodeRequest) <-chan models.EncodeEvent
}

type EventPublisher interface {
	Publish(ctx context.Context, event *models.JobEvent) error
	Close() error
}
