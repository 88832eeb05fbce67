package transcode

import (
	"context"

	"github.com/amankumarsingh77/cloud-video-transcoder/internal/models"
	"github.com/amankumarsingh77/cloud-video-transcoder/pkg/utils"
)

// HistoryRepository archives terminal jobs.
type HistoryRepository interface {
	SaveJob(ctx context.Context, record *models.JobRecord) error
	ListJobs(ctx context.Context, pq *utils.Pagination) (*models.JobList, error)
}
