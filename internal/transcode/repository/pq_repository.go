package repository

import (
	"context"
	"fmt"

	"github.com/amankumarsingh77/cloud-video-transcoder/internal/models"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/transcode"
	"github.com/amankumarsingh77/cloud-video-transcoder/pkg/utils"
	"github.com/jmoiron/sqlx"
)

type historyRepo struct {
	db *sqlx.DB
}

func NewHistoryRepo(db *sqlx.DB) transcode.HistoryRepository {
	return &historyRepo{
		db: db,
	}
}

func (h *historyRepo) SaveJob(ctx context.Context, record *models.JobRecord) error {
	if _, err := h.db.ExecContext(
		ctx,
		saveJobQuery,
		record.JobID,
		record.FileName,
		record.TargetFormat,
		record.Codec,
		record.Bitrate,
		record.Resolution,
		record.State,
		record.OriginalKey,
		record.TranscodedKey,
		record.ErrorKind,
		record.ErrorMessage,
		record.CreatedAt,
		record.CompletedAt,
	); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (h *historyRepo) ListJobs(ctx context.Context, pq *utils.Pagination) (*models.JobList, error) {
	var totalCount int
	if err := h.db.GetContext(ctx, &totalCount, getTotalJobsCountQuery); err != nil {
		return nil, fmt.Errorf("failed to get total jobs count: %w", err)
	}
	if totalCount == 0 {
		return &models.JobList{
			Jobs:       make([]*models.JobRecord, 0),
			TotalCount: 0,
			Page:       0,
			PageSize:   0,
			TotalPages: 0,
			HasMore:    false,
		}, nil
	}
	rows, err := h.db.QueryxContext(
		ctx,
		getJobsQuery,
		pq.GetOffset(),
		pq.GetLimit(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get jobs: %w", err)
	}
	defer rows.Close()
	jobs := make([]*models.JobRecord, 0, pq.GetSize())
	for rows.Next() {
		var record models.JobRecord
		if err = rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, &record)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan jobs: %w", err)
	}
	return &models.JobList{
		Jobs:       jobs,
		TotalCount: totalCount,
		Page:       pq.GetPage(),
		PageSize:   pq.GetSize(),
		TotalPages: utils.GetTotalPages(totalCount, pq.GetSize()),
		HasMore:    utils.GetHasMore(pq.GetPage(), totalCount, pq.GetSize()),
	}, nil
}

// noopHistoryRepo stands in when Postgres is disabled.
type noopHistoryRepo struct{}

func NewNoopHistoryRepo() transcode.HistoryRepository {
	return noopHistoryRepo{}
}

func (noopHistoryRepo) SaveJob(context.Context, *models.JobRecord) error {
	return nil
}

func (noopHistoryRepo) ListJobs(context.Context, *utils.Pagination) (*models.JobList, error) {
	return nil, transcode.ErrHistoryDisabled
}
