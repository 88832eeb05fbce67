package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/amankumarsingh77/cloud-video-transcoder/internal/config"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/models"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/transcode"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/worker"
	"github.com/amankumarsingh77/cloud-video-transcoder/pkg/logger"
	"github.com/amankumarsingh77/cloud-video-transcoder/pkg/utils"
	"github.com/google/uuid"
)

const rollbackTimeout = 10 * time.Second

type transcodeUC struct {
	cfg        *config.Config
	store      transcode.JobStore
	objects    transcode.ObjectStore
	history    transcode.HistoryRepository
	dispatcher transcode.Dispatcher
	publisher  transcode.EventPublisher
	logger     logger.Logger
}

func NewTranscodeUseCase(
	cfg *config.Config,
	store transcode.JobStore,
	objects transcode.ObjectStore,
	history transcode.HistoryRepository,
	dispatcher transcode.Dispatcher,
	publisher transcode.EventPublisher,
	log logger.Logger,
) transcode.UseCase {
	return &transcodeUC{
		cfg:        cfg,
		store:      store,
		objects:    objects,
		history:    history,
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     log,
	}
}

// Submit admits one transcode request. The original is stored before the
// job exists, then the job goes straight to an idle slot or to the queue.
func (u *transcodeUC) Submit(ctx context.Context, input *models.SubmitInput) (*models.JobStatus, error) {
	if input == nil {
		return nil, fmt.Errorf("invalid input: input is nil")
	}
	if err := utils.ValidateStruct(ctx, input); err != nil {
		u.logger.Errorf("Submit - ValidateStruct error: %v", err)
		return nil, err
	}

	output := worker.ResolveOutput(input.Format)
	jobID := uuid.New().String()
	originalKey, transcodedKey := utils.StorageKeys(input.FileName, jobID, output.Container)

	inputPath, size, err := u.spool(jobID, input)
	if err != nil {
		u.logger.Errorf("Submit - spool error: %v", err)
		return nil, err
	}
	jobDir := filepath.Dir(inputPath)

	location, err := u.uploadOriginal(ctx, inputPath, originalKey, input.MimeType, size)
	if err != nil {
		u.logger.Errorf("Submit - PutObject error: %v", err)
		u.removeDir(jobDir)
		return nil, fmt.Errorf("%w: %v", transcode.ErrUploadFailed, err)
	}

	job := &models.EncodeJob{
		JobID:    jobID,
		FileName: input.FileName,
		Spec: models.TranscodeSpec{
			TargetFormat: strings.ToLower(input.Format),
			Codec:        output.VideoCodec,
			Bitrate:      input.Bitrate,
			Resolution:   input.Resolution,
		},
		State:            models.JobStateQueued,
		Progress:         0,
		OriginalKey:      originalKey,
		TranscodedKey:    transcodedKey,
		OriginalLocation: location,
		InputPath:        inputPath,
		CreatedAt:        time.Now().UTC(),
	}
	if err = u.store.Create(ctx, job); err != nil {
		u.logger.Errorf("Submit - Create error: %v", err)
		u.rollback(ctx, job, false)
		return nil, err
	}

	// a directly dispatched job is announced as running by its slot
	if u.dispatcher.TryDispatch(ctx, job) {
		u.logger.Infof("Job %s dispatched directly (%d/%d running)", jobID, u.dispatcher.Running(), u.dispatcher.Capacity())
		job.State = models.JobStateRunning
		return job.Status(), nil
	}

	if err = u.store.Enqueue(ctx, jobID, u.cfg.Worker.QueueLimit); err != nil {
		if errors.Is(err, transcode.ErrQueueFull) {
			u.logger.Warnf("Submit - queue full, rejecting job %s", jobID)
		} else {
			u.logger.Errorf("Submit - Enqueue error: %v", err)
		}
		u.rollback(ctx, job, true)
		return nil, err
	}
	u.publish(ctx, job)
	u.dispatcher.Notify()
	u.logger.Infof("Job %s queued", jobID)
	return job.Status(), nil
}

func (u *transcodeUC) Status(ctx context.Context, jobID string) (*models.JobStatus, error) {
	if jobID == "" {
		return nil, transcode.ErrJobNotFound
	}
	job, err := u.store.Get(ctx, jobID)
	if err != nil {
		if !errors.Is(err, transcode.ErrJobNotFound) {
			u.logger.Errorf("Status - Get error: %v", err)
		}
		return nil, err
	}
	return job.Status(), nil
}

func (u *transcodeUC) ListJobs(ctx context.Context, pq *utils.Pagination) (*models.JobList, error) {
	jobs, err := u.history.ListJobs(ctx, pq)
	if err != nil {
		if !errors.Is(err, transcode.ErrHistoryDisabled) {
			u.logger.Errorf("ListJobs error: %v", err)
		}
		return nil, err
	}
	return jobs, nil
}

// spool copies the upload to TempDir/<jobID>/input<ext> so a local slot can
// skip the download.
func (u *transcodeUC) spool(jobID string, input *models.SubmitInput) (string, int64, error) {
	jobDir := filepath.Join(u.cfg.Worker.TempDir, jobID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create temp directory: %w", err)
	}
	_, ext := utils.SplitFileName(input.FileName)
	inputPath := filepath.Join(jobDir, "input"+ext)

	f, err := os.Create(inputPath)
	if err != nil {
		u.removeDir(jobDir)
		return "", 0, fmt.Errorf("failed to create spool file: %w", err)
	}
	defer f.Close()
	size, err := io.Copy(f, input.File)
	if err != nil {
		u.removeDir(jobDir)
		return "", 0, fmt.Errorf("failed to spool upload: %w", err)
	}
	return inputPath, size, nil
}

func (u *transcodeUC) uploadOriginal(ctx context.Context, path, key, mimeType string, size int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return u.objects.PutObject(ctx, &models.UploadInput{
		File:     f,
		Key:      key,
		MimeType: mimeType,
		Size:     size,
	})
}

// rollback undoes an admission that could not be queued. Every step is best
// effort.
func (u *transcodeUC) rollback(ctx context.Context, job *models.EncodeJob, created bool) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	if created {
		if err := u.store.Delete(rctx, job.JobID); err != nil {
			u.logger.Errorf("rollback - Delete job %s: %v", job.JobID, err)
		}
	}
	if err := u.objects.RemoveObject(rctx, job.OriginalKey); err != nil {
		u.logger.Errorf("rollback - RemoveObject %s: %v", job.OriginalKey, err)
	}
	u.removeDir(filepath.Dir(job.InputPath))
}

func (u *transcodeUC) removeDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		u.logger.Warnf("remove %s: %v", dir, err)
	}
}

func (u *transcodeUC) publish(ctx context.Context, job *models.EncodeJob) {
	if err := u.publisher.Publish(ctx, models.NewJobEvent(job)); err != nil {
		u.logger.Warnf("Publish event for job %s: %v", job.JobID, err)
	}
}
