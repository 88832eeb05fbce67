package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/amankumarsingh77/cloud-video-transcoder/internal/models"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/transcode"
	"github.com/amankumarsingh77/cloud-video-transcoder/pkg/utils"
)

// process runs one claimed job to a terminal state. The job's temp dir is
// removed afterwards whatever the outcome.
func (p *Pool) process(ctx context.Context, job *models.EncodeJob) {
	jobDir := filepath.Join(p.cfg.Worker.TempDir, job.JobID)
	defer func() {
		if err := os.RemoveAll(jobDir); err != nil {
			p.logger.Warnf("Cleanup job %s: %v", job.JobID, err)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("Job %s panicked: %v", job.JobID, r)
			p.finish(ctx, job, nil, &models.JobError{
				Kind:    models.ErrorKindInternal,
				Message: fmt.Sprintf("panic: %v", r),
			})
		}
	}()

	// Shutdown does not abort a running encode; only the job timeout does.
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.Worker.JobTimeout)
	defer cancel()

	start := time.Now()
	result, jobErr := p.transcode(jobCtx, job, jobDir)
	p.logger.Infof("Job %s finished in %s", job.JobID, time.Since(start))
	p.finish(ctx, job, result, jobErr)
}

func (p *Pool) transcode(ctx context.Context, job *models.EncodeJob, jobDir string) (*models.JobResult, *models.JobError) {
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return nil, classify(ctx, models.ErrorKindInternal, fmt.Errorf("failed to create temp directory: %w", err))
	}
	inputPath, err := p.acquireInput(ctx, job, jobDir)
	if err != nil {
		return nil, classify(ctx, models.ErrorKindInternal, err)
	}

	output := ResolveOutput(job.Spec.TargetFormat)
	codec := job.Spec.Codec
	if codec == "" {
		codec = output.VideoCodec
	}
	req := &models.EncodeRequest{
		JobID:        job.JobID,
		InputPath:    inputPath,
		OutputPath:   filepath.Join(jobDir, "output."+output.Container),
		Container:    output.Container,
		VideoCodec:   codec,
		AudioCodec:   p.cfg.Encoder.AudioCodec,
		AudioBitrate: p.cfg.Encoder.AudioBitrate,
		Bitrate:      job.Spec.Bitrate,
		Resolution:   job.Spec.Resolution,
	}
	outputPath, err := p.encode(ctx, req)
	if err != nil {
		return nil, classify(ctx, models.ErrorKindEncode, err)
	}

	location, err := p.upload(ctx, job, outputPath, output.MimeType)
	if err != nil {
		return nil, classify(ctx, models.ErrorKindUpload, err)
	}

	result := &models.JobResult{
		OriginalLocation:   job.OriginalLocation,
		TranscodedLocation: location,
	}
	url, err := p.objects.GetPresignedURL(ctx, job.TranscodedKey, p.cfg.S3.PresignExpiry)
	if err != nil {
		// the artifact is durable; the link can be signed again later
		p.logger.Warnf("Presign job %s: %v", job.JobID, err)
	} else {
		result.DownloadURL = url
	}
	return result, nil
}

// acquireInput prefers the copy spooled at admission and falls back to the
// original in the object store.
func (p *Pool) acquireInput(ctx context.Context, job *models.EncodeJob, jobDir string) (string, error) {
	if job.InputPath != "" {
		if _, err := os.Stat(job.InputPath); err == nil {
			return job.InputPath, nil
		}
	}

	_, ext := utils.SplitFileName(job.FileName)
	localPath := filepath.Join(jobDir, "input"+ext)
	body, err := p.objects.GetObject(ctx, job.OriginalKey)
	if err != nil {
		return "", err
	}
	defer body.Close()

	out, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to create local video file: %w", err)
	}
	defer out.Close()
	if _, err = io.Copy(out, body); err != nil {
		return "", fmt.Errorf("failed to write video file: %w", err)
	}
	return localPath, nil
}

// encode waits for the engine's terminal event. A hung engine is abandoned
// when ctx expires.
func (p *Pool) encode(ctx context.Context, req *models.EncodeRequest) (string, error) {
	events := p.encoder.Encode(ctx, req)
	for {
		select {
		case <-ctx.Done():
			go drain(events)
			return "", ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return "", errors.New("encoder stopped without a result")
			}
			switch ev.Type {
			case models.EncodeStarted:
				p.logger.Debugf("Encode started for job %s", req.JobID)
			case models.EncodeProgress:
				if err := p.store.UpdateProgress(ctx, req.JobID, ev.Progress); err != nil {
					p.logger.Warnf("UpdateProgress job %s: %v", req.JobID, err)
				}
			case models.EncodeCompleted:
				go drain(events)
				if ev.OutputPath != "" {
					return ev.OutputPath, nil
				}
				return req.OutputPath, nil
			case models.EncodeFailed:
				go drain(events)
				if ev.Err == nil {
					return "", errors.New("encode failed")
				}
				return "", ev.Err
			}
		}
	}
}

func (p *Pool) upload(ctx context.Context, job *models.EncodeJob, outputPath, mimeType string) (string, error) {
	f, err := os.Open(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to open output: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat output: %w", err)
	}
	return p.objects.PutObject(ctx, &models.UploadInput{
		File:     f,
		Key:      job.TranscodedKey,
		MimeType: mimeType,
		Size:     info.Size(),
	})
}

// finish records the terminal state. Store and publisher calls get their own
// deadline so an expired job context cannot lose the transition.
func (p *Pool) finish(ctx context.Context, job *models.EncodeJob, result *models.JobResult, jobErr *models.JobError) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	job.CompletedAt = time.Now().UTC()
	if jobErr != nil {
		job.State = models.JobStateFailed
		job.Error = jobErr
		job.Result = nil
	} else {
		job.State = models.JobStateSucceeded
		job.Result = result
		job.Error = nil
	}

	if err := p.store.Finish(fctx, job); err != nil {
		if errors.Is(err, transcode.ErrInvalidTransition) {
			p.logger.Warnf("Job %s already terminal, dropping %s", job.JobID, job.State)
		} else {
			p.logger.Errorf("Finish job %s: %v", job.JobID, err)
		}
		return
	}
	if jobErr != nil {
		p.logger.Errorf("Job %s failed (%s): %s", job.JobID, jobErr.Kind, jobErr.Message)
	} else {
		p.logger.Infof("Job %s succeeded: %s", job.JobID, result.TranscodedLocation)
	}

	if err := p.history.SaveJob(fctx, models.NewJobRecord(job)); err != nil {
		p.logger.Errorf("SaveJob %s: %v", job.JobID, err)
	}
	p.publish(fctx, job)
}

func (p *Pool) publish(ctx context.Context, job *models.EncodeJob) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.publisher.Publish(pctx, models.NewJobEvent(job)); err != nil {
		p.logger.Warnf("Publish event for job %s: %v", job.JobID, err)
	}
}

func classify(ctx context.Context, kind models.ErrorKind, err error) *models.JobError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &models.JobError{Kind: models.ErrorKindTimeout, Message: err.Error()}
	}
	return &models.JobError{Kind: kind, Message: err.Error()}
}

func drain(events <-chan models.EncodeEvent) {
	for range events {
	}
}
