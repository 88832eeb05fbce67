package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/amankumarsingh77/cloud-video-transcoder/internal/models"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/transcode"
	"github.com/go-redis/redis/v8"
)

const (
	instanceTTL = 15 * time.Second

	fieldState    = "state"
	fieldProgress = "progress"
	fieldData     = "data"
)

// Script results shared by the CAS scripts below.
const (
	casMissing  = -1
	casRejected = 0
	casApplied  = 1
)

var createJobScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('HSET', KEYS[1], 'state', ARGV[1], 'progress', ARGV[2], 'data', ARGV[3])
return 1
`)

var enqueueScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[2], 'state')
if not state then return -1 end
if state ~= 'queued' then return -2 end
local limit = tonumber(ARGV[2])
if limit > 0 and redis.call('LLEN', KEYS[1]) >= limit then return 0 end
redis.call('RPUSH', KEYS[1], ARGV[1])
return 1
`)

var claimScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then return -1 end
if state ~= 'queued' then return 0 end
redis.call('HSET', KEYS[1], 'state', 'running', 'progress', '0', 'data', ARGV[2])
redis.call('SADD', KEYS[2], ARGV[1])
return 1
`)

var progressScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then return -1 end
if state ~= 'running' then return 0 end
local current = tonumber(redis.call('HGET', KEYS[1], 'progress') or '0')
if tonumber(ARGV[1]) <= current then return 0 end
redis.call('HSET', KEYS[1], 'progress', ARGV[1])
return 1
`)

var finishScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then return -1 end
if state ~= 'running' then return 0 end
local progress = ARGV[3]
if progress == '' then
	progress = redis.call('HGET', KEYS[1], 'progress') or '0'
end
redis.call('HSET', KEYS[1], 'state', ARGV[2], 'progress', progress, 'data', ARGV[4])
redis.call('SREM', KEYS[2], ARGV[1])
local ttl = tonumber(ARGV[5])
if ttl > 0 then redis.call('EXPIRE', KEYS[1], ttl) end
return 1
`)

type jobRedisRepo struct {
	redisClient *redis.Client
	prefix      string
	jobTTL      time.Duration
}

// NewJobRedisRepo builds the Redis job store. A positive jobTTL expires
// terminal records; zero keeps them.
func NewJobRedisRepo(redisClient *redis.Client, prefix string, jobTTL time.Duration) transcode.JobStore {
	return &jobRedisRepo{
		redisClient: redisClient,
		prefix:      prefix,
		jobTTL:      jobTTL,
	}
}

func (r *jobRedisRepo) jobKey(jobID string) string {
	return r.prefix + "job:" + jobID
}

func (r *jobRedisRepo) queueKey() string {
	return r.prefix + "queue"
}

func (r *jobRedisRepo) runningKey() string {
	return r.prefix + "running"
}

func (r *jobRedisRepo) instanceKey(owner string) string {
	return r.prefix + "instance:" + owner
}

func (r *jobRedisRepo) Create(ctx context.Context, job *models.EncodeJob) error {
	if job.State != models.JobStateQueued {
		return fmt.Errorf("create job %s in state %s: %w", job.JobID, job.State, transcode.ErrInvalidTransition)
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	res, err := createJobScript.Run(ctx, r.redisClient,
		[]string{r.jobKey(job.JobID)},
		string(job.State), job.Progress, string(data),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	if res != casApplied {
		return fmt.Errorf("job %s: %w", job.JobID, transcode.ErrJobExists)
	}
	return nil
}

func (r *jobRedisRepo) Get(ctx context.Context, jobID string) (*models.EncodeJob, error) {
	fields, err := r.redisClient.HGetAll(ctx, r.jobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if len(fields) == 0 {
		return nil, transcode.ErrJobNotFound
	}
	job := &models.EncodeJob{}
	if err = json.Unmarshal([]byte(fields[fieldData]), job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}
	job.State = models.JobState(fields[fieldState])
	if p, err := strconv.Atoi(fields[fieldProgress]); err == nil {
		job.Progress = p
	}
	return job, nil
}

func (r *jobRedisRepo) Delete(ctx context.Context, jobID string) error {
	if err := r.redisClient.Del(ctx, r.jobKey(jobID)).Err(); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

func (r *jobRedisRepo) Enqueue(ctx context.Context, jobID string, limit int64) error {
	res, err := enqueueScript.Run(ctx, r.redisClient,
		[]string{r.queueKey(), r.jobKey(jobID)},
		jobID, limit,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	switch res {
	case casApplied:
		return nil
	case casRejected:
		return transcode.ErrQueueFull
	case casMissing:
		return transcode.ErrJobNotFound
	default:
		return fmt.Errorf("enqueue job %s: %w", jobID, transcode.ErrInvalidTransition)
	}
}

func (r *jobRedisRepo) Dequeue(ctx context.Context) (string, error) {
	jobID, err := r.redisClient.LPop(ctx, r.queueKey()).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to dequeue job: %w", err)
	}
	return jobID, nil
}

func (r *jobRedisRepo) QueueLength(ctx context.Context) (int64, error) {
	length, err := r.redisClient.LLen(ctx, r.queueKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return length, nil
}

func (r *jobRedisRepo) Claim(ctx context.Context, jobID, owner string) (*models.EncodeJob, error) {
	job, err := r.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	job.State = models.JobStateRunning
	job.Progress = 0
	job.Owner = owner
	job.StartedAt = time.Now().UTC()
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	res, err := claimScript.Run(ctx, r.redisClient,
		[]string{r.jobKey(jobID), r.runningKey()},
		jobID, string(data),
	).Int()
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	switch res {
	case casApplied:
		return job, nil
	case casMissing:
		return nil, transcode.ErrJobNotFound
	default:
		return nil, fmt.Errorf("claim job %s: %w", jobID, transcode.ErrInvalidTransition)
	}
}

func (r *jobRedisRepo) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	res, err := progressScript.Run(ctx, r.redisClient, []string{r.jobKey(jobID)}, progress).Int()
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	if res == casMissing {
		return transcode.ErrJobNotFound
	}
	// A rejected update is either a regression or a job that already left
	// running; neither is an error for the caller.
	return nil
}

func (r *jobRedisRepo) Finish(ctx context.Context, job *models.EncodeJob) error {
	if !job.State.IsTerminal() {
		return fmt.Errorf("finish job %s in state %s: %w", job.JobID, job.State, transcode.ErrInvalidTransition)
	}
	if job.CompletedAt.IsZero() {
		job.CompletedAt = time.Now().UTC()
	}
	progress := ""
	if job.State == models.JobStateSucceeded {
		job.Progress = 100
		progress = "100"
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	res, err := finishScript.Run(ctx, r.redisClient,
		[]string{r.jobKey(job.JobID), r.runningKey()},
		job.JobID, string(job.State), progress, string(data), int64(r.jobTTL/time.Second),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	switch res {
	case casApplied:
		return nil
	case casMissing:
		return transcode.ErrJobNotFound
	default:
		return fmt.Errorf("finish job %s: %w", job.JobID, transcode.ErrInvalidTransition)
	}
}

func (r *jobRedisRepo) RunningJobs(ctx context.Context) ([]string, error) {
	ids, err := r.redisClient.SMembers(ctx, r.runningKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list running jobs: %w", err)
	}
	return ids, nil
}

func (r *jobRedisRepo) Heartbeat(ctx context.Context, owner string) error {
	return r.redisClient.Set(ctx, r.instanceKey(owner), time.Now().Unix(), instanceTTL).Err()
}

func (r *jobRedisRepo) IsAlive(ctx context.Context, owner string) (bool, error) {
	n, err := r.redisClient.Exists(ctx, r.instanceKey(owner)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check instance %s: %w", owner, err)
	}
	return n == 1, nil
}
