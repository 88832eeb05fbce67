package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/config"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/models"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/transcode"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/transcode/repository"
	"github.com/amankumarsingh77/cloud-video-transcoder/pkg/logger"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

type fakeEncoder struct {
	behavior func(jobID string) string
	release  chan struct{}
	unblock  chan struct{}
	started  chan string

	mu        sync.Mutex
	active    int
	maxActive int
	inputs    map[string]string
}

func newFakeEncoder(release chan struct{}) *fakeEncoder {
	return &fakeEncoder{
		behavior: func(string) string { return "ok" },
		release:  release,
		unblock:  make(chan struct{}),
		started:  make(chan string, 100),
		inputs:   make(map[string]string),
	}
}

func (f *fakeEncoder) Encode(ctx context.Context, req *models.EncodeRequest) <-chan models.EncodeEvent {
	f.mu.Lock()
	mode := f.behavior(req.JobID)
	f.mu.Unlock()
	if mode == "panic" {
		panic("engine exploded")
	}
	f.mu.Lock()
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.inputs[req.JobID] = req.InputPath
	f.mu.Unlock()
	f.started <- req.JobID

	events := make(chan models.EncodeEvent, 4)
	done := func(ev models.EncodeEvent) {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
		events <- ev
	}
	go func() {
		defer close(events)
		events <- models.EncodeEvent{Type: models.EncodeStarted}
		if mode == "hang" {
			<-f.unblock
			done(models.EncodeEvent{Type: models.EncodeFailed, Err: errors.New("killed")})
			return
		}
		if f.release != nil {
			select {
			case <-f.release:
			case <-ctx.Done():
				done(models.EncodeEvent{Type: models.EncodeFailed, Err: ctx.Err()})
				return
			}
		}
		events <- models.EncodeEvent{Type: models.EncodeProgress, Progress: 50}
		if mode == "fail" {
			done(models.EncodeEvent{Type: models.EncodeFailed, Err: errors.New("exit status 1")})
			return
		}
		if err := os.WriteFile(req.OutputPath, []byte("transcoded"), 0o644); err != nil {
			done(models.EncodeEvent{Type: models.EncodeFailed, Err: err})
			return
		}
		done(models.EncodeEvent{Type: models.EncodeCompleted, Progress: 100, OutputPath: req.OutputPath})
	}()
	return events
}

func (f *fakeEncoder) max() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

func (f *fakeEncoder) input(jobID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputs[jobID]
}

type memoryObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func newMemoryObjectStore() *memoryObjectStore {
	return &memoryObjectStore{objects: make(map[string][]byte)}
}

func (m *memoryObjectStore) EnsureBucket(context.Context) error {
	return nil
}

func (m *memoryObjectStore) PutObject(_ context.Context, input *models.UploadInput) (string, error) {
	if m.failPut {
		return "", errors.New("connection reset by peer")
	}
	data, err := io.ReadAll(input.File)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[input.Key] = data
	return "http://store/bucket/" + input.Key, nil
}

func (m *memoryObjectStore) GetObject(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("NoSuchKey: %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryObjectStore) GetPresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "http://store/bucket/" + key + "?X-Amz-Signature=abc", nil
}

func (m *memoryObjectStore) RemoveObject(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryObjectStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.JobEvent
}

func (r *recordingPublisher) Publish(_ context.Context, event *models.JobEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) Close() error {
	return nil
}

func (r *recordingPublisher) states(jobID string) []models.JobState {
	r.mu.Lock()
	defer r.mu.Unlock()
	var states []models.JobState
	for _, ev := range r.events {
		if ev.JobID == jobID {
			states = append(states, ev.State)
		}
	}
	return states
}

type poolFixture struct {
	cfg       *config.Config
	pool      *Pool
	store     transcode.JobStore
	objects   *memoryObjectStore
	encoder   *fakeEncoder
	publisher *recordingPublisher
	tempDir   string
}

func newPoolFixture(t *testing.T, capacity int, jobTimeout time.Duration, release chan struct{}) *poolFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.Config{
		Worker: config.WorkerConfig{
			Capacity:     capacity,
			JobTimeout:   jobTimeout,
			PollInterval: 50 * time.Millisecond,
			TempDir:      t.TempDir(),
		},
		S3:      config.S3Config{PresignExpiry: time.Minute},
		Encoder: config.EncoderConfig{AudioCodec: "aac", AudioBitrate: "128k"},
	}
	f := &poolFixture{
		cfg:       cfg,
		store:     repository.NewJobRedisRepo(client, "test:", 0),
		objects:   newMemoryObjectStore(),
		encoder:   newFakeEncoder(release),
		publisher: &recordingPublisher{},
		tempDir:   cfg.Worker.TempDir,
	}
	f.pool = NewPool(cfg, logger.NewNop(), f.store, f.objects, repository.NewNoopHistoryRepo(), f.encoder, f.publisher)
	t.Cleanup(func() { close(f.encoder.unblock) })
	return f
}

// peer builds a second instance sharing the job and object stores but with
// its own temp dir, as another process would.
func (f *poolFixture) peer(t *testing.T) *poolFixture {
	t.Helper()
	cfg := *f.cfg
	cfg.Worker.TempDir = t.TempDir()
	peer := &poolFixture{
		cfg:       &cfg,
		store:     f.store,
		objects:   f.objects,
		encoder:   newFakeEncoder(nil),
		publisher: &recordingPublisher{},
		tempDir:   cfg.Worker.TempDir,
	}
	peer.pool = NewPool(&cfg, logger.NewNop(), peer.store, peer.objects, repository.NewNoopHistoryRepo(), peer.encoder, peer.publisher)
	t.Cleanup(func() { close(peer.encoder.unblock) })
	return peer
}

func (f *poolFixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.pool.Start(context.Background()))
	t.Cleanup(f.pool.Stop)
}

// newJob creates a queued job with its input spooled to disk, the way
// admission leaves it.
func (f *poolFixture) newJob(t *testing.T, id string) *models.EncodeJob {
	t.Helper()
	dir := filepath.Join(f.tempDir, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	input := filepath.Join(dir, "input.mov")
	require.NoError(t, os.WriteFile(input, []byte("original"), 0o644))

	job := &models.EncodeJob{
		JobID:            id,
		FileName:         "clip.mov",
		Spec:             models.TranscodeSpec{TargetFormat: "mp4", Codec: "libx264", Bitrate: "1000k", Resolution: "1280x720"},
		State:            models.JobStateQueued,
		OriginalKey:      "uploads/clip_" + id + ".mov",
		TranscodedKey:    "transcoded/clip_" + id + ".mp4",
		OriginalLocation: "http://store/bucket/uploads/clip_" + id + ".mov",
		InputPath:        input,
		CreatedAt:        time.Now().UTC(),
	}
	require.NoError(t, f.store.Create(context.Background(), job))
	return job
}

func (f *poolFixture) enqueue(t *testing.T, job *models.EncodeJob) {
	t.Helper()
	require.NoError(t, f.store.Enqueue(context.Background(), job.JobID, 0))
	f.pool.Notify()
}

// submit dispatches directly when a slot is idle and queues otherwise.
func (f *poolFixture) submit(t *testing.T, id string) *models.EncodeJob {
	t.Helper()
	job := f.newJob(t, id)
	if !f.pool.TryDispatch(context.Background(), job) {
		f.enqueue(t, job)
	}
	return job
}

func (f *poolFixture) waitForState(t *testing.T, id string, state models.JobState) *models.EncodeJob {
	t.Helper()
	var job *models.EncodeJob
	require.Eventually(t, func() bool {
		j, err := f.store.Get(context.Background(), id)
		if err != nil {
			return false
		}
		job = j
		return j.State == state
	}, waitFor, 10*time.Millisecond)
	return job
}

func (f *poolFixture) nextStarted(t *testing.T) string {
	t.Helper()
	select {
	case id := <-f.encoder.started:
		return id
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for an encode to start")
		return ""
	}
}

func (f *poolFixture) state(t *testing.T, id string) models.JobState {
	t.Helper()
	job, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return job.State
}

func TestPool_ThreeJobsCapacityTwo(t *testing.T) {
	release := make(chan struct{})
	f := newPoolFixture(t, 2, time.Minute, release)
	f.start(t)

	ctx := context.Background()
	job1 := f.newJob(t, "job-1")
	job2 := f.newJob(t, "job-2")
	job3 := f.newJob(t, "job-3")

	require.True(t, f.pool.TryDispatch(ctx, job1))
	assert.Equal(t, models.JobStateRunning, f.state(t, "job-1"))
	require.True(t, f.pool.TryDispatch(ctx, job2))
	assert.Equal(t, models.JobStateRunning, f.state(t, "job-2"))

	started := map[string]bool{f.nextStarted(t): true, f.nextStarted(t): true}
	assert.Equal(t, map[string]bool{"job-1": true, "job-2": true}, started)

	assert.False(t, f.pool.TryDispatch(ctx, job3))
	f.enqueue(t, job3)
	assert.Equal(t, models.JobStateQueued, f.state(t, "job-3"))
	assert.Equal(t, 2, f.pool.Running())

	release <- struct{}{}
	assert.Equal(t, "job-3", f.nextStarted(t))
	assert.Equal(t, models.JobStateRunning, f.state(t, "job-3"))

	release <- struct{}{}
	release <- struct{}{}
	for _, id := range []string{"job-1", "job-2", "job-3"} {
		job := f.waitForState(t, id, models.JobStateSucceeded)
		assert.Equal(t, 100, job.Progress)
	}
	assert.LessOrEqual(t, f.encoder.max(), 2)
	require.Eventually(t, func() bool { return f.pool.Running() == 0 }, waitFor, 10*time.Millisecond)
}

func TestPool_QueueIsFIFO(t *testing.T) {
	release := make(chan struct{})
	f := newPoolFixture(t, 1, time.Minute, release)
	f.start(t)

	first := f.newJob(t, "first")
	require.True(t, f.pool.TryDispatch(context.Background(), first))
	assert.Equal(t, "first", f.nextStarted(t))

	for _, id := range []string{"a", "b", "c"} {
		f.enqueue(t, f.newJob(t, id))
	}

	release <- struct{}{}
	var order []string
	for i := 0; i < 3; i++ {
		order = append(order, f.nextStarted(t))
		release <- struct{}{}
	}
	assert.Equal(t, []string{"a", "b", "c"}, order)
	f.waitForState(t, "c", models.JobStateSucceeded)
}

func TestPool_SuccessRecordsResult(t *testing.T) {
	f := newPoolFixture(t, 1, time.Minute, nil)
	f.start(t)

	job := f.submit(t, "job-1")
	done := f.waitForState(t, job.JobID, models.JobStateSucceeded)

	require.NotNil(t, done.Result)
	assert.Nil(t, done.Error)
	assert.Equal(t, job.OriginalLocation, done.Result.OriginalLocation)
	assert.Equal(t, "http://store/bucket/"+job.TranscodedKey, done.Result.TranscodedLocation)
	assert.Contains(t, done.Result.DownloadURL, "X-Amz-Signature")
	assert.True(t, f.objects.has(job.TranscodedKey))
	assert.Equal(t, job.InputPath, f.encoder.input(job.JobID))

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(f.tempDir, job.JobID))
		return os.IsNotExist(err)
	}, waitFor, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		states := f.publisher.states(job.JobID)
		return len(states) == 2
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, []models.JobState{models.JobStateRunning, models.JobStateSucceeded}, f.publisher.states(job.JobID))
}

func TestPool_FailuresReleaseSlots(t *testing.T) {
	f := newPoolFixture(t, 1, time.Minute, nil)
	f.encoder.behavior = func(string) string { return "fail" }
	f.start(t)

	ids := []string{"job-1", "job-2", "job-3"}
	for _, id := range ids {
		f.submit(t, id)
	}
	for _, id := range ids {
		job := f.waitForState(t, id, models.JobStateFailed)
		require.NotNil(t, job.Error)
		assert.Equal(t, models.ErrorKindEncode, job.Error.Kind)
		assert.Equal(t, "exit status 1", job.Error.Message)
		assert.Nil(t, job.Result)
	}
	require.Eventually(t, func() bool { return f.pool.Running() == 0 }, waitFor, 10*time.Millisecond)

	// the slot still takes new work
	f.encoder.mu.Lock()
	f.encoder.behavior = func(string) string { return "ok" }
	f.encoder.mu.Unlock()
	f.submit(t, "job-4")
	f.waitForState(t, "job-4", models.JobStateSucceeded)
}

func TestPool_Timeout(t *testing.T) {
	f := newPoolFixture(t, 1, 200*time.Millisecond, nil)
	f.encoder.behavior = func(id string) string {
		if id == "slow" {
			return "hang"
		}
		return "ok"
	}
	f.start(t)

	f.submit(t, "slow")
	f.submit(t, "next")

	job := f.waitForState(t, "slow", models.JobStateFailed)
	require.NotNil(t, job.Error)
	assert.Equal(t, models.ErrorKindTimeout, job.Error.Kind)

	f.waitForState(t, "next", models.JobStateSucceeded)
}

func TestPool_UploadFailure(t *testing.T) {
	f := newPoolFixture(t, 1, time.Minute, nil)
	f.objects.failPut = true
	f.start(t)

	job := f.submit(t, "job-1")
	failed := f.waitForState(t, job.JobID, models.JobStateFailed)
	require.NotNil(t, failed.Error)
	assert.Equal(t, models.ErrorKindUpload, failed.Error.Kind)

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(f.tempDir, job.JobID))
		return os.IsNotExist(err)
	}, waitFor, 10*time.Millisecond)
}

func TestPool_PanicIsRecovered(t *testing.T) {
	f := newPoolFixture(t, 1, time.Minute, nil)
	f.encoder.behavior = func(id string) string {
		if id == "bad" {
			return "panic"
		}
		return "ok"
	}
	f.start(t)

	f.submit(t, "bad")
	job := f.waitForState(t, "bad", models.JobStateFailed)
	require.NotNil(t, job.Error)
	assert.Equal(t, models.ErrorKindInternal, job.Error.Kind)

	f.submit(t, "good")
	f.waitForState(t, "good", models.JobStateSucceeded)
}

func TestPool_DownloadsOriginalWithoutSpool(t *testing.T) {
	f := newPoolFixture(t, 1, time.Minute, nil)
	f.start(t)

	job := &models.EncodeJob{
		JobID:         "remote",
		FileName:      "clip.avi",
		Spec:          models.TranscodeSpec{TargetFormat: "mkv", Codec: "libx265"},
		State:         models.JobStateQueued,
		OriginalKey:   "uploads/clip_remote.avi",
		TranscodedKey: "transcoded/clip_remote.mkv",
		CreatedAt:     time.Now().UTC(),
	}
	_, err := f.objects.PutObject(context.Background(), &models.UploadInput{
		File: bytes.NewReader([]byte("original")),
		Key:  job.OriginalKey,
	})
	require.NoError(t, err)
	require.NoError(t, f.store.Create(context.Background(), job))
	f.enqueue(t, job)

	f.waitForState(t, job.JobID, models.JobStateSucceeded)
	assert.Equal(t, filepath.Join(f.tempDir, job.JobID, "input.avi"), f.encoder.input(job.JobID))
	assert.True(t, f.objects.has(job.TranscodedKey))
}

func TestPool_MissingOriginalFails(t *testing.T) {
	f := newPoolFixture(t, 1, time.Minute, nil)
	f.start(t)

	job := &models.EncodeJob{
		JobID:         "lost",
		FileName:      "clip.mov",
		Spec:          models.TranscodeSpec{TargetFormat: "mp4"},
		State:         models.JobStateQueued,
		OriginalKey:   "uploads/clip_lost.mov",
		TranscodedKey: "transcoded/clip_lost.mp4",
	}
	require.NoError(t, f.store.Create(context.Background(), job))
	f.enqueue(t, job)

	failed := f.waitForState(t, job.JobID, models.JobStateFailed)
	require.NotNil(t, failed.Error)
	assert.Equal(t, models.ErrorKindInternal, failed.Error.Kind)
}

func TestPool_RecoversOrphans(t *testing.T) {
	f := newPoolFixture(t, 1, time.Minute, nil)
	ctx := context.Background()

	f.newJob(t, "orphan")
	_, err := f.store.Claim(ctx, "orphan", "dead-instance")
	require.NoError(t, err)

	f.newJob(t, "owned")
	require.NoError(t, f.store.Heartbeat(ctx, "live-instance"))
	_, err = f.store.Claim(ctx, "owned", "live-instance")
	require.NoError(t, err)

	f.start(t)

	job, err := f.store.Get(ctx, "orphan")
	require.NoError(t, err)
	assert.Equal(t, models.JobStateFailed, job.State)
	require.NotNil(t, job.Error)
	assert.Equal(t, models.ErrorKindInternal, job.Error.Kind)
	assert.Equal(t, interruptedMessage, job.Error.Message)

	assert.Equal(t, models.JobStateRunning, f.state(t, "owned"))
}

func TestPool_StopWaitsForRunningJobs(t *testing.T) {
	release := make(chan struct{})
	f := newPoolFixture(t, 1, time.Minute, release)
	require.NoError(t, f.pool.Start(context.Background()))

	running := f.newJob(t, "running")
	require.True(t, f.pool.TryDispatch(context.Background(), running))
	assert.Equal(t, "running", f.nextStarted(t))
	queued := f.newJob(t, "queued")
	f.enqueue(t, queued)

	stopped := make(chan struct{})
	go func() {
		f.pool.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a job was running")
	case <-time.After(100 * time.Millisecond):
	}

	release <- struct{}{}
	select {
	case <-stopped:
	case <-time.After(waitFor):
		t.Fatal("Stop did not return")
	}

	assert.Equal(t, models.JobStateSucceeded, f.state(t, "running"))
	assert.Equal(t, models.JobStateQueued, f.state(t, "queued"))
	assert.False(t, f.pool.TryDispatch(context.Background(), queued))
}

func TestPool_StartTwice(t *testing.T) {
	f := newPoolFixture(t, 1, time.Minute, nil)
	f.start(t)
	assert.Error(t, f.pool.Start(context.Background()))
	assert.Equal(t, 1, f.pool.Capacity())
	assert.NotEmpty(t, f.pool.ID())
}

func TestPool_DispatchesRightAfterStart(t *testing.T) {
	for i := 0; i < 10; i++ {
		release := make(chan struct{})
		f := newPoolFixture(t, 2, time.Minute, release)
		f.start(t)

		// slots are free as soon as Start returns, even while the queue is checked
		job := f.newJob(t, fmt.Sprintf("job-%d", i))
		require.True(t, f.pool.TryDispatch(context.Background(), job))
		assert.Equal(t, models.JobStateRunning, f.state(t, job.JobID))
		assert.Equal(t, 1, f.pool.Running())
		close(release)
		f.waitForState(t, job.JobID, models.JobStateSucceeded)
	}
}

func TestPool_DispatchWhileQueueIsDrained(t *testing.T) {
	release := make(chan struct{})
	f := newPoolFixture(t, 2, time.Minute, release)
	f.start(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		f.pool.Notify()
		job := f.newJob(t, fmt.Sprintf("job-%d", i))
		require.True(t, f.pool.TryDispatch(ctx, job))
		assert.Equal(t, job.JobID, f.nextStarted(t))
		release <- struct{}{}
		f.waitForState(t, job.JobID, models.JobStateSucceeded)
		require.Eventually(t, func() bool { return f.pool.Running() == 0 }, waitFor, time.Millisecond)
	}
}

func TestPool_SweepsSpoolOfJobsRunElsewhere(t *testing.T) {
	admitting := newPoolFixture(t, 1, time.Minute, nil)
	runner := admitting.peer(t)
	ctx := context.Background()

	// admitted and spooled here, but only the other instance is running
	job := admitting.newJob(t, "remote")
	spoolDir := filepath.Join(admitting.tempDir, job.JobID)
	require.NoError(t, admitting.store.Enqueue(ctx, job.JobID, 0))
	runner.start(t)
	runner.waitForState(t, job.JobID, models.JobStateSucceeded)

	waiting := admitting.newJob(t, "waiting")
	waitingDir := filepath.Join(admitting.tempDir, waiting.JobID)

	fresh := filepath.Join(admitting.tempDir, "being-admitted")
	require.NoError(t, os.MkdirAll(fresh, 0o755))
	stale := filepath.Join(admitting.tempDir, "abandoned")
	require.NoError(t, os.MkdirAll(stale, 0o755))
	old := time.Now().Add(-2 * spoolGrace)
	require.NoError(t, os.Chtimes(stale, old, old))

	admitting.pool.sweepSpool(ctx)

	assert.NoDirExists(t, spoolDir)
	assert.NoDirExists(t, stale)
	assert.DirExists(t, waitingDir)
	assert.DirExists(t, fresh)
}
