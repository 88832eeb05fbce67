package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/amankumarsingh77/cloud-video-transcoder/internal/config"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/models"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/transcode"
	"github.com/amankumarsingh77/cloud-video-transcoder/pkg/logger"
	"github.com/google/uuid"
)

// Pool runs at most Capacity encodes at once. A slot is reserved either by
// admission through TryDispatch or by the dispatch loop draining the FIFO
// queue in the job store, and is released when the job is terminal.
type Pool struct {
	cfg       *config.Config
	id        string
	logger    logger.Logger
	store     transcode.JobStore
	objects   transcode.ObjectStore
	history   transcode.HistoryRepository
	encoder   transcode.Encoder
	publisher transcode.EventPublisher

	wake chan struct{}

	// lifecycle serializes Start and Stop.
	lifecycle sync.Mutex

	mu       sync.Mutex
	cond     *sync.Cond
	started  bool
	running  int
	// checking is set while the dispatch loop holds a slot to check the queue.
	checking bool
	jobCtx   context.Context

	stopLoop      context.CancelFunc
	stopHeartbeat context.CancelFunc
	loopWG        sync.WaitGroup
	jobsWG        sync.WaitGroup
	heartbeatWG   sync.WaitGroup
}

func NewPool(
	cfg *config.Config,
	log logger.Logger,
	store transcode.JobStore,
	objects transcode.ObjectStore,
	history transcode.HistoryRepository,
	encoder transcode.Encoder,
	publisher transcode.EventPublisher,
) *Pool {
	p := &Pool{
		cfg:       cfg,
		id:        uuid.New().String(),
		logger:    log,
		store:     store,
		objects:   objects,
		history:   history,
		encoder:   encoder,
		publisher: publisher,
		wake:      make(chan struct{}, 1),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// ID identifies this pool instance as the owner of the jobs it claims.
func (p *Pool) ID() string {
	return p.id
}

func (p *Pool) Capacity() int {
	return p.cfg.Worker.Capacity
}

// Running counts slots held by claimed or running jobs.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Start registers the instance, fails jobs orphaned by dead instances and
// launches the dispatch loop.
func (p *Pool) Start(ctx context.Context) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if started {
		return errors.New("worker pool already started")
	}

	if err := p.store.Heartbeat(ctx, p.id); err != nil {
		return err
	}
	p.recoverOrphans(ctx)
	p.sweepSpool(ctx)

	hbCtx, hbCancel := context.WithCancel(context.WithoutCancel(ctx))
	p.stopHeartbeat = hbCancel
	p.heartbeatWG.Add(1)
	go p.heartbeat(hbCtx)

	loopCtx, loopCancel := context.WithCancel(context.WithoutCancel(ctx))
	p.stopLoop = loopCancel

	p.mu.Lock()
	p.jobCtx = context.WithoutCancel(ctx)
	p.started = true
	p.mu.Unlock()

	p.loopWG.Add(1)
	go p.dispatchLoop(loopCtx)
	p.logger.Infof("Worker pool %s started with %d slots", p.id, p.cfg.Worker.Capacity)
	return nil
}

// Stop stops claiming new work and waits for running jobs to reach a
// terminal state. Queued jobs stay in the store.
func (p *Pool) Stop() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.cond.Broadcast()
	p.mu.Unlock()

	p.stopLoop()
	p.loopWG.Wait()
	p.jobsWG.Wait()
	// keep the liveness key fresh until every claimed job is finished
	p.stopHeartbeat()
	p.heartbeatWG.Wait()
	p.logger.Infof("Worker pool %s stopped", p.id)
}

// TryDispatch claims job into a free slot and starts it. It returns false
// when every slot is held by a running job. While the dispatch loop is
// checking the queue it waits for that check, which is one store round trip.
func (p *Pool) TryDispatch(ctx context.Context, job *models.EncodeJob) bool {
	p.mu.Lock()
	for p.started && p.checking && p.reserved() >= p.cfg.Worker.Capacity {
		p.cond.Wait()
	}
	if !p.started || p.reserved() >= p.cfg.Worker.Capacity {
		p.mu.Unlock()
		return false
	}
	p.running++
	p.jobsWG.Add(1)
	p.mu.Unlock()

	claimed, err := p.store.Claim(ctx, job.JobID, p.id)
	if err != nil {
		p.logger.Warnf("TryDispatch - claim job %s: %v", job.JobID, err)
		p.release()
		return false
	}
	p.logger.Debugf("Job %s took a slot directly", claimed.JobID)
	go p.run(claimed)
	return true
}

// Notify wakes the dispatch loop to check the queue.
func (p *Pool) Notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// reserved must be called with mu held.
func (p *Pool) reserved() int {
	if p.checking {
		return p.running + 1
	}
	return p.running
}

func (p *Pool) dispatchLoop(ctx context.Context) {
	defer p.loopWG.Done()
	poll := time.NewTicker(p.cfg.Worker.PollInterval)
	defer poll.Stop()

	for {
		p.drainQueue(ctx)
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		case <-poll.C:
		}
	}
}

// drainQueue starts queued jobs in FIFO order while slots are free.
func (p *Pool) drainQueue(ctx context.Context) {
	for ctx.Err() == nil {
		if !p.beginCheck() {
			return
		}
		job := p.nextQueued(ctx)
		if !p.endCheck(job != nil) {
			return
		}
		go p.run(job)
	}
}

func (p *Pool) beginCheck() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || p.reserved() >= p.cfg.Worker.Capacity {
		return false
	}
	p.checking = true
	return true
}

// endCheck turns the checking slot into a running one when a job was claimed.
// A claimed job runs even if Stop began meanwhile, since it is already owned.
func (p *Pool) endCheck(claimed bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checking = false
	if claimed {
		p.running++
		p.jobsWG.Add(1)
	}
	p.cond.Broadcast()
	return claimed
}

func (p *Pool) release() {
	p.mu.Lock()
	p.running--
	p.cond.Broadcast()
	p.mu.Unlock()
	p.jobsWG.Done()
	// a freed slot goes to the next queued job
	p.Notify()
}

// nextQueued pops queued ids until one can be claimed or the queue is empty.
func (p *Pool) nextQueued(ctx context.Context) *models.EncodeJob {
	for ctx.Err() == nil {
		jobID, err := p.store.Dequeue(ctx)
		if err != nil {
			p.logger.Errorf("Dequeue error: %v", err)
			return nil
		}
		if jobID == "" {
			return nil
		}
		job, err := p.store.Claim(ctx, jobID, p.id)
		if err != nil {
			// deleted or already finished
			p.logger.Warnf("Claim queued job %s: %v", jobID, err)
			continue
		}
		return job
	}
	return nil
}

func (p *Pool) run(job *models.EncodeJob) {
	defer p.release()
	p.mu.Lock()
	ctx := p.jobCtx
	p.mu.Unlock()
	p.publish(ctx, job)
	p.process(ctx, job)
}

func (p *Pool) heartbeat(ctx context.Context) {
	defer p.heartbeatWG.Done()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.store.Heartbeat(ctx, p.id); err != nil && ctx.Err() == nil {
				p.logger.Errorf("Heartbeat error: %v", err)
			}
			p.recoverOrphans(ctx)
			p.sweepSpool(ctx)
		}
	}
}

// recoverOrphans fails running jobs whose owner instance is gone. They are
// never re-run.
func (p *Pool) recoverOrphans(ctx context.Context) {
	ids, err := p.store.RunningJobs(ctx)
	if err != nil {
		p.logger.Errorf("RecoverOrphans - RunningJobs error: %v", err)
		return
	}
	for _, id := range ids {
		job, err := p.store.Get(ctx, id)
		if err != nil {
			if !errors.Is(err, transcode.ErrJobNotFound) {
				p.logger.Errorf("RecoverOrphans - Get job %s: %v", id, err)
			}
			continue
		}
		if job.Owner == p.id || job.State != models.JobStateRunning {
			continue
		}
		alive, err := p.store.IsAlive(ctx, job.Owner)
		if err != nil {
			p.logger.Errorf("RecoverOrphans - IsAlive %s: %v", job.Owner, err)
			continue
		}
		if alive {
			continue
		}
		p.logger.Warnf("Job %s was interrupted on instance %s", job.JobID, job.Owner)
		p.finish(ctx, job, nil, &models.JobError{Kind: models.ErrorKindInternal, Message: interruptedMessage})
	}
}

// sweepSpool removes job directories under TempDir whose job is terminal or
// whose record is gone. Admission spools input here even when another
// instance ends up running the job, and only the running instance cleans up
// its own directory.
func (p *Pool) sweepSpool(ctx context.Context) {
	entries, err := os.ReadDir(p.cfg.Worker.TempDir)
	if err != nil {
		if !os.IsNotExist(err) {
			p.logger.Errorf("SweepSpool - ReadDir error: %v", err)
		}
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		jobID := entry.Name()
		job, err := p.store.Get(ctx, jobID)
		switch {
		case errors.Is(err, transcode.ErrJobNotFound):
			// admission spools before the record exists
			info, err := entry.Info()
			if err != nil || time.Since(info.ModTime()) < spoolGrace {
				continue
			}
		case err != nil:
			p.logger.Errorf("SweepSpool - Get job %s: %v", jobID, err)
			continue
		case !job.State.IsTerminal():
			continue
		}
		if err := os.RemoveAll(filepath.Join(p.cfg.Worker.TempDir, jobID)); err != nil {
			p.logger.Warnf("SweepSpool - remove %s: %v", jobID, err)
		}
	}
}
