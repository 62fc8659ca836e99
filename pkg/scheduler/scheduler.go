// Package scheduler drives jobs through the transcription pipeline. It owns
// the admission queue, the bounded worker pools, retry policy, cancellation
// and the per-job progress stream. Submissions never block: accepted jobs
// join a FIFO queue and wait for one of the worker slots.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/wavescribe/wavescribe/pkg/audio"
	"github.com/wavescribe/wavescribe/pkg/backend"
	"github.com/wavescribe/wavescribe/pkg/jobstore"
	"github.com/wavescribe/wavescribe/pkg/logger"
	"github.com/wavescribe/wavescribe/pkg/media"
	"github.com/wavescribe/wavescribe/pkg/metrics"
	"github.com/wavescribe/wavescribe/pkg/postprocess"
	"github.com/wavescribe/wavescribe/pkg/progress"
	"github.com/wavescribe/wavescribe/pkg/types"
)

// Scheduler errors.
var (
	ErrShuttingDown = errors.New("scheduler is shutting down")
	ErrEmptyBatch   = errors.New("batch contains no inputs")
)

// Config tunes the scheduler's pools and policies.
type Config struct {
	// MaxConcurrentJobs bounds jobs inside the pipeline at once.
	MaxConcurrentJobs int `mapstructure:"max_concurrent_jobs"`
	// MaxConcurrentChunks bounds concurrent backend calls within one job.
	// A backend that is not thread safe is pinned to one regardless.
	MaxConcurrentChunks int `mapstructure:"max_concurrent_chunks"`
	// JobTimeout is the wall clock budget for a single job.
	JobTimeout time.Duration `mapstructure:"job_timeout"`
	// GPULongInputSeconds is the duration above which use_gpu=auto falls
	// back to CPU to keep accelerator memory for short interactive jobs.
	GPULongInputSeconds float64 `mapstructure:"gpu_long_input_seconds"`

	// Chunk retry policy.
	MaxChunkRetries int           `mapstructure:"max_chunk_retries"`
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay"`
	RetryFactor     float64       `mapstructure:"retry_factor"`
	RetryMaxDelay   time.Duration `mapstructure:"retry_max_delay"`

	// TempDir is where per-job working directories are created.
	TempDir string `mapstructure:"temp_dir"`
	// HeartbeatPeriod is the cadence of keepalive events on active jobs.
	HeartbeatPeriod time.Duration `mapstructure:"heartbeat_period"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentJobs:   3,
		MaxConcurrentChunks: 1,
		JobTimeout:          time.Hour,
		GPULongInputSeconds: 600,
		MaxChunkRetries:     2,
		RetryBaseDelay:      2 * time.Second,
		RetryFactor:         2.0,
		RetryMaxDelay:       30 * time.Second,
		TempDir:             "/tmp/wavescribe",
		HeartbeatPeriod:     30 * time.Second,
	}
}

func (c *Config) normalize() {
	def := DefaultConfig()
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = def.MaxConcurrentJobs
	}
	if c.MaxConcurrentChunks <= 0 {
		c.MaxConcurrentChunks = def.MaxConcurrentChunks
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = def.JobTimeout
	}
	if c.GPULongInputSeconds <= 0 {
		c.GPULongInputSeconds = def.GPULongInputSeconds
	}
	if c.MaxChunkRetries < 0 {
		c.MaxChunkRetries = def.MaxChunkRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = def.RetryBaseDelay
	}
	if c.RetryFactor < 1 {
		c.RetryFactor = def.RetryFactor
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = def.RetryMaxDelay
	}
	if c.TempDir == "" {
		c.TempDir = def.TempDir
	}
	if c.HeartbeatPeriod <= 0 {
		c.HeartbeatPeriod = def.HeartbeatPeriod
	}
}

// The pipeline stages as the scheduler sees them. Production uses the
// media and audio packages; tests substitute stubs.
type mediaProber interface {
	Probe(path string) (*types.MediaInfo, error)
}

type audioPreparer interface {
	Prepare(ctx context.Context, inputPath, tempDir string, sink audio.ProgressSink) (*types.AudioDescriptor, error)
}

type audioChunker interface {
	Split(ctx context.Context, desc *types.AudioDescriptor, opts types.ChunkingOptions, chunkDir string) ([]types.AudioChunk, error)
}

// Scheduler is the pipeline orchestrator.
type Scheduler struct {
	cfg      Config
	store    *jobstore.Store
	bus      *progress.Bus
	prober   mediaProber
	preparer audioPreparer
	chunker  audioChunker
	backend  backend.SpeechBackend
	post     *postprocess.Processor
	metrics  *metrics.Metrics

	jobSem *semaphore.Weighted

	mu          sync.Mutex
	cond        *sync.Cond
	queue       []string
	cancels     map[string]context.CancelFunc
	activePaths map[string]struct{}
	activeJobs  int
	closed      bool

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	log *logger.Logger
}

// New builds a scheduler and starts its dispatcher. mets may be nil.
func New(cfg Config, store *jobstore.Store, bus *progress.Bus, be backend.SpeechBackend, post *postprocess.Processor, mets *metrics.Metrics) *Scheduler {
	cfg.normalize()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:         cfg,
		store:       store,
		bus:         bus,
		prober:      media.NewProber(),
		preparer:    audio.NewPreparer(),
		chunker:     audio.NewChunker(),
		backend:     be,
		post:        post,
		metrics:     mets,
		jobSem:      semaphore.NewWeighted(int64(cfg.MaxConcurrentJobs)),
		cancels:     make(map[string]context.CancelFunc),
		activePaths: make(map[string]struct{}),
		baseCtx:     ctx,
		baseCancel:  cancel,
		log:         logger.WithComponent("scheduler"),
	}
	s.cond = sync.NewCond(&s.mu)

	s.wg.Add(1)
	go s.dispatch()
	return s
}

// Submit validates the options, registers a pending job and enqueues it.
// It never blocks on worker availability.
func (s *Scheduler) Submit(inputPath string, opts types.Options) (string, error) {
	opts.Normalize()
	if err := opts.Validate(); err != nil {
		return "", fmt.Errorf("invalid options: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrShuttingDown
	}
	jobID := s.store.CreateJob(inputPath, opts)
	s.queue = append(s.queue, jobID)
	s.metrics.SetQueueDepth(len(s.queue))
	s.cond.Signal()
	s.mu.Unlock()

	s.metrics.JobSubmitted()
	s.log.Info().Str("job_id", jobID).Str("input", inputPath).Msg("Job submitted")
	return jobID, nil
}

// SubmitBatch submits every input under one batch id. The whole batch is
// rejected when the options are invalid; individual file problems surface as
// failed jobs, not submission errors.
func (s *Scheduler) SubmitBatch(inputPaths []string, opts types.Options) (string, []string, error) {
	if len(inputPaths) == 0 {
		return "", nil, ErrEmptyBatch
	}
	opts.Normalize()
	if err := opts.Validate(); err != nil {
		return "", nil, fmt.Errorf("invalid options: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", nil, ErrShuttingDown
	}
	jobIDs := make([]string, 0, len(inputPaths))
	for _, path := range inputPaths {
		jobIDs = append(jobIDs, s.store.CreateJob(path, opts))
	}
	batchID := s.store.CreateBatch(jobIDs)
	s.queue = append(s.queue, jobIDs...)
	s.metrics.SetQueueDepth(len(s.queue))
	s.cond.Broadcast()
	s.mu.Unlock()

	for range jobIDs {
		s.metrics.JobSubmitted()
	}
	s.log.Info().Str("batch_id", batchID).Int("jobs", len(jobIDs)).Msg("Batch submitted")
	return batchID, jobIDs, nil
}

// Cancel requests cancellation of a job. Cancelling a terminal job is a
// no-op; cancelling a queued job settles it immediately; cancelling a
// running job interrupts its pipeline, which settles it shortly after.
func (s *Scheduler) Cancel(jobID string) error {
	job, err := s.store.Get(jobID)
	if err != nil {
		return err
	}
	if job.State.Terminal() {
		return nil
	}

	s.mu.Lock()
	cancel, running := s.cancels[jobID]
	s.mu.Unlock()
	if running {
		cancel()
		return nil
	}

	// Still queued. The terminal record makes the dispatcher skip it.
	err = s.store.Transition(jobID, jobstore.StateCancelled, jobstore.TransitionFields{
		ErrorKind: KindCancelled,
		ErrorMsg:  "cancelled before processing started",
	})
	if errors.Is(err, jobstore.ErrInvalidTransition) {
		// Lost the race with a worker picking it up or finishing it.
		return s.Cancel(jobID)
	}
	if err != nil {
		return err
	}
	s.metrics.JobFinished(string(jobstore.StateCancelled), 0)
	s.publishError(jobID, KindCancelled, "cancelled before processing started")
	return nil
}

// CancelBatch cancels every non-terminal job in the batch. Idempotent.
func (s *Scheduler) CancelBatch(batchID string) error {
	batch, err := s.store.GetBatch(batchID)
	if err != nil {
		return err
	}
	for _, jobID := range batch.JobIDs {
		if err := s.Cancel(jobID); err != nil && !errors.Is(err, jobstore.ErrJobNotFound) {
			return err
		}
	}
	return nil
}

// GetJob returns a copy of the job record.
func (s *Scheduler) GetJob(jobID string) (*jobstore.Job, error) { return s.store.Get(jobID) }

// GetBatch returns a copy of the batch record.
func (s *Scheduler) GetBatch(batchID string) (*jobstore.Batch, error) {
	return s.store.GetBatch(batchID)
}

// ListJobs returns jobs matching the filter, newest first.
func (s *Scheduler) ListJobs(filter jobstore.Filter, limit, offset int) ([]*jobstore.Job, int) {
	return s.store.List(filter, limit, offset)
}

// Subscribe opens a progress stream for a job.
func (s *Scheduler) Subscribe(jobID string) *progress.Subscription { return s.bus.Subscribe(jobID) }

// Unsubscribe releases a progress stream.
func (s *Scheduler) Unsubscribe(sub *progress.Subscription) { s.bus.Unsubscribe(sub) }

// Stats reports store aggregates plus live queue and pool occupancy.
type Stats struct {
	jobstore.Stats
	QueueDepth int `json:"queue_depth"`
	ActiveJobs int `json:"active_jobs"`
}

// Snapshot returns current scheduler statistics.
func (s *Scheduler) Snapshot() Stats {
	s.mu.Lock()
	depth := len(s.queue)
	active := s.activeJobs
	s.mu.Unlock()
	return Stats{Stats: s.store.Snapshot(), QueueDepth: depth, ActiveJobs: active}
}

// ActivePaths returns the temp paths of jobs currently inside the pipeline.
// The janitor must not sweep these.
func (s *Scheduler) ActivePaths() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]struct{}, len(s.activePaths))
	for p := range s.activePaths {
		out[p] = struct{}{}
	}
	return out
}

// Shutdown stops admission, cancels jobs still waiting in the queue, waits
// for running jobs until ctx expires, then cancels whatever is still running
// and waits for the workers to settle.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	queued := s.queue
	s.queue = nil
	s.metrics.SetQueueDepth(0)
	s.cond.Broadcast()
	s.mu.Unlock()

	// The dispatcher stops popping once closed is set, so queued jobs would
	// otherwise stay Pending forever.
	for _, jobID := range queued {
		err := s.store.Transition(jobID, jobstore.StateCancelled, jobstore.TransitionFields{
			ErrorKind: KindCancelled,
			ErrorMsg:  "scheduler shut down before processing started",
		})
		if err != nil {
			continue // already settled
		}
		s.metrics.JobFinished(string(jobstore.StateCancelled), 0)
		s.publishError(jobID, KindCancelled, "scheduler shut down before processing started")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Msg("Scheduler drained")
		return nil
	case <-ctx.Done():
	}

	s.log.Warn().Msg("Shutdown deadline reached, cancelling active jobs")
	s.baseCancel()
	<-done
	return ctx.Err()
}

// dispatch pops queued jobs in FIFO order and hands each to a worker slot.
func (s *Scheduler) dispatch() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		jobID := s.queue[0]
		s.queue = s.queue[1:]
		s.metrics.SetQueueDepth(len(s.queue))
		s.mu.Unlock()

		job, err := s.store.Get(jobID)
		if err != nil || job.State.Terminal() {
			continue // cancelled or evicted while queued
		}

		if err := s.jobSem.Acquire(s.baseCtx, 1); err != nil {
			return
		}
		s.wg.Add(1)
		go func(id string) {
			defer s.wg.Done()
			defer s.jobSem.Release(1)
			s.runJob(id)
		}(jobID)
	}
}
