package jobstore

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wavescribe/wavescribe/pkg/logger"
	"github.com/wavescribe/wavescribe/pkg/types"
)

// Store errors.
var (
	ErrJobNotFound       = errors.New("job not found")
	ErrBatchNotFound     = errors.New("batch not found")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// TransitionFields carries the optional record updates applied atomically
// with a state transition.
type TransitionFields struct {
	Transcript      *types.Transcript
	ErrorKind       string
	ErrorMsg        string
	EffectiveDevice types.Device
	Phase           string
}

// Store is the process-local job registry. Every mutator is atomic with
// respect to readers; readers always observe a consistent copy of a record.
type Store struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	batches map[string]*Batch
	byState map[State]map[string]struct{}

	totalProcessed   int
	totalSucceeded   int
	totalFailed      int
	processingTotals float64

	log *logger.Logger
}

// New creates an empty store.
func New() *Store {
	byState := make(map[State]map[string]struct{}, len(States))
	for _, s := range States {
		byState[s] = make(map[string]struct{})
	}
	return &Store{
		jobs:    make(map[string]*Job),
		batches: make(map[string]*Batch),
		byState: byState,
		log:     logger.WithComponent("jobstore"),
	}
}

// CreateJob registers a new pending job and returns its id.
func (s *Store) CreateJob(inputPath string, opts types.Options) string {
	id := fmt.Sprintf("job_%s", uuid.NewString())
	job := &Job{
		ID:        id,
		InputPath: inputPath,
		Options:   opts,
		State:     StatePending,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.jobs[id] = job
	s.byState[StatePending][id] = struct{}{}
	s.mu.Unlock()

	s.log.Debug().Str("job_id", id).Str("input", inputPath).Msg("Job created")
	return id
}

// CreateBatch groups already-created jobs into a batch and returns its id.
func (s *Store) CreateBatch(jobIDs []string) string {
	id := fmt.Sprintf("batch_%s", uuid.NewString())
	batch := &Batch{
		ID:        id,
		JobIDs:    append([]string(nil), jobIDs...),
		Total:     len(jobIDs),
		Pending:   len(jobIDs),
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.batches[id] = batch
	for _, jobID := range jobIDs {
		if job, ok := s.jobs[jobID]; ok {
			job.BatchID = id
		}
	}
	s.mu.Unlock()

	s.log.Debug().Str("batch_id", id).Int("jobs", len(jobIDs)).Msg("Batch created")
	return id
}

// Get returns a copy of the job record.
func (s *Store) Get(jobID string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return copyJob(job), nil
}

// GetBatch returns a copy of the batch record.
func (s *Store) GetBatch(batchID string) (*Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch, ok := s.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}
	return copyBatch(batch), nil
}

// List returns jobs matching the filter, newest first, with offset/limit
// pagination. The second return value is the total match count before
// pagination.
func (s *Store) List(filter Filter, limit, offset int) ([]*Job, int) {
	s.mu.RLock()
	var matched []*Job
	if filter.State != "" {
		for id := range s.byState[filter.State] {
			job := s.jobs[id]
			if filter.BatchID == "" || job.BatchID == filter.BatchID {
				matched = append(matched, job)
			}
		}
	} else {
		for _, job := range s.jobs {
			if filter.BatchID == "" || job.BatchID == filter.BatchID {
				matched = append(matched, job)
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset > total {
		offset = total
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	out := make([]*Job, len(matched))
	for i, job := range matched {
		out[i] = copyJob(job)
	}
	s.mu.RUnlock()
	return out, total
}

// Transition moves a job to a new state, applying fields atomically. It
// enforces the state machine: terminal states are written exactly once and
// never left, and CompletedAt is set exactly when a terminal state is
// entered. Cancelling an already-terminal job returns ErrInvalidTransition;
// callers that need idempotent cancel check the state first.
func (s *Store) Transition(jobID string, next State, fields TransitionFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if job.State.Terminal() || !job.State.canTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.State, next)
	}

	prev := job.State
	delete(s.byState[prev], jobID)
	job.State = next
	s.byState[next][jobID] = struct{}{}

	now := time.Now()
	if prev == StatePending && next == StatePreparing {
		job.StartedAt = &now
	}
	if fields.Phase != "" {
		job.Phase = fields.Phase
	}
	if fields.EffectiveDevice != "" {
		job.EffectiveDevice = fields.EffectiveDevice
	}

	if next.Terminal() {
		job.CompletedAt = &now
		job.Phase = ""
		switch next {
		case StateCompleted:
			job.Transcript = fields.Transcript
			job.Progress = 100
			s.totalProcessed++
			s.totalSucceeded++
			if job.StartedAt != nil {
				s.processingTotals += now.Sub(*job.StartedAt).Seconds()
			}
		case StateFailed, StateCancelled:
			job.ErrorKind = fields.ErrorKind
			job.ErrorMsg = fields.ErrorMsg
			s.totalProcessed++
			s.totalFailed++
		}
		s.settleBatchLocked(job)
	}

	s.log.Debug().
		Str("job_id", jobID).
		Str("from", string(prev)).
		Str("to", string(next)).
		Msg("Job state transition")
	return nil
}

// settleBatchLocked moves one job from pending to completed/failed in its
// batch counters. Caller holds the write lock.
func (s *Store) settleBatchLocked(job *Job) {
	if job.BatchID == "" {
		return
	}
	batch, ok := s.batches[job.BatchID]
	if !ok {
		return
	}
	batch.Pending--
	if job.State == StateCompleted {
		batch.Completed++
	} else {
		batch.Failed++
	}
}

// SetProgress raises the job's progress. Values below the current progress
// are clamped up: the bar never moves backwards. No-op on terminal jobs.
// It returns the job's effective progress after the update, so callers can
// publish a value that honors the clamp.
func (s *Store) SetProgress(jobID string, percent int, phase string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if job.State.Terminal() {
		return job.Progress, nil
	}
	if percent > 100 {
		percent = 100
	}
	if percent > job.Progress {
		job.Progress = percent
	}
	if phase != "" {
		job.Phase = phase
	}
	return job.Progress, nil
}

// Remove deletes a job record. Used by the janitor for retention sweeps.
func (s *Store) Remove(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return false
	}
	delete(s.byState[job.State], jobID)
	delete(s.jobs, jobID)
	return true
}

// RemoveBatch deletes a batch record.
func (s *Store) RemoveBatch(batchID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[batchID]; !ok {
		return false
	}
	delete(s.batches, batchID)
	return true
}

// TerminalBefore returns ids of jobs whose CompletedAt is older than cutoff,
// plus batches created before cutoff with no pending jobs.
func (s *Store) TerminalBefore(cutoff time.Time) (jobIDs, batchIDs []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, job := range s.jobs {
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			jobIDs = append(jobIDs, id)
		}
	}
	for id, batch := range s.batches {
		if batch.Pending == 0 && batch.CreatedAt.Before(cutoff) {
			batchIDs = append(batchIDs, id)
		}
	}
	return jobIDs, batchIDs
}

// Snapshot returns aggregate statistics.
func (s *Store) Snapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[State]int, len(States))
	for _, st := range States {
		counts[st] = len(s.byState[st])
	}
	stats := Stats{
		CountsByState:  counts,
		TotalJobs:      len(s.jobs),
		TotalBatches:   len(s.batches),
		TotalProcessed: s.totalProcessed,
		TotalSucceeded: s.totalSucceeded,
		TotalFailed:    s.totalFailed,
	}
	if s.totalSucceeded > 0 {
		stats.AverageProcessingSeconds = s.processingTotals / float64(s.totalSucceeded)
	}
	return stats
}

func copyJob(job *Job) *Job {
	out := *job
	if job.StartedAt != nil {
		t := *job.StartedAt
		out.StartedAt = &t
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		out.CompletedAt = &t
	}
	if job.Transcript != nil {
		tr := *job.Transcript
		tr.Segments = append([]types.Segment(nil), job.Transcript.Segments...)
		out.Transcript = &tr
	}
	return &out
}

func copyBatch(batch *Batch) *Batch {
	out := *batch
	out.JobIDs = append([]string(nil), batch.JobIDs...)
	return &out
}
