// Package jobstore is the in-memory registry of transcription jobs and
// batches. It owns the job records, enforces the lifecycle state machine,
// and maintains per-state indices for filtered listing. Nothing here
// survives a process restart by design.
package jobstore

import (
	"time"

	"github.com/wavescribe/wavescribe/pkg/types"
)

// State is the lifecycle state of a job.
type State string

const (
	StatePending      State = "pending"
	StatePreparing    State = "preparing"
	StateTranscribing State = "transcribing"
	StateMerging      State = "merging"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
	StateCancelled    State = "cancelled"
)

// States lists every state, used for index initialization and stats.
var States = []State{
	StatePending, StatePreparing, StateTranscribing, StateMerging,
	StateCompleted, StateFailed, StateCancelled,
}

// Terminal reports whether a job in this state is immutable.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// validNext is the transition matrix of the job state machine.
var validNext = map[State][]State{
	StatePending:      {StatePreparing, StateFailed, StateCancelled},
	StatePreparing:    {StateTranscribing, StateFailed, StateCancelled},
	StateTranscribing: {StateMerging, StateFailed, StateCancelled},
	StateMerging:      {StateCompleted, StateFailed, StateCancelled},
}

func (s State) canTransitionTo(next State) bool {
	for _, v := range validNext[s] {
		if v == next {
			return true
		}
	}
	return false
}

// Job is one input file moving through the pipeline. The store owns the
// canonical record; callers receive copies.
type Job struct {
	ID        string        `json:"job_id"`
	BatchID   string        `json:"batch_id,omitempty"`
	InputPath string        `json:"input_path"`
	Options   types.Options `json:"options"`

	State    State  `json:"state"`
	Progress int    `json:"progress"` // 0-100, monotonically non-decreasing
	Phase    string `json:"phase,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// EffectiveDevice records the GPU admission decision for this job.
	EffectiveDevice types.Device `json:"effective_device,omitempty"`

	Transcript *types.Transcript `json:"transcript,omitempty"`
	ErrorKind  string            `json:"error_kind,omitempty"`
	ErrorMsg   string            `json:"error,omitempty"`
}

// Batch aggregates jobs submitted together. Cancelled jobs count toward
// Failed so that Pending+Completed+Failed always equals Total.
type Batch struct {
	ID        string    `json:"batch_id"`
	JobIDs    []string  `json:"job_ids"`
	Total     int       `json:"total"`
	Pending   int       `json:"pending"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter selects jobs for listing. Zero values match everything.
type Filter struct {
	State   State
	BatchID string
}

// Stats is a point-in-time aggregate over the store.
type Stats struct {
	CountsByState            map[State]int `json:"counts_by_state"`
	TotalJobs                int           `json:"total_jobs"`
	TotalBatches             int           `json:"total_batches"`
	TotalProcessed           int           `json:"total_processed"`
	TotalSucceeded           int           `json:"total_succeeded"`
	TotalFailed              int           `json:"total_failed"`
	AverageProcessingSeconds float64       `json:"average_processing_seconds"`
}
