// Package backend defines the speech recognition capability the scheduler
// drives. The inference engine itself is pluggable: anything that can turn a
// 16 kHz mono WAV into timed segments satisfies SpeechBackend.
package backend

import (
	"context"

	"github.com/wavescribe/wavescribe/pkg/types"
)

// ProgressSink receives coarse progress from a backend while it works on a
// single chunk. Fraction is in [0,1].
type ProgressSink func(fraction float64, message string)

// TranscribeRequest carries everything a backend needs for one chunk.
type TranscribeRequest struct {
	AudioPath          string
	Language           string // "auto" or a supported tag
	WantWordTimestamps bool
	Temperature        float32
	Device             types.Device
	Progress           ProgressSink // may be nil
}

// Description advertises a backend's capabilities to the scheduler.
type Description struct {
	ModelID             string
	SupportedLanguages  []string
	NeedsAccelerator    bool
	ApproximateMemoryMB int
	// ThreadSafe reports whether Transcribe may be called concurrently.
	// When false the scheduler pins inference to a single worker.
	ThreadSafe bool
}

// SpeechBackend transcribes prepared audio segments. Implementations must
// honour context cancellation by returning a Cancelled error as soon as
// practical, and must make Load idempotent under concurrent callers.
type SpeechBackend interface {
	// Load makes the model available. Safe and cheap to call repeatedly;
	// at most one real load runs even under concurrent callers.
	Load(ctx context.Context, modelID string) error

	// Unload releases backend memory. Safe to call when not loaded.
	Unload() error

	// Transcribe runs inference on one audio file. Segment offsets in the
	// result are local to the given file.
	Transcribe(ctx context.Context, req TranscribeRequest) (*types.ChunkResult, error)

	// Describe reports the backend's model and capabilities.
	Describe() Description
}
