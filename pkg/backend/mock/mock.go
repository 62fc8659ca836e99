// Package mock provides a scriptable test double for backend.SpeechBackend.
//
// Results and errors are consumed per call in FIFO order; when the scripts
// run out, a minimal synthetic result is produced from the request. Delay
// simulates inference time and is interruptible by the context.
package mock

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/wavescribe/wavescribe/pkg/backend"
	"github.com/wavescribe/wavescribe/pkg/types"
)

// TranscribeCall records one invocation of Backend.Transcribe.
type TranscribeCall struct {
	Req backend.TranscribeRequest
}

// Backend is a mock implementation of backend.SpeechBackend.
type Backend struct {
	mu sync.Mutex

	// Results are returned in order for successive Transcribe calls.
	Results []*types.ChunkResult
	// Errs are returned in order; a nil entry means success for that call.
	Errs []error
	// Delay is how long each Transcribe call blocks before returning.
	Delay time.Duration
	// ThreadSafe is advertised through Describe.
	ThreadSafe bool
	// LoadErr, if non-nil, is returned by Load.
	LoadErr error
	// LoadDelay stretches the real load to widen race windows in tests.
	LoadDelay time.Duration

	guard      backend.LoadGuard
	loadCount  int
	calls      []TranscribeCall
	resultIdx  int
	errIdx     int
	modelID    string
	unloadedAt int
}

var _ backend.SpeechBackend = (*Backend)(nil)

// New returns a mock backend that succeeds with synthetic results.
func New() *Backend {
	return &Backend{ThreadSafe: true}
}

// Load runs the guarded loader, counting real loads.
func (b *Backend) Load(ctx context.Context, modelID string) error {
	if modelID == "" {
		modelID = "mock-model"
	}
	return b.guard.Ensure(ctx, modelID, func(ctx context.Context) error {
		if b.LoadDelay > 0 {
			select {
			case <-time.After(b.LoadDelay):
			case <-ctx.Done():
				return backend.NewError(backend.KindCancelled, "load cancelled", ctx.Err())
			}
		}
		b.mu.Lock()
		if b.LoadErr != nil {
			err := b.LoadErr
			b.mu.Unlock()
			return err
		}
		b.loadCount++
		b.modelID = modelID
		b.mu.Unlock()
		return nil
	})
}

// Unload resets the guard.
func (b *Backend) Unload() error {
	return b.guard.Reset(func() error {
		b.mu.Lock()
		b.unloadedAt++
		b.mu.Unlock()
		return nil
	})
}

// Describe reports the mock's configuration.
func (b *Backend) Describe() backend.Description {
	b.mu.Lock()
	defer b.mu.Unlock()
	return backend.Description{
		ModelID:            b.modelID,
		SupportedLanguages: []string{"auto", "en", "zh"},
		ThreadSafe:         b.ThreadSafe,
	}
}

// Transcribe records the call, waits Delay, and pops the next scripted
// result or error.
func (b *Backend) Transcribe(ctx context.Context, req backend.TranscribeRequest) (*types.ChunkResult, error) {
	if err := b.Load(ctx, "mock-model"); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.calls = append(b.calls, TranscribeCall{Req: req})
	var scripted error
	if b.errIdx < len(b.Errs) {
		scripted = b.Errs[b.errIdx]
		b.errIdx++
	}
	var result *types.ChunkResult
	if b.resultIdx < len(b.Results) {
		result = b.Results[b.resultIdx]
		b.resultIdx++
	}
	delay := b.Delay
	b.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, backend.NewError(backend.KindCancelled, "transcription cancelled", ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, backend.NewError(backend.KindCancelled, "transcription cancelled", err)
	}
	if scripted != nil {
		return nil, scripted
	}
	if result != nil {
		return result, nil
	}
	return syntheticResult(req), nil
}

// Calls returns a copy of the recorded Transcribe invocations.
func (b *Backend) Calls() []TranscribeCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]TranscribeCall, len(b.calls))
	copy(out, b.calls)
	return out
}

// LoadCount reports how many real loads ran.
func (b *Backend) LoadCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loadCount
}

func syntheticResult(req backend.TranscribeRequest) *types.ChunkResult {
	text := fmt.Sprintf("transcript of %s", filepath.Base(req.AudioPath))
	return &types.ChunkResult{
		Text:     text,
		Language: "en",
		Segments: []types.Segment{
			{StartSeconds: 0, EndSeconds: 1, Text: text, Confidence: 0.9},
		},
	}
}
