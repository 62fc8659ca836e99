package scheduler

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wavescribe/wavescribe/pkg/backend"
	"github.com/wavescribe/wavescribe/pkg/types"
)

// deviceState is the job-wide inference device. An out of memory failure
// downgrades it to CPU for every remaining chunk and retry of the job.
type deviceState struct {
	mu     sync.Mutex
	device types.Device
}

func (d *deviceState) get() types.Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.device
}

// downgrade switches to CPU, reporting whether this call did the switch.
func (d *deviceState) downgrade() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == types.DeviceCPU {
		return false
	}
	d.device = types.DeviceCPU
	return true
}

// transcribeChunks runs the inner worker pool over the job's chunks. The
// pool width is MaxConcurrentChunks, pinned to one when the backend does not
// allow concurrent Transcribe calls. Results keep chunk order regardless of
// completion order. The returned device reflects any OOM downgrade.
func (s *Scheduler) transcribeChunks(ctx context.Context, jobID string, opts types.Options, chunks []types.AudioChunk, device types.Device) ([]*types.ChunkResult, types.Device, error) {
	parallel := s.cfg.MaxConcurrentChunks
	if !s.backend.Describe().ThreadSafe {
		parallel = 1
	}

	dev := &deviceState{device: device}
	results := make([]*types.ChunkResult, len(chunks))
	var completed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			res, err := s.transcribeWithRetry(gctx, jobID, opts, chunk, dev)
			if err != nil {
				return err
			}
			results[i] = res
			done := completed.Add(1)
			pct := pctTranscribe + int(float64(pctMerge-pctTranscribe)*float64(done)/float64(len(chunks)))
			s.publishProgress(jobID, pct, "transcribing",
				fmt.Sprintf("chunk %d/%d transcribed", done, len(chunks)))
			s.metrics.ChunkTranscribed()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dev.get(), err
	}
	return results, dev.get(), nil
}

// transcribeWithRetry runs one chunk through the backend, retrying
// retryable failures with exponential backoff and jitter.
func (s *Scheduler) transcribeWithRetry(ctx context.Context, jobID string, opts types.Options, chunk types.AudioChunk, dev *deviceState) (*types.ChunkResult, error) {
	log := s.log.WithField("job_id", jobID).WithField("chunk", chunk.Path)

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxChunkRetries; attempt++ {
		if attempt > 0 {
			s.metrics.ChunkRetried()
			delay := s.backoffDelay(attempt)
			log.Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Retrying chunk")
			if err := sleepContext(ctx, delay); err != nil {
				return nil, err
			}
		}

		res, err := s.backend.Transcribe(ctx, backend.TranscribeRequest{
			AudioPath:          chunk.Path,
			Language:           opts.Language,
			WantWordTimestamps: opts.WantWordTimestamps,
			Temperature:        opts.Temperature,
			Device:             dev.get(),
		})
		if err == nil {
			res.StartSeconds = chunk.StartSeconds
			res.EndSeconds = chunk.EndSeconds
			return res, nil
		}
		if backend.IsCancelled(err) || !backend.Retryable(err) {
			return nil, err
		}
		if backend.KindOf(err) == backend.KindOutOfMemory && dev.downgrade() {
			log.Warn().Msg("Backend out of memory, downgrading job to CPU")
		}
		lastErr = err
	}
	return nil, lastErr
}

// backoffDelay computes the wait before the given retry attempt: exponential
// in the attempt number, capped, with a 0.5x to 1.0x jitter so simultaneous
// retries spread out.
func (s *Scheduler) backoffDelay(attempt int) time.Duration {
	raw := float64(s.cfg.RetryBaseDelay) * math.Pow(s.cfg.RetryFactor, float64(attempt-1))
	if capped := float64(s.cfg.RetryMaxDelay); raw > capped {
		raw = capped
	}
	jitter := 0.5 + 0.5*rand.Float64()
	return time.Duration(raw * jitter)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
