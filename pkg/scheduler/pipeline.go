package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/wavescribe/wavescribe/pkg/audio"
	"github.com/wavescribe/wavescribe/pkg/backend"
	"github.com/wavescribe/wavescribe/pkg/jobstore"
	"github.com/wavescribe/wavescribe/pkg/postprocess"
	"github.com/wavescribe/wavescribe/pkg/progress"
	"github.com/wavescribe/wavescribe/pkg/types"
)

// Progress band boundaries. Each pipeline stage maps its internal progress
// into its band so the job-level percentage is monotone across stages.
const (
	pctProbe      = 5
	pctPrepare    = 10
	pctTranscribe = 50
	pctMerge      = 95
)

// runJob drives one job through the whole pipeline. It owns the job's
// working directory and always settles the job into a terminal state.
func (s *Scheduler) runJob(jobID string) {
	log := s.log.WithField("job_id", jobID)
	start := time.Now()

	ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.JobTimeout)
	defer cancel()

	s.mu.Lock()
	s.cancels[jobID] = cancel
	s.activeJobs++
	s.metrics.SetActiveJobs(s.activeJobs)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.cancels, jobID)
		s.activeJobs--
		s.metrics.SetActiveJobs(s.activeJobs)
		s.mu.Unlock()
	}()

	stopHeartbeat := make(chan struct{})
	defer close(stopHeartbeat)
	go s.heartbeat(jobID, stopHeartbeat)

	if err := s.store.Transition(jobID, jobstore.StatePreparing, jobstore.TransitionFields{Phase: "validating"}); err != nil {
		return // settled while queued
	}
	s.publishProgress(jobID, 0, "validating", "job started")

	job, err := s.store.Get(jobID)
	if err != nil {
		return
	}

	s.publishProgress(jobID, pctProbe, "probing", "probing input")
	info, err := s.prober.Probe(job.InputPath)
	if err != nil {
		s.settleFailure(jobID, start, probeKind(err), err.Error())
		return
	}
	s.publishProgress(jobID, pctPrepare, "preparing", "probe complete")

	device := s.admitDevice(job.Options.UseGPU, info.DurationSeconds)
	log.Debug().
		Float64("duration_seconds", info.DurationSeconds).
		Str("device", string(device)).
		Msg("Input admitted")

	// Job dirs live under a jobs/ subdirectory so the janitor can sweep them
	// without touching sibling paths like backend model caches.
	tempDir := filepath.Join(s.cfg.TempDir, "jobs", jobID)
	s.trackPath(tempDir)
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			log.Warn().Err(err).Str("dir", tempDir).Msg("Temp cleanup failed, janitor will retry")
		}
		s.untrackPath(tempDir)
	}()

	desc, err := s.preparer.Prepare(ctx, job.InputPath, tempDir, func(fraction float64, message string) {
		pct := pctPrepare + int(fraction*float64(pctTranscribe-pctPrepare))
		s.publishProgress(jobID, pct, "preparing", message)
	})
	if err != nil {
		s.settleFailure(jobID, start, stageKind(ctx, err, KindPrepareFailed), err.Error())
		return
	}

	if err := s.store.Transition(jobID, jobstore.StateTranscribing, jobstore.TransitionFields{
		Phase:           "transcribing",
		EffectiveDevice: device,
	}); err != nil {
		return
	}
	s.publishProgress(jobID, pctTranscribe, "transcribing", "audio prepared")

	chunks, err := s.chunker.Split(ctx, desc, job.Options.Chunking, filepath.Join(tempDir, "chunks"))
	if err != nil {
		s.settleFailure(jobID, start, stageKind(ctx, err, KindSplitFailed), err.Error())
		return
	}

	if err := s.backend.Load(ctx, job.Options.ModelID); err != nil {
		s.settleFailure(jobID, start, stageKind(ctx, err, KindPrepareFailed), err.Error())
		return
	}

	results, device, err := s.transcribeChunks(ctx, jobID, job.Options, chunks, device)
	if err != nil {
		s.settleFailure(jobID, start, stageKind(ctx, err, string(backend.KindInternal)), err.Error())
		return
	}

	if err := s.store.Transition(jobID, jobstore.StateMerging, jobstore.TransitionFields{
		Phase:           "merging",
		EffectiveDevice: device,
	}); err != nil {
		return
	}
	s.publishProgress(jobID, pctMerge, "merging", "all chunks transcribed")

	transcript := audio.Merge(results, job.Options.Chunking.OverlapSeconds)
	transcript.Text = s.post.Process(ctx, transcript.Text, transcript.DetectedLanguage)
	for i := range transcript.Segments {
		transcript.Segments[i].Text = postprocess.Clean(transcript.Segments[i].Text)
	}
	transcript.ModelID = job.Options.ModelID
	transcript.ProcessingSeconds = time.Since(start).Seconds()

	if err := s.store.Transition(jobID, jobstore.StateCompleted, jobstore.TransitionFields{
		Transcript: transcript,
	}); err != nil {
		return
	}
	s.metrics.JobFinished(string(jobstore.StateCompleted), transcript.ProcessingSeconds)
	s.bus.Publish(progress.Event{
		JobID:      jobID,
		Type:       progress.EventResult,
		Percent:    100,
		Transcript: transcript,
	})
	log.Info().
		Int("chunks", len(chunks)).
		Float64("processing_seconds", transcript.ProcessingSeconds).
		Str("language", transcript.DetectedLanguage).
		Msg("Job completed")
}

// admitDevice resolves the GPU mode against the input duration. Long inputs
// under auto run on CPU so the accelerator stays available for short jobs.
func (s *Scheduler) admitDevice(mode types.GPUMode, durationSeconds float64) types.Device {
	switch mode {
	case types.GPUOn:
		return types.DeviceGPU
	case types.GPUOff:
		return types.DeviceCPU
	default:
		if durationSeconds > s.cfg.GPULongInputSeconds {
			return types.DeviceCPU
		}
		return types.DeviceGPU
	}
}

// settleFailure moves a job into Failed or Cancelled and publishes the
// terminal error event.
func (s *Scheduler) settleFailure(jobID string, start time.Time, kind, msg string) {
	state := jobstore.StateFailed
	if kind == KindCancelled {
		state = jobstore.StateCancelled
	}
	if err := s.store.Transition(jobID, state, jobstore.TransitionFields{
		ErrorKind: kind,
		ErrorMsg:  msg,
	}); err != nil {
		return // already terminal
	}
	s.metrics.JobFinished(string(state), time.Since(start).Seconds())
	s.publishError(jobID, kind, msg)
	s.log.Warn().
		Str("job_id", jobID).
		Str("state", string(state)).
		Str("kind", kind).
		Str("error", msg).
		Msg("Job settled with failure")
}

// publishProgress records the percent in the store and publishes the store's
// clamped value, so concurrent chunk completions cannot emit a regressing
// percentage even when their publishes interleave out of order.
func (s *Scheduler) publishProgress(jobID string, percent int, phase, message string) {
	effective, err := s.store.SetProgress(jobID, percent, phase)
	if err != nil {
		return
	}
	s.bus.Publish(progress.Event{
		JobID:   jobID,
		Type:    progress.EventProgress,
		Percent: effective,
		Phase:   phase,
		Message: message,
	})
}

func (s *Scheduler) publishError(jobID, kind, msg string) {
	s.bus.Publish(progress.Event{
		JobID:     jobID,
		Type:      progress.EventError,
		ErrorKind: kind,
		Message:   msg,
	})
}

// heartbeat emits keepalive events while a job is active so stream
// consumers can distinguish a long-running stage from a dead connection.
func (s *Scheduler) heartbeat(jobID string, stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.HeartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			job, err := s.store.Get(jobID)
			if err != nil || job.State.Terminal() {
				return
			}
			s.bus.Publish(progress.Event{
				JobID:   jobID,
				Type:    progress.EventHeartbeat,
				Percent: job.Progress,
				Phase:   job.Phase,
			})
		}
	}
}

func (s *Scheduler) trackPath(path string) {
	s.mu.Lock()
	s.activePaths[path] = struct{}{}
	s.mu.Unlock()
}

func (s *Scheduler) untrackPath(path string) {
	s.mu.Lock()
	delete(s.activePaths, path)
	s.mu.Unlock()
}
