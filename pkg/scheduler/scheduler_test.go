package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/wavescribe/wavescribe/pkg/audio"
	"github.com/wavescribe/wavescribe/pkg/backend"
	"github.com/wavescribe/wavescribe/pkg/backend/mock"
	"github.com/wavescribe/wavescribe/pkg/jobstore"
	"github.com/wavescribe/wavescribe/pkg/media"
	"github.com/wavescribe/wavescribe/pkg/postprocess"
	"github.com/wavescribe/wavescribe/pkg/progress"
	"github.com/wavescribe/wavescribe/pkg/types"
)

type stubProber struct {
	info *types.MediaInfo
	err  error
}

func (p *stubProber) Probe(path string) (*types.MediaInfo, error) {
	if p.err != nil {
		return nil, p.err
	}
	info := *p.info
	info.Path = path
	return &info, nil
}

type stubPreparer struct {
	err     error
	block   chan struct{} // when non-nil, Prepare waits for close or cancellation
	started chan string   // when non-nil, receives the input path on entry
}

func (p *stubPreparer) Prepare(ctx context.Context, inputPath, tempDir string, sink audio.ProgressSink) (*types.AudioDescriptor, error) {
	if p.started != nil {
		p.started <- inputPath
	}
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	if sink != nil {
		sink(1, "audio ready")
	}
	return &types.AudioDescriptor{
		Path:            tempDir + "/prepared.wav",
		DurationSeconds: 598,
		SampleRate:      16000,
		Channels:        1,
	}, nil
}

type stubChunker struct {
	chunks []types.AudioChunk
	err    error
}

func (c *stubChunker) Split(context.Context, *types.AudioDescriptor, types.ChunkingOptions, string) ([]types.AudioChunk, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.chunks, nil
}

func twoChunks() []types.AudioChunk {
	return []types.AudioChunk{
		{Path: "/tmp/chunk_000.wav", StartSeconds: 0, EndSeconds: 300},
		{Path: "/tmp/chunk_001.wav", StartSeconds: 298, EndSeconds: 598},
	}
}

type stages struct {
	prober   mediaProber
	preparer audioPreparer
	chunker  audioChunker
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryBaseDelay = time.Millisecond
	cfg.RetryMaxDelay = 5 * time.Millisecond
	return cfg
}

func newTestScheduler(t *testing.T, cfg Config, be backend.SpeechBackend, st stages) *Scheduler {
	t.Helper()
	cfg.TempDir = t.TempDir()
	s := New(cfg, jobstore.New(), progress.NewBus(16), be, postprocess.NewProcessor(nil), nil)
	if st.prober != nil {
		s.prober = st.prober
	} else {
		s.prober = &stubProber{info: &types.MediaInfo{Format: "wav", DurationSeconds: 598}}
	}
	if st.preparer != nil {
		s.preparer = st.preparer
	} else {
		s.preparer = &stubPreparer{}
	}
	if st.chunker != nil {
		s.chunker = st.chunker
	} else {
		s.chunker = &stubChunker{chunks: twoChunks()}
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func waitTerminal(t *testing.T, s *Scheduler, jobID string) *jobstore.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		job, err := s.GetJob(jobID)
		if err != nil {
			t.Fatalf("GetJob() failed: %v", err)
		}
		if job.State.Terminal() {
			return job
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s stuck in state %s", jobID, job.State)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestJobCompletesThroughPipeline(t *testing.T) {
	be := mock.New()
	be.Results = []*types.ChunkResult{
		{Text: "hello", Language: "en", Segments: []types.Segment{
			{StartSeconds: 0, EndSeconds: 5, Text: "hello", Confidence: 0.9},
		}},
		{Text: "world", Language: "en", Segments: []types.Segment{
			{StartSeconds: 4, EndSeconds: 9, Text: "world", Confidence: 0.8},
		}},
	}
	s := newTestScheduler(t, testConfig(), be, stages{})

	jobID, err := s.Submit("/media/talk.mp4", types.DefaultOptions())
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}

	job := waitTerminal(t, s, jobID)
	if job.State != jobstore.StateCompleted {
		t.Fatalf("state = %s (%s: %s), want completed", job.State, job.ErrorKind, job.ErrorMsg)
	}
	if job.Progress != 100 {
		t.Errorf("Progress = %d, want 100", job.Progress)
	}
	if job.Transcript == nil {
		t.Fatal("Transcript is nil on a completed job")
	}
	if job.Transcript.Text != "hello world" {
		t.Errorf("Text = %q, want merged chunk texts", job.Transcript.Text)
	}
	if job.Transcript.ModelID != "whisper-1" {
		t.Errorf("ModelID = %q, want whisper-1", job.Transcript.ModelID)
	}
	if job.Transcript.Segments[1].StartSeconds != 302 {
		t.Errorf("second segment start = %v, want shifted to 302", job.Transcript.Segments[1].StartSeconds)
	}
	if job.EffectiveDevice == "" {
		t.Error("EffectiveDevice not recorded")
	}
	if len(be.Calls()) != 2 {
		t.Errorf("backend called %d times, want 2", len(be.Calls()))
	}
}

func TestSubmitInvalidOptions(t *testing.T) {
	s := newTestScheduler(t, testConfig(), mock.New(), stages{})

	opts := types.DefaultOptions()
	opts.Temperature = 3
	if _, err := s.Submit("/media/talk.mp4", opts); !errors.Is(err, types.ErrInvalidTemperature) {
		t.Errorf("Submit() = %v, want ErrInvalidTemperature", err)
	}
}

func TestJobFailsWhenInputMissing(t *testing.T) {
	s := newTestScheduler(t, testConfig(), mock.New(), stages{
		prober: &stubProber{err: media.ErrNotFound},
	})

	jobID, err := s.Submit("/media/missing.mp4", types.DefaultOptions())
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}

	job := waitTerminal(t, s, jobID)
	if job.State != jobstore.StateFailed {
		t.Errorf("state = %s, want failed", job.State)
	}
	if job.ErrorKind != KindNotFound {
		t.Errorf("ErrorKind = %q, want %q", job.ErrorKind, KindNotFound)
	}
}

func TestJobFailsWhenSplitFails(t *testing.T) {
	s := newTestScheduler(t, testConfig(), mock.New(), stages{
		chunker: &stubChunker{err: audio.ErrSplitFailed},
	})

	jobID, _ := s.Submit("/media/talk.mp4", types.DefaultOptions())
	job := waitTerminal(t, s, jobID)
	if job.State != jobstore.StateFailed || job.ErrorKind != KindSplitFailed {
		t.Errorf("state/kind = %s/%q, want failed/%q", job.State, job.ErrorKind, KindSplitFailed)
	}
}

func TestCancelQueuedJob(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentJobs = 1
	block := make(chan struct{})
	started := make(chan string, 2)
	s := newTestScheduler(t, cfg, mock.New(), stages{
		preparer: &stubPreparer{block: block, started: started},
	})

	first, err := s.Submit("/media/a.mp4", types.DefaultOptions())
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	<-started // the only worker slot is now occupied

	queued, err := s.Submit("/media/b.mp4", types.DefaultOptions())
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if err := s.Cancel(queued); err != nil {
		t.Fatalf("Cancel() failed: %v", err)
	}

	job, _ := s.GetJob(queued)
	if job.State != jobstore.StateCancelled {
		t.Errorf("queued job state = %s, want cancelled", job.State)
	}
	if job.ErrorKind != KindCancelled {
		t.Errorf("ErrorKind = %q, want %q", job.ErrorKind, KindCancelled)
	}

	close(block)
	if job := waitTerminal(t, s, first); job.State != jobstore.StateCompleted {
		t.Errorf("first job state = %s, want completed", job.State)
	}
	select {
	case path := <-started:
		t.Errorf("cancelled job %s entered the pipeline", path)
	default:
	}
}

func TestCancelRunningJob(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	started := make(chan string, 1)
	s := newTestScheduler(t, testConfig(), mock.New(), stages{
		preparer: &stubPreparer{block: block, started: started},
	})

	jobID, _ := s.Submit("/media/talk.mp4", types.DefaultOptions())
	<-started
	if err := s.Cancel(jobID); err != nil {
		t.Fatalf("Cancel() failed: %v", err)
	}

	job := waitTerminal(t, s, jobID)
	if job.State != jobstore.StateCancelled {
		t.Errorf("state = %s, want cancelled", job.State)
	}
	if job.ErrorKind != KindCancelled {
		t.Errorf("ErrorKind = %q, want %q", job.ErrorKind, KindCancelled)
	}

	// Cancelling a settled job stays a no-op.
	if err := s.Cancel(jobID); err != nil {
		t.Errorf("Cancel(terminal) = %v, want nil", err)
	}
}

func TestRetryTransientThenSuccess(t *testing.T) {
	be := mock.New()
	be.Errs = []error{backend.NewError(backend.KindTransient, "rate limited", nil), nil}
	s := newTestScheduler(t, testConfig(), be, stages{
		chunker: &stubChunker{chunks: twoChunks()[:1]},
	})

	jobID, _ := s.Submit("/media/talk.mp4", types.DefaultOptions())
	job := waitTerminal(t, s, jobID)
	if job.State != jobstore.StateCompleted {
		t.Fatalf("state = %s (%s), want completed after retry", job.State, job.ErrorMsg)
	}
	if got := len(be.Calls()); got != 2 {
		t.Errorf("backend called %d times, want 2", got)
	}
}

func TestRetriesExhausted(t *testing.T) {
	transient := backend.NewError(backend.KindTransient, "still failing", nil)
	be := mock.New()
	be.Errs = []error{transient, transient, transient}
	s := newTestScheduler(t, testConfig(), be, stages{
		chunker: &stubChunker{chunks: twoChunks()[:1]},
	})

	jobID, _ := s.Submit("/media/talk.mp4", types.DefaultOptions())
	job := waitTerminal(t, s, jobID)
	if job.State != jobstore.StateFailed {
		t.Fatalf("state = %s, want failed after retry budget", job.State)
	}
	if job.ErrorKind != string(backend.KindTransient) {
		t.Errorf("ErrorKind = %q, want transient", job.ErrorKind)
	}
	if got := len(be.Calls()); got != 3 {
		t.Errorf("backend called %d times, want 1 + 2 retries", got)
	}
}

func TestNonRetryableFailsImmediately(t *testing.T) {
	be := mock.New()
	be.Errs = []error{backend.NewError(backend.KindInputUnreadable, "corrupt chunk", nil)}
	s := newTestScheduler(t, testConfig(), be, stages{
		chunker: &stubChunker{chunks: twoChunks()[:1]},
	})

	jobID, _ := s.Submit("/media/talk.mp4", types.DefaultOptions())
	job := waitTerminal(t, s, jobID)
	if job.State != jobstore.StateFailed || job.ErrorKind != string(backend.KindInputUnreadable) {
		t.Errorf("state/kind = %s/%q, want failed/input_unreadable", job.State, job.ErrorKind)
	}
	if got := len(be.Calls()); got != 1 {
		t.Errorf("backend called %d times, want 1 (no retry)", got)
	}
}

func TestOOMDowngradesJobToCPU(t *testing.T) {
	be := mock.New()
	be.Errs = []error{backend.NewError(backend.KindOutOfMemory, "cuda out of memory", nil), nil, nil}
	s := newTestScheduler(t, testConfig(), be, stages{})

	opts := types.DefaultOptions()
	opts.UseGPU = types.GPUOn
	jobID, _ := s.Submit("/media/talk.mp4", opts)

	job := waitTerminal(t, s, jobID)
	if job.State != jobstore.StateCompleted {
		t.Fatalf("state = %s (%s), want completed", job.State, job.ErrorMsg)
	}
	if job.EffectiveDevice != types.DeviceCPU {
		t.Errorf("EffectiveDevice = %s, want cpu after OOM downgrade", job.EffectiveDevice)
	}

	calls := be.Calls()
	if calls[0].Req.Device != types.DeviceGPU {
		t.Errorf("first attempt device = %s, want gpu", calls[0].Req.Device)
	}
	last := calls[len(calls)-1]
	if last.Req.Device != types.DeviceCPU {
		t.Errorf("post-downgrade device = %s, want cpu", last.Req.Device)
	}
}

func TestAdmitDevice(t *testing.T) {
	s := newTestScheduler(t, testConfig(), mock.New(), stages{})

	tests := []struct {
		name     string
		mode     types.GPUMode
		duration float64
		want     types.Device
	}{
		{"forced on", types.GPUOn, 10000, types.DeviceGPU},
		{"forced off", types.GPUOff, 10, types.DeviceCPU},
		{"auto short input", types.GPUAuto, 300, types.DeviceGPU},
		{"auto long input", types.GPUAuto, 601, types.DeviceCPU},
		{"auto at threshold", types.GPUAuto, 600, types.DeviceGPU},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.admitDevice(tt.mode, tt.duration); got != tt.want {
				t.Errorf("admitDevice(%s, %v) = %s, want %s", tt.mode, tt.duration, got, tt.want)
			}
		})
	}
}

func TestFIFOWithSingleWorker(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentJobs = 1
	block := make(chan struct{})
	started := make(chan string, 3)
	s := newTestScheduler(t, cfg, mock.New(), stages{
		preparer: &stubPreparer{block: block, started: started},
	})

	inputs := []string{"/media/a.mp4", "/media/b.mp4", "/media/c.mp4"}
	ids := make([]string, len(inputs))
	for i, input := range inputs {
		id, err := s.Submit(input, types.DefaultOptions())
		if err != nil {
			t.Fatalf("Submit(%s) failed: %v", input, err)
		}
		ids[i] = id
	}

	if first := <-started; first != inputs[0] {
		t.Errorf("first started = %s, want %s", first, inputs[0])
	}
	select {
	case path := <-started:
		t.Fatalf("%s started while the single slot was occupied", path)
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	if second := <-started; second != inputs[1] {
		t.Errorf("second started = %s, want %s", second, inputs[1])
	}
	if third := <-started; third != inputs[2] {
		t.Errorf("third started = %s, want %s", third, inputs[2])
	}
	for _, id := range ids {
		waitTerminal(t, s, id)
	}
}

func TestSubmitBatch(t *testing.T) {
	s := newTestScheduler(t, testConfig(), mock.New(), stages{
		prober: &stubProber{err: media.ErrNotFound},
	})

	batchID, jobIDs, err := s.SubmitBatch([]string{"/media/a.mp4", "/media/b.mp4"}, types.DefaultOptions())
	if err != nil {
		t.Fatalf("SubmitBatch() failed: %v", err)
	}
	if len(jobIDs) != 2 {
		t.Fatalf("SubmitBatch() returned %d job ids, want 2", len(jobIDs))
	}
	for _, id := range jobIDs {
		waitTerminal(t, s, id)
	}

	batch, err := s.GetBatch(batchID)
	if err != nil {
		t.Fatalf("GetBatch() failed: %v", err)
	}
	if batch.Total != 2 || batch.Pending != 0 || batch.Failed != 2 {
		t.Errorf("batch = total %d pending %d failed %d, want 2/0/2",
			batch.Total, batch.Pending, batch.Failed)
	}

	if _, _, err := s.SubmitBatch(nil, types.DefaultOptions()); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("SubmitBatch(empty) = %v, want ErrEmptyBatch", err)
	}
}

func TestCancelBatchIsIdempotent(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentJobs = 1
	block := make(chan struct{})
	defer close(block)
	started := make(chan string, 2)
	s := newTestScheduler(t, cfg, mock.New(), stages{
		preparer: &stubPreparer{block: block, started: started},
	})

	batchID, jobIDs, err := s.SubmitBatch([]string{"/media/a.mp4", "/media/b.mp4"}, types.DefaultOptions())
	if err != nil {
		t.Fatalf("SubmitBatch() failed: %v", err)
	}
	<-started

	if err := s.CancelBatch(batchID); err != nil {
		t.Fatalf("CancelBatch() failed: %v", err)
	}
	for _, id := range jobIDs {
		if job := waitTerminal(t, s, id); job.State != jobstore.StateCancelled {
			t.Errorf("job %s state = %s, want cancelled", id, job.State)
		}
	}
	if err := s.CancelBatch(batchID); err != nil {
		t.Errorf("CancelBatch() repeat = %v, want nil", err)
	}
}

func TestShutdownRejectsNewWork(t *testing.T) {
	cfg := testConfig()
	cfg.TempDir = t.TempDir()
	s := New(cfg, jobstore.New(), progress.NewBus(16), mock.New(), postprocess.NewProcessor(nil), nil)
	s.prober = &stubProber{info: &types.MediaInfo{Format: "wav", DurationSeconds: 10}}
	s.preparer = &stubPreparer{}
	s.chunker = &stubChunker{chunks: twoChunks()[:1]}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}

	if _, err := s.Submit("/media/talk.mp4", types.DefaultOptions()); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("Submit() after shutdown = %v, want ErrShuttingDown", err)
	}
	if _, _, err := s.SubmitBatch([]string{"/media/talk.mp4"}, types.DefaultOptions()); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("SubmitBatch() after shutdown = %v, want ErrShuttingDown", err)
	}
	// Repeated shutdown is a no-op.
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() repeat = %v, want nil", err)
	}
}

func TestShutdownCancelsQueuedJobs(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentJobs = 1
	block := make(chan struct{})
	started := make(chan string, 2)
	s := newTestScheduler(t, cfg, mock.New(), stages{
		preparer: &stubPreparer{block: block, started: started},
	})

	running, _ := s.Submit("/media/a.mp4", types.DefaultOptions())
	queued, _ := s.Submit("/media/b.mp4", types.DefaultOptions())
	<-started

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- s.Shutdown(ctx)
	}()

	job := waitTerminal(t, s, queued)
	if job.State != jobstore.StateCancelled {
		t.Errorf("queued job state = %s, want cancelled on shutdown", job.State)
	}
	if job.ErrorKind != KindCancelled {
		t.Errorf("ErrorKind = %q, want %q", job.ErrorKind, KindCancelled)
	}

	close(block)
	if job := waitTerminal(t, s, running); job.State != jobstore.StateCompleted {
		t.Errorf("running job state = %s (%s), want completed after drain", job.State, job.ErrorMsg)
	}
	if err := <-done; err != nil {
		t.Errorf("Shutdown() = %v, want nil", err)
	}
}

func TestPublishProgressUsesClampedPercent(t *testing.T) {
	s := newTestScheduler(t, testConfig(), mock.New(), stages{})

	jobID := s.store.CreateJob("/media/talk.mp4", types.DefaultOptions())
	if err := s.store.Transition(jobID, jobstore.StatePreparing, jobstore.TransitionFields{}); err != nil {
		t.Fatalf("Transition() failed: %v", err)
	}
	if _, err := s.store.SetProgress(jobID, 80, "transcribing"); err != nil {
		t.Fatalf("SetProgress() failed: %v", err)
	}

	sub := s.Subscribe(jobID)
	defer s.Unsubscribe(sub)
	// A chunk completion whose publish lost the race to a later one must not
	// emit a percent below what the store already holds.
	s.publishProgress(jobID, 60, "transcribing", "late chunk completion")

	select {
	case ev := <-sub.C:
		if ev.Percent != 80 {
			t.Errorf("published percent = %d, want the held 80", ev.Percent)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no progress event published")
	}
}

func TestProgressEventsAreMonotone(t *testing.T) {
	be := mock.New()
	s := newTestScheduler(t, testConfig(), be, stages{})

	jobID, err := s.Submit("/media/talk.mp4", types.DefaultOptions())
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	sub := s.Subscribe(jobID)
	defer s.Unsubscribe(sub)
	waitTerminal(t, s, jobID)

	lastPct := -1
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if ev.Type == progress.EventHeartbeat {
				continue
			}
			if ev.Percent < lastPct {
				t.Errorf("progress moved backwards: %d after %d", ev.Percent, lastPct)
			}
			lastPct = ev.Percent
			if ev.Terminal() {
				if ev.Percent != 100 {
					t.Errorf("terminal percent = %d, want 100", ev.Percent)
				}
				return
			}
		case <-timeout:
			// The job may have settled before the subscription was opened;
			// the stream then simply carries no terminal event.
			return
		}
	}
}

func TestProbeKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{media.ErrNotFound, KindNotFound},
		{media.ErrNotAFile, KindNotAFile},
		{media.ErrUnsupportedFormat, KindUnsupportedFormat},
		{errors.New("ffprobe exploded"), KindProbeUnavailable},
	}
	for _, tt := range tests {
		if got := probeKind(tt.err); got != tt.want {
			t.Errorf("probeKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestStageKind(t *testing.T) {
	live := context.Background()
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	expired, cancel2 := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel2()

	tests := []struct {
		name     string
		ctx      context.Context
		err      error
		fallback string
		want     string
	}{
		{"split error", live, audio.ErrSplitFailed, KindPrepareFailed, KindSplitFailed},
		{"typed backend error", live, backend.NewError(backend.KindOutOfMemory, "oom", nil), "x", string(backend.KindOutOfMemory)},
		{"untyped falls back", live, errors.New("boom"), KindPrepareFailed, KindPrepareFailed},
		{"cancelled context wins", cancelled, errors.New("boom"), KindPrepareFailed, KindCancelled},
		{"deadline becomes timeout", expired, errors.New("boom"), KindPrepareFailed, KindTimeout},
		{"cancelled backend error", live, backend.NewError(backend.KindCancelled, "stopped", nil), "x", KindCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stageKind(tt.ctx, tt.err, tt.fallback); got != tt.want {
				t.Errorf("stageKind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TempDir = t.TempDir()
	s := New(cfg, jobstore.New(), progress.NewBus(16), mock.New(), postprocess.NewProcessor(nil), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})

	// base 2s, factor 2: raw delays 2s, 4s, 8s with 0.5x to 1.0x jitter.
	for attempt := 1; attempt <= 3; attempt++ {
		raw := time.Duration(1<<uint(attempt)) * time.Second
		for i := 0; i < 50; i++ {
			d := s.backoffDelay(attempt)
			if d < raw/2 || d > raw {
				t.Fatalf("backoffDelay(%d) = %v, want within [%v, %v]", attempt, d, raw/2, raw)
			}
		}
	}

	// A late attempt is capped at RetryMaxDelay before jitter.
	for i := 0; i < 50; i++ {
		d := s.backoffDelay(10)
		if d > cfg.RetryMaxDelay || d < cfg.RetryMaxDelay/2 {
			t.Fatalf("backoffDelay(10) = %v, want within [%v, %v]", d, cfg.RetryMaxDelay/2, cfg.RetryMaxDelay)
		}
	}
}

func TestActivePathsTracksWorkingDirs(t *testing.T) {
	block := make(chan struct{})
	started := make(chan string, 1)
	s := newTestScheduler(t, testConfig(), mock.New(), stages{
		preparer: &stubPreparer{block: block, started: started},
	})

	jobID, _ := s.Submit("/media/talk.mp4", types.DefaultOptions())
	<-started

	paths := s.ActivePaths()
	if len(paths) != 1 {
		t.Fatalf("ActivePaths() = %v, want the job working dir", paths)
	}
	for p := range paths {
		if want := filepath.Join(s.cfg.TempDir, "jobs", jobID); p != want {
			t.Errorf("active path = %s, want %s", p, want)
		}
	}

	close(block)
	waitTerminal(t, s, jobID)
	deadline := time.Now().Add(2 * time.Second)
	for len(s.ActivePaths()) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("working dir still tracked after the job settled")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
