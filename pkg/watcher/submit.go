package watcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/wavescribe/wavescribe/pkg/format"
	"github.com/wavescribe/wavescribe/pkg/jobstore"
)

// processFile takes one detected file end to end: stability check, history
// lookup, job submission, waiting for the terminal event, transcript write,
// and optional move of the input.
func (w *Watcher) processFile(ctx context.Context, path string) error {
	log := w.log.WithField("file", path)

	if !w.stable(path) {
		// Still being written; the rescan will pick it up again.
		return nil
	}

	hash, err := fileHash(path)
	if err != nil {
		return fmt.Errorf("failed to hash file: %w", err)
	}

	skip, err := w.shouldSkip(hash)
	if err != nil {
		log.Warn().Err(err).Msg("History lookup failed")
	}
	if skip {
		w.bumpStat(func(s *Stats) { s.SkippedCount++ })
		log.Debug().Msg("File already handled, skipping")
		return nil
	}

	w.mu.Lock()
	if _, busy := w.inFlight[path]; busy {
		w.mu.Unlock()
		return nil
	}
	w.inFlight[path] = struct{}{}
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.inFlight, path)
		w.mu.Unlock()
	}()

	jobID, err := w.submitter.Submit(path, w.cfg.Options)
	if err != nil {
		return fmt.Errorf("failed to submit job: %w", err)
	}
	w.bumpStat(func(s *Stats) { s.SubmittedCount++ })
	log.Info().Str("job_id", jobID).Msg("Submitted watched file")

	job, err := w.awaitJob(ctx, jobID)
	if err != nil {
		return err
	}

	info, _ := os.Stat(path)
	var size int64
	if info != nil {
		size = info.Size()
	}

	if job.State != jobstore.StateCompleted {
		w.bumpStat(func(s *Stats) { s.FailedCount++ })
		if histErr := w.history.RecordFailed(&FailedInfo{
			Hash:      hash,
			Path:      path,
			JobID:     jobID,
			FailedAt:  time.Now(),
			ErrorKind: job.ErrorKind,
			Error:     job.ErrorMsg,
		}); histErr != nil {
			log.Warn().Err(histErr).Msg("Failed to record failure in history")
		}
		return fmt.Errorf("job %s ended %s: %s", jobID, job.State, job.ErrorMsg)
	}

	outputPath, err := w.writeTranscript(path, job)
	if err != nil {
		return err
	}

	if err := w.history.RecordProcessed(&ProcessedInfo{
		Hash:            hash,
		Path:            path,
		JobID:           jobID,
		ProcessedAt:     time.Now(),
		OutputPath:      outputPath,
		DurationSeconds: job.Transcript.ProcessingSeconds,
		SizeBytes:       size,
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to record success in history")
	}

	if w.cfg.MoveToDir != "" {
		if err := w.moveFile(path); err != nil {
			log.Warn().Err(err).Msg("Failed to move processed file")
		}
	}

	w.bumpStat(func(s *Stats) { s.CompletedCount++ })
	log.Info().Str("output", outputPath).Msg("Watched file transcribed")
	return nil
}

// shouldSkip consults the history: processed files are always skipped,
// failed files only when retries are disabled.
func (w *Watcher) shouldSkip(hash string) (bool, error) {
	processed, err := w.history.IsProcessed(hash)
	if err != nil || processed {
		return processed, err
	}
	if w.cfg.RetryFailed {
		return false, nil
	}
	failed, err := w.history.FailedInfoFor(hash)
	if err != nil {
		return false, err
	}
	return failed != nil, nil
}

// awaitJob blocks until the job reaches a terminal state, following the
// progress stream rather than polling.
func (w *Watcher) awaitJob(ctx context.Context, jobID string) (*jobstore.Job, error) {
	sub := w.submitter.Subscribe(jobID)
	defer w.submitter.Unsubscribe(sub)

	// The job may have settled between Submit and Subscribe.
	job, err := w.submitter.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	if job.State.Terminal() {
		return job, nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-w.stopCh:
			return nil, errors.New("watcher stopped")
		case _, ok := <-sub.C:
			if ok {
				continue
			}
			return w.submitter.GetJob(jobID)
		}
	}
}

// writeTranscript renders the job's transcript in the configured format
// next to the input or into the output directory.
func (w *Watcher) writeTranscript(inputPath string, job *jobstore.Job) (string, error) {
	f, err := format.Parse(w.cfg.OutputFormat)
	if err != nil {
		return "", err
	}
	rendered, err := format.Render(job.Transcript, f)
	if err != nil {
		return "", err
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	dir := w.cfg.OutputDir
	if dir == "" {
		dir = filepath.Dir(inputPath)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(dir, base+"."+f.Extension())
	if err := os.WriteFile(outputPath, []byte(rendered), 0o644); err != nil {
		return "", fmt.Errorf("failed to write transcript: %w", err)
	}
	return outputPath, nil
}

// stable reports whether the file's size and mtime hold still across the
// stability window.
func (w *Watcher) stable(path string) bool {
	before, err := os.Stat(path)
	if err != nil {
		return false
	}
	time.Sleep(w.cfg.StabilityWait)
	after, err := os.Stat(path)
	if err != nil {
		return false
	}
	return before.Size() == after.Size() && before.ModTime().Equal(after.ModTime())
}

// moveFile relocates a processed input, falling back to copy-then-delete
// across filesystems.
func (w *Watcher) moveFile(path string) error {
	if err := os.MkdirAll(w.cfg.MoveToDir, 0o755); err != nil {
		return fmt.Errorf("failed to create move-to directory: %w", err)
	}

	destPath := filepath.Join(w.cfg.MoveToDir, filepath.Base(path))
	if _, err := os.Stat(destPath); err == nil {
		ext := filepath.Ext(path)
		name := strings.TrimSuffix(filepath.Base(path), ext)
		stamp := time.Now().Format("20060102_150405")
		destPath = filepath.Join(w.cfg.MoveToDir, fmt.Sprintf("%s_%s%s", name, stamp, ext))
	}

	err := os.Rename(path, destPath)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		if errno, ok := linkErr.Err.(syscall.Errno); ok && errno == syscall.EXDEV {
			return copyThenDelete(path, destPath)
		}
	}
	return fmt.Errorf("failed to move file: %w", err)
}

func copyThenDelete(srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer func() { _ = src.Close() }()

	dest, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer func() { _ = dest.Close() }()

	if _, err := io.Copy(dest, src); err != nil {
		_ = os.Remove(destPath)
		return fmt.Errorf("failed to copy file contents: %w", err)
	}
	if err := dest.Sync(); err != nil {
		_ = os.Remove(destPath)
		return fmt.Errorf("failed to sync destination file: %w", err)
	}
	if info, err := src.Stat(); err == nil {
		_ = dest.Chmod(info.Mode())
	}

	_ = dest.Close()
	_ = src.Close()
	if err := os.Remove(srcPath); err != nil {
		return fmt.Errorf("failed to delete original after copy: %w", err)
	}
	return nil
}

// fileHash hashes the first megabyte plus the file size. Enough to identify
// a file without reading gigabytes of video.
func fileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()

	hash := sha256.New()
	if _, err := io.CopyN(hash, file, 1024*1024); err != nil && err != io.EOF {
		return "", err
	}
	info, err := file.Stat()
	if err != nil {
		return "", err
	}
	_, _ = fmt.Fprintf(hash, ":%d", info.Size())
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}

func (w *Watcher) bumpStat(fn func(*Stats)) {
	w.mu.Lock()
	fn(&w.stats)
	w.mu.Unlock()
}
