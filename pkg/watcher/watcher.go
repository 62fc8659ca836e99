// Package watcher feeds a watch folder into the pipeline. New media files
// are detected with fsnotify (plus a periodic rescan for events the kernel
// missed), deduplicated against a BoltDB history by content hash, submitted
// as jobs, and their transcripts written next to the input or into a
// configured output directory.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wavescribe/wavescribe/pkg/jobstore"
	"github.com/wavescribe/wavescribe/pkg/logger"
	"github.com/wavescribe/wavescribe/pkg/progress"
	"github.com/wavescribe/wavescribe/pkg/types"
)

// Submitter is the scheduler surface the watcher drives.
type Submitter interface {
	Submit(inputPath string, opts types.Options) (string, error)
	GetJob(jobID string) (*jobstore.Job, error)
	Subscribe(jobID string) *progress.Subscription
	Unsubscribe(sub *progress.Subscription)
}

// Config controls the watch folder behaviour.
type Config struct {
	// WatchDir is the directory to watch. Required.
	WatchDir string

	// Patterns are filename globs to accept (e.g. "*.mp3").
	Patterns []string

	// Recursive watches subdirectories too.
	Recursive bool

	// Interval is the periodic rescan cadence.
	Interval time.Duration

	// StabilityWait is how long a file's size must hold still before it is
	// considered fully written.
	StabilityWait time.Duration

	// MoveToDir receives inputs after successful transcription. Optional.
	MoveToDir string

	// OutputDir receives transcripts; defaults to the input's directory.
	OutputDir string

	// OutputFormat names the transcript format (text, json, srt, vtt).
	OutputFormat string

	// HistoryDB is the BoltDB path for the processed-file history.
	HistoryDB string

	// ProcessExisting submits files already present at startup.
	ProcessExisting bool

	// RetryFailed resubmits files whose previous job failed.
	RetryFailed bool

	// Options are the job options applied to every submission.
	Options types.Options
}

// Stats is a point-in-time summary of watcher activity.
type Stats struct {
	StartTime      time.Time `json:"start_time"`
	SubmittedCount int       `json:"submitted"`
	CompletedCount int       `json:"completed"`
	FailedCount    int       `json:"failed"`
	SkippedCount   int       `json:"skipped"`
	InFlight       int       `json:"in_flight"`
}

// Watcher watches one directory and turns its files into jobs.
type Watcher struct {
	cfg       Config
	submitter Submitter
	history   *History
	fsw       *fsnotify.Watcher
	log       *logger.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
	recent   map[string]time.Time
	stats    Stats

	queue  chan string
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a watcher. Call Start to begin watching.
func New(cfg Config, submitter Submitter) (*Watcher, error) {
	if cfg.WatchDir == "" {
		return nil, fmt.Errorf("watch directory is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.StabilityWait <= 0 {
		cfg.StabilityWait = 2 * time.Second
	}
	if cfg.HistoryDB == "" {
		cfg.HistoryDB = filepath.Join(cfg.WatchDir, ".wavescribe-watch.db")
	}

	history, err := OpenHistory(cfg.HistoryDB)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		_ = history.Close()
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		cfg:       cfg,
		submitter: submitter,
		history:   history,
		fsw:       fsw,
		log:       logger.WithComponent("watcher"),
		inFlight:  make(map[string]struct{}),
		recent:    make(map[string]time.Time),
		queue:     make(chan string, 64),
		stopCh:    make(chan struct{}),
		stats:     Stats{StartTime: time.Now()},
	}, nil
}

// Start begins watching. It returns once the watch loop is running.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addWatchDir(w.cfg.WatchDir); err != nil {
		return fmt.Errorf("failed to add watch directory: %w", err)
	}

	w.wg.Add(1)
	go w.submitLoop(ctx)

	if w.cfg.ProcessExisting {
		w.log.Info().Msg("Scanning existing files")
		w.scan()
	}

	w.wg.Add(1)
	go w.watchLoop(ctx)

	w.log.Info().
		Str("directory", w.cfg.WatchDir).
		Bool("recursive", w.cfg.Recursive).
		Strs("patterns", w.cfg.Patterns).
		Msg("File watcher started")
	return nil
}

// Stop shuts the watcher down and waits for in-flight submissions to settle.
func (w *Watcher) Stop() error {
	w.log.Info().Msg("Stopping file watcher")
	close(w.stopCh)
	if err := w.fsw.Close(); err != nil {
		w.log.Warn().Err(err).Msg("Error closing fsnotify watcher")
	}
	w.wg.Wait()
	if err := w.history.Close(); err != nil {
		w.log.Warn().Err(err).Msg("Error closing history database")
	}
	return nil
}

// Stats returns a copy of the current counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.InFlight = len(w.inFlight)
	return s
}

func (w *Watcher) addWatchDir(dir string) error {
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	if !w.cfg.Recursive {
		return nil
	}
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && path != dir {
			return w.fsw.Add(path)
		}
		return nil
	})
}

// watchLoop reacts to fsnotify events and rescans on the interval.
func (w *Watcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("Watcher error")
		case <-ticker.C:
			w.scan()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if w.cfg.Recursive && event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.fsw.Add(event.Name)
			return
		}
	}
	if w.debounced(event.Name) {
		return
	}
	if w.matches(event.Name) {
		w.enqueue(event.Name)
	}
}

// scan walks the watch directory to catch files fsnotify missed.
func (w *Watcher) scan() {
	_ = filepath.Walk(w.cfg.WatchDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if !w.cfg.Recursive && path != w.cfg.WatchDir {
				return filepath.SkipDir
			}
			return nil
		}
		if w.matches(path) {
			w.enqueue(path)
		}
		return nil
	})
}

func (w *Watcher) matches(path string) bool {
	name := filepath.Base(path)
	for _, pattern := range w.cfg.Patterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// debounced reports whether this path fired an event within the last few
// seconds, recording the current one.
func (w *Watcher) debounced(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	if last, ok := w.recent[path]; ok && now.Sub(last) < 5*time.Second {
		return true
	}
	w.recent[path] = now
	for p, t := range w.recent {
		if now.Sub(t) > time.Minute {
			delete(w.recent, p)
		}
	}
	return false
}

func (w *Watcher) enqueue(path string) {
	w.mu.Lock()
	_, busy := w.inFlight[path]
	w.mu.Unlock()
	if busy {
		return
	}
	select {
	case w.queue <- path:
	default:
		w.log.Warn().Str("file", path).Msg("Submission queue full, skipping file")
	}
}

// submitLoop drains the queue one file at a time. Concurrency lives in the
// scheduler, not here.
func (w *Watcher) submitLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case path := <-w.queue:
			if err := w.processFile(ctx, path); err != nil {
				w.log.Error().Err(err).Str("file", path).Msg("Failed to process file")
			}
		}
	}
}
