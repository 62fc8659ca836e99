// Package janitor reclaims what the pipeline leaves behind: terminal job
// records past their retention window and stale temp directories whose jobs
// are no longer active. It runs on a fixed period and every sweep is safe to
// repeat.
package janitor

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/wavescribe/wavescribe/pkg/jobstore"
	"github.com/wavescribe/wavescribe/pkg/logger"
	"github.com/wavescribe/wavescribe/pkg/metrics"
	"github.com/wavescribe/wavescribe/pkg/progress"
)

// PathTracker reports temp paths that belong to jobs currently inside the
// pipeline. The janitor never touches these.
type PathTracker interface {
	ActivePaths() map[string]struct{}
}

// Config tunes the janitor's period and retention windows.
type Config struct {
	// Period is the time between sweeps.
	Period time.Duration `mapstructure:"period"`
	// RecordRetention is how long terminal job records stay queryable.
	RecordRetention time.Duration `mapstructure:"record_retention"`
	// TempRetention is the minimum age of a temp path before it is swept.
	TempRetention time.Duration `mapstructure:"temp_retention"`
	// TempDir is the pipeline's temp root; job directories live under its
	// jobs/ subdirectory.
	TempDir string `mapstructure:"temp_dir"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Period:          time.Hour,
		RecordRetention: 24 * time.Hour,
		TempRetention:   time.Hour,
	}
}

func (c *Config) normalize() {
	def := DefaultConfig()
	if c.Period <= 0 {
		c.Period = def.Period
	}
	if c.RecordRetention <= 0 {
		c.RecordRetention = def.RecordRetention
	}
	if c.TempRetention <= 0 {
		c.TempRetention = def.TempRetention
	}
}

// Janitor owns the periodic sweep.
type Janitor struct {
	cfg     Config
	store   *jobstore.Store
	tracker PathTracker
	bus     *progress.Bus
	metrics *metrics.Metrics
	log     *logger.Logger
}

// New builds a janitor. bus and mets may be nil.
func New(cfg Config, store *jobstore.Store, tracker PathTracker, bus *progress.Bus, mets *metrics.Metrics) *Janitor {
	cfg.normalize()
	return &Janitor{
		cfg:     cfg,
		store:   store,
		tracker: tracker,
		bus:     bus,
		metrics: mets,
		log:     logger.WithComponent("janitor"),
	}
}

// Run sweeps on the configured period until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.Period)
	defer ticker.Stop()
	j.log.Info().
		Dur("period", j.cfg.Period).
		Dur("record_retention", j.cfg.RecordRetention).
		Msg("Janitor started")
	for {
		select {
		case <-ctx.Done():
			j.log.Info().Msg("Janitor stopped")
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Sweep runs one eviction plus temp cleanup cycle.
func (j *Janitor) Sweep() {
	evicted := j.evictRecords(time.Now())
	removed := j.sweepTemp(time.Now())
	j.metrics.JanitorSweep(evicted, removed)

	if j.bus != nil && (evicted > 0 || removed > 0) {
		j.bus.PublishBroadcast(progress.Event{
			Type:    progress.EventHeartbeat,
			Phase:   "janitor",
			Message: "sweep complete",
		})
	}
	if evicted > 0 || removed > 0 {
		j.log.Info().
			Int("records_evicted", evicted).
			Int("temp_removed", removed).
			Msg("Sweep complete")
	}
}

// evictRecords removes terminal job and settled batch records older than the
// retention window.
func (j *Janitor) evictRecords(now time.Time) int {
	cutoff := now.Add(-j.cfg.RecordRetention)
	jobIDs, batchIDs := j.store.TerminalBefore(cutoff)
	evicted := 0
	for _, id := range jobIDs {
		if j.store.Remove(id) {
			evicted++
		}
	}
	for _, id := range batchIDs {
		j.store.RemoveBatch(id)
	}
	return evicted
}

// sweepTemp removes job directories under TempDir/jobs older than
// TempRetention, skipping paths still claimed by active jobs. Siblings of
// the jobs/ subdirectory, such as backend model caches, are never touched.
func (j *Janitor) sweepTemp(now time.Time) int {
	if j.cfg.TempDir == "" {
		return 0
	}
	jobsDir := filepath.Join(j.cfg.TempDir, "jobs")
	entries, err := os.ReadDir(jobsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			j.log.Warn().Err(err).Str("dir", jobsDir).Msg("Temp sweep failed")
		}
		return 0
	}

	var active map[string]struct{}
	if j.tracker != nil {
		active = j.tracker.ActivePaths()
	}

	cutoff := now.Add(-j.cfg.TempRetention)
	removed := 0
	for _, entry := range entries {
		path := filepath.Join(jobsDir, entry.Name())
		if _, inUse := active[path]; inUse {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			j.log.Warn().Err(err).Str("path", path).Msg("Failed to remove stale temp path")
			continue
		}
		removed++
	}
	return removed
}
