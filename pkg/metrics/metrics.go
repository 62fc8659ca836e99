// Package metrics exposes Prometheus instrumentation for the pipeline.
// A nil *Metrics is valid everywhere and records nothing, so callers never
// guard their instrumentation sites.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the pipeline's Prometheus collectors.
type Metrics struct {
	jobsSubmitted  prometheus.Counter
	jobsFinished   *prometheus.CounterVec
	chunksDone     prometheus.Counter
	chunkRetries   prometheus.Counter
	queueDepth     prometheus.Gauge
	activeJobs     prometheus.Gauge
	jobSeconds     prometheus.Histogram
	janitorSweeps  prometheus.Counter
	recordsEvicted prometheus.Counter
	tempRemoved    prometheus.Counter
	eventsDropped  prometheus.Counter
}

// New builds the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wavescribe_jobs_submitted_total",
			Help: "Jobs accepted for processing.",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wavescribe_jobs_finished_total",
			Help: "Jobs that reached a terminal state, by state.",
		}, []string{"state"}),
		chunksDone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wavescribe_chunks_transcribed_total",
			Help: "Audio chunks transcribed successfully.",
		}),
		chunkRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wavescribe_chunk_retries_total",
			Help: "Chunk transcription attempts retried after a retryable failure.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wavescribe_queue_depth",
			Help: "Jobs waiting for a worker slot.",
		}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wavescribe_active_jobs",
			Help: "Jobs currently inside the pipeline.",
		}),
		jobSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wavescribe_job_processing_seconds",
			Help:    "Wall time from pipeline start to completion.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		janitorSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wavescribe_janitor_sweeps_total",
			Help: "Janitor sweep cycles completed.",
		}),
		recordsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wavescribe_janitor_records_evicted_total",
			Help: "Terminal job records removed by retention.",
		}),
		tempRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wavescribe_janitor_temp_files_removed_total",
			Help: "Stale temp paths removed by the janitor.",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wavescribe_progress_events_dropped_total",
			Help: "Progress events dropped because a subscriber fell behind.",
		}),
	}
	reg.MustRegister(
		m.jobsSubmitted, m.jobsFinished, m.chunksDone, m.chunkRetries,
		m.queueDepth, m.activeJobs, m.jobSeconds,
		m.janitorSweeps, m.recordsEvicted, m.tempRemoved, m.eventsDropped,
	)
	return m
}

func (m *Metrics) JobSubmitted() {
	if m != nil {
		m.jobsSubmitted.Inc()
	}
}

func (m *Metrics) JobFinished(state string, seconds float64) {
	if m != nil {
		m.jobsFinished.WithLabelValues(state).Inc()
		if seconds > 0 {
			m.jobSeconds.Observe(seconds)
		}
	}
}

func (m *Metrics) ChunkTranscribed() {
	if m != nil {
		m.chunksDone.Inc()
	}
}

func (m *Metrics) ChunkRetried() {
	if m != nil {
		m.chunkRetries.Inc()
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.queueDepth.Set(float64(n))
	}
}

func (m *Metrics) SetActiveJobs(n int) {
	if m != nil {
		m.activeJobs.Set(float64(n))
	}
}

func (m *Metrics) JanitorSweep(evicted, tempRemoved int) {
	if m != nil {
		m.janitorSweeps.Inc()
		m.recordsEvicted.Add(float64(evicted))
		m.tempRemoved.Add(float64(tempRemoved))
	}
}

func (m *Metrics) EventsDropped(n uint64) {
	if m != nil && n > 0 {
		m.eventsDropped.Add(float64(n))
	}
}
