// Package types holds the domain types shared between the pipeline packages:
// transcripts and their segments, per-job options, and the chunk-level result
// produced by a speech backend.
package types

import "time"

// GPUMode is the tri-state GPU hint carried on job options.
type GPUMode string

const (
	GPUOn   GPUMode = "on"
	GPUOff  GPUMode = "off"
	GPUAuto GPUMode = "auto"
)

// Device is the device a job actually ran on after admission.
type Device string

const (
	DeviceGPU Device = "gpu"
	DeviceCPU Device = "cpu"
)

// ChunkingOptions controls how long audio is partitioned before inference.
type ChunkingOptions struct {
	Enabled            bool    `json:"enabled" mapstructure:"enabled"`
	ChunkSeconds       float64 `json:"chunk_seconds" mapstructure:"chunk_seconds"`
	OverlapSeconds     float64 `json:"overlap_seconds" mapstructure:"overlap_seconds"`
	MinDurationSeconds float64 `json:"min_duration_seconds" mapstructure:"min_duration_seconds"`
}

// DefaultChunking returns the chunking parameters used when a submission
// does not override them.
func DefaultChunking() ChunkingOptions {
	return ChunkingOptions{
		Enabled:            true,
		ChunkSeconds:       300,
		OverlapSeconds:     2,
		MinDurationSeconds: 600,
	}
}

// Options are the per-job knobs accepted at submission time.
type Options struct {
	ModelID            string          `json:"model_id"`
	Language           string          `json:"language"` // "auto" or a language tag
	WantWordTimestamps bool            `json:"want_word_timestamps"`
	Temperature        float32         `json:"temperature"` // 0..1, advisory
	UseGPU             GPUMode         `json:"use_gpu"`
	Chunking           ChunkingOptions `json:"chunking"`
}

// DefaultOptions returns submission options with all defaults applied.
func DefaultOptions() Options {
	return Options{
		ModelID:  "whisper-1",
		Language: "auto",
		UseGPU:   GPUAuto,
		Chunking: DefaultChunking(),
	}
}

// Normalize fills zero-valued fields with defaults.
func (o *Options) Normalize() {
	def := DefaultOptions()
	if o.ModelID == "" {
		o.ModelID = def.ModelID
	}
	if o.Language == "" {
		o.Language = def.Language
	}
	if o.UseGPU == "" {
		o.UseGPU = def.UseGPU
	}
	if o.Chunking.ChunkSeconds == 0 && o.Chunking.OverlapSeconds == 0 && o.Chunking.MinDurationSeconds == 0 {
		o.Chunking = def.Chunking
	}
}

// Validate reports whether the options are internally consistent.
func (o Options) Validate() error {
	if o.Temperature < 0 || o.Temperature > 1 {
		return ErrInvalidTemperature
	}
	if o.Chunking.Enabled && o.Chunking.ChunkSeconds <= o.Chunking.OverlapSeconds {
		return ErrInvalidChunking
	}
	if o.Chunking.OverlapSeconds < 0 {
		return ErrInvalidChunking
	}
	switch o.UseGPU {
	case GPUOn, GPUOff, GPUAuto:
	default:
		return ErrInvalidGPUMode
	}
	return nil
}

// AudioDescriptor describes prepared audio: 16 kHz mono PCM on disk.
type AudioDescriptor struct {
	Path            string  `json:"path"`
	DurationSeconds float64 `json:"duration_seconds"`
	SampleRate      int     `json:"sample_rate"`
	Channels        int     `json:"channels"`
}

// AudioChunk is one extracted window of prepared audio. Start/End are
// absolute offsets within the source.
type AudioChunk struct {
	Path         string  `json:"path"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
}

// Duration returns the chunk length in seconds.
func (c AudioChunk) Duration() float64 { return c.EndSeconds - c.StartSeconds }

// Segment is one transcript unit. Offsets are local to the audio the backend
// saw; the merge step rewrites them to absolute source time.
type Segment struct {
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Text         string  `json:"text"`
	Confidence   float64 `json:"confidence"`
}

// ChunkResult is the backend output for a single audio chunk.
type ChunkResult struct {
	Text         string    `json:"text"`
	Language     string    `json:"language"`
	Segments     []Segment `json:"segments"`
	StartSeconds float64   `json:"start_seconds"` // absolute chunk start in source
	EndSeconds   float64   `json:"end_seconds"`   // absolute chunk end in source
}

// Transcript is the merged, postprocessed result of a completed job.
type Transcript struct {
	Text              string    `json:"text"`
	DetectedLanguage  string    `json:"detected_language"`
	Confidence        float64   `json:"confidence"`
	Segments          []Segment `json:"segments"`
	ProcessingSeconds float64   `json:"processing_seconds"`
	ModelID           string    `json:"model_id"`
}

// MediaInfo is the probe result for an input file.
type MediaInfo struct {
	Path            string        `json:"path"`
	Format          string        `json:"format"`
	DurationSeconds float64       `json:"duration_seconds"`
	Duration        time.Duration `json:"-"`
	HasVideo        bool          `json:"has_video"`
	SizeBytes       int64         `json:"size_bytes"`
}
