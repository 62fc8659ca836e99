// Package config holds the application configuration tree and its loader.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/wavescribe/wavescribe/pkg/janitor"
	"github.com/wavescribe/wavescribe/pkg/logger"
	"github.com/wavescribe/wavescribe/pkg/scheduler"
	"github.com/wavescribe/wavescribe/pkg/server"
	"github.com/wavescribe/wavescribe/pkg/types"
)

// Config represents the application configuration
type Config struct {
	// Speech Backend Configuration
	Backend BackendConfig `yaml:"backend" mapstructure:"backend"`

	// Default Job Options
	Defaults DefaultsConfig `yaml:"defaults" mapstructure:"defaults"`

	// Scheduler Configuration
	Scheduler scheduler.Config `yaml:"scheduler" mapstructure:"scheduler"`

	// Janitor Configuration
	Janitor janitor.Config `yaml:"janitor" mapstructure:"janitor"`

	// HTTP Server Configuration
	Server server.Config `yaml:"server" mapstructure:"server"`

	// Watch Configuration
	Watch WatchConfig `yaml:"watch" mapstructure:"watch"`

	// Punctuation Restoration Configuration
	Punctuation PunctuationConfig `yaml:"punctuation" mapstructure:"punctuation"`

	// Logging Configuration
	Logging logger.Config `yaml:"logging" mapstructure:"logging"`
}

// BackendConfig contains speech backend settings
type BackendConfig struct {
	// API Configuration
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Model Configuration
	Model string `yaml:"model" mapstructure:"model"`

	// Request Configuration
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// DefaultsConfig contains the job options applied when a submission leaves
// them unset
type DefaultsConfig struct {
	Language       string                `yaml:"language" mapstructure:"language"`
	UseGPU         string                `yaml:"use_gpu" mapstructure:"use_gpu"`
	Temperature    float32               `yaml:"temperature" mapstructure:"temperature"`
	WordTimestamps bool                  `yaml:"word_timestamps" mapstructure:"word_timestamps"`
	Chunking       types.ChunkingOptions `yaml:"chunking" mapstructure:"chunking"`
}

// Options converts the configured defaults into job options.
func (d DefaultsConfig) Options(model string) types.Options {
	opts := types.Options{
		ModelID:            model,
		Language:           d.Language,
		UseGPU:             types.GPUMode(d.UseGPU),
		Temperature:        d.Temperature,
		WantWordTimestamps: d.WordTimestamps,
		Chunking:           d.Chunking,
	}
	opts.Normalize()
	return opts
}

// PunctuationConfig contains punctuation restoration settings
type PunctuationConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// WatchConfig contains watch mode settings
type WatchConfig struct {
	// File patterns to watch (e.g., "*.mp3", "*.wav")
	Patterns []string `yaml:"patterns" mapstructure:"patterns"`

	// Whether to watch subdirectories recursively
	Recursive bool `yaml:"recursive" mapstructure:"recursive"`

	// Polling interval for checking new files
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`

	// Time to wait for file stability before processing
	StabilityWait time.Duration `yaml:"stability_wait" mapstructure:"stability_wait"`

	// Directory to move processed files to (optional)
	MoveToDir string `yaml:"move_to_dir" mapstructure:"move_to_dir"`

	// Directory to write transcripts to
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`

	// Transcript output format (text, json, srt, vtt)
	OutputFormat string `yaml:"output_format" mapstructure:"output_format"`

	// Path to the BoltDB history database
	HistoryDB string `yaml:"history_db" mapstructure:"history_db"`

	// Whether to process existing files on startup
	ProcessExisting bool `yaml:"process_existing" mapstructure:"process_existing"`

	// Whether to retry failed files
	RetryFailed bool `yaml:"retry_failed" mapstructure:"retry_failed"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Model:   "whisper-1",
			Timeout: 300 * time.Second,
		},
		Defaults: DefaultsConfig{
			Language: "auto",
			UseGPU:   string(types.GPUAuto),
			Chunking: types.DefaultChunking(),
		},
		Scheduler: func() scheduler.Config {
			c := scheduler.DefaultConfig()
			c.TempDir = filepath.Join(os.TempDir(), "wavescribe")
			return c
		}(),
		Janitor: janitor.DefaultConfig(),
		Server:  server.DefaultConfig(),
		Watch: WatchConfig{
			Patterns:        []string{"*.mp3", "*.wav", "*.mp4", "*.m4a", "*.mkv", "*.mov"},
			Recursive:       false,
			Interval:        5 * time.Second,
			StabilityWait:   2 * time.Second,
			OutputFormat:    "json",
			HistoryDB:       ".wavescribe-watch.db",
			ProcessExisting: true,
			RetryFailed:     false,
		},
		Logging: *logger.DefaultConfig(),
	}
}
