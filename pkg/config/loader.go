package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading and management
type Loader struct {
	configPath string
	viper      *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader(configPath string) *Loader {
	v := viper.New()

	// Set up environment variable handling
	v.SetEnvPrefix("WAVESCRIBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set up configuration file search paths
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Search in multiple locations
		home, _ := os.UserHomeDir()
		v.AddConfigPath(home)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/wavescribe")
		v.SetConfigName(".wavescribe")
		v.SetConfigType("yaml")
	}

	return &Loader{
		configPath: configPath,
		viper:      v,
	}
}

// Load reads and returns the configuration
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	// Config file not found is not an error, defaults and env vars apply
	if err := l.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := l.viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadWithOverrides loads configuration with command-line overrides
func (l *Loader) LoadWithOverrides(overrides map[string]interface{}) (*Config, error) {
	cfg, err := l.Load()
	if err != nil {
		return nil, err
	}

	for key, value := range overrides {
		l.viper.Set(key, value)
	}

	if err := l.viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config with overrides: %w", err)
	}

	return cfg, nil
}

// Save writes the current configuration to file
func (l *Loader) Save(cfg *Config) error {
	configFile := l.configPath
	if configFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		configFile = filepath.Join(home, ".wavescribe.yaml")
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	l.viper.Set("backend", cfg.Backend)
	l.viper.Set("defaults", cfg.Defaults)
	l.viper.Set("scheduler", cfg.Scheduler)
	l.viper.Set("janitor", cfg.Janitor)
	l.viper.Set("server", cfg.Server)
	l.viper.Set("watch", cfg.Watch)
	l.viper.Set("punctuation", cfg.Punctuation)
	l.viper.Set("logging", cfg.Logging)

	if err := l.viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigFile returns the path to the config file being used
func (l *Loader) GetConfigFile() string {
	return l.viper.ConfigFileUsed()
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	// Backend defaults
	l.viper.SetDefault("backend.model", "whisper-1")
	l.viper.SetDefault("backend.timeout", "300s")

	// Job option defaults
	l.viper.SetDefault("defaults.language", "auto")
	l.viper.SetDefault("defaults.use_gpu", "auto")
	l.viper.SetDefault("defaults.temperature", 0.0)
	l.viper.SetDefault("defaults.chunking.enabled", true)
	l.viper.SetDefault("defaults.chunking.chunk_seconds", 300)
	l.viper.SetDefault("defaults.chunking.overlap_seconds", 2)
	l.viper.SetDefault("defaults.chunking.min_duration_seconds", 600)

	// Scheduler defaults
	l.viper.SetDefault("scheduler.max_concurrent_jobs", 3)
	l.viper.SetDefault("scheduler.max_concurrent_chunks", 1)
	l.viper.SetDefault("scheduler.job_timeout", "1h")
	l.viper.SetDefault("scheduler.gpu_long_input_seconds", 600)
	l.viper.SetDefault("scheduler.max_chunk_retries", 2)
	l.viper.SetDefault("scheduler.retry_base_delay", "2s")
	l.viper.SetDefault("scheduler.retry_factor", 2.0)
	l.viper.SetDefault("scheduler.retry_max_delay", "30s")
	l.viper.SetDefault("scheduler.temp_dir", filepath.Join(os.TempDir(), "wavescribe"))

	// Janitor defaults
	l.viper.SetDefault("janitor.period", "1h")
	l.viper.SetDefault("janitor.record_retention", "24h")
	l.viper.SetDefault("janitor.temp_retention", "1h")

	// Server defaults
	l.viper.SetDefault("server.host", "0.0.0.0")
	l.viper.SetDefault("server.port", 8585)
	l.viper.SetDefault("server.stream_idle_timeout", "300s")
}

// validateConfig validates the loaded configuration
func (l *Loader) validateConfig(cfg *Config) error {
	if cfg.Backend.Model == "" {
		return fmt.Errorf("backend model is required")
	}

	// The mock backend needs no key; everything else does.
	if cfg.Backend.Model != "mock" && cfg.Backend.APIKey == "" && os.Getenv("WAVESCRIBE_API_KEY") == "" {
		return fmt.Errorf("API key is required (set in config file or WAVESCRIBE_API_KEY environment variable)")
	}

	if cfg.Scheduler.MaxConcurrentJobs < 0 {
		return fmt.Errorf("max_concurrent_jobs cannot be negative")
	}
	if cfg.Scheduler.MaxConcurrentChunks < 0 {
		return fmt.Errorf("max_concurrent_chunks cannot be negative")
	}

	if opts := cfg.Defaults.Options(cfg.Backend.Model); opts.Validate() != nil {
		return fmt.Errorf("invalid default job options: %w", opts.Validate())
	}

	return nil
}

// GetFromEnv gets configuration values from environment variables
func GetFromEnv() map[string]interface{} {
	overrides := make(map[string]interface{})

	if apiKey := os.Getenv("WAVESCRIBE_API_KEY"); apiKey != "" {
		overrides["backend.api_key"] = apiKey
	}

	if baseURL := os.Getenv("WAVESCRIBE_BASE_URL"); baseURL != "" {
		overrides["backend.base_url"] = baseURL
	}

	if tempDir := os.Getenv("WAVESCRIBE_TEMP_DIR"); tempDir != "" {
		overrides["scheduler.temp_dir"] = tempDir
	}

	return overrides
}
