package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wavescribe/wavescribe/pkg/config"
	"github.com/wavescribe/wavescribe/pkg/logger"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wavescribe",
	Short: "Video and audio transcription pipeline",
	Long: `wavescribe turns video and audio files into timed transcripts through a
staged pipeline: probe, audio preparation, chunked speech recognition, and
overlap-aware merging.

Features:
- Support for common audio/video containers (WAV, MP3, M4A, FLAC, MP4, MKV, ...)
- Loudness normalization and silence trimming before inference
- Overlapping chunking for long recordings with deterministic merging
- Concurrent job scheduling with retries and GPU admission control
- HTTP API with per-job WebSocket progress streams
- Watch folders with persistent processing history
- Multiple output formats (text, JSON, SRT, WebVTT)`,
	Version: "1.0.0",
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.wavescribe.yaml)")
	rootCmd.PersistentFlags().String("api-key", "", "speech backend API key")
	rootCmd.PersistentFlags().String("base-url", "", "speech backend base URL (OpenAI-compatible)")
	rootCmd.PersistentFlags().String("model", "", "speech model to use (e.g. whisper-1)")
	rootCmd.PersistentFlags().String("temp-dir", "", "temporary directory for processing")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().String("log-output", "stderr", "log output (stdout, stderr, file path)")
	rootCmd.PersistentFlags().Bool("log-no-color", false, "disable colored log output")
	rootCmd.PersistentFlags().Bool("log-caller", false, "include caller information in logs")

	// Bind flags to viper
	_ = viper.BindPFlag("backend.api_key", rootCmd.PersistentFlags().Lookup("api-key"))
	_ = viper.BindPFlag("backend.base_url", rootCmd.PersistentFlags().Lookup("base-url"))
	_ = viper.BindPFlag("backend.model", rootCmd.PersistentFlags().Lookup("model"))
	_ = viper.BindPFlag("scheduler.temp_dir", rootCmd.PersistentFlags().Lookup("temp-dir"))

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("logging.output", rootCmd.PersistentFlags().Lookup("log-output"))
	_ = viper.BindPFlag("logging.caller", rootCmd.PersistentFlags().Lookup("log-caller"))
	_ = viper.BindPFlag("logging.no_color", rootCmd.PersistentFlags().Lookup("log-no-color"))

	viper.SetEnvPrefix("WAVESCRIBE")
	viper.AutomaticEnv()
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".wavescribe")
	}

	configFileUsed := ""
	if err := viper.ReadInConfig(); err == nil {
		configFileUsed = viper.ConfigFileUsed()
	}

	initLogger()

	if configFileUsed != "" {
		logger.Info().Str("config_file", configFileUsed).Msg("Loaded configuration file")
	}
}

// initLogger initializes the logger based on configuration
func initLogger() {
	cfg := config.DefaultConfig()

	cfg.Logging.Level = viper.GetString("logging.level")
	cfg.Logging.Format = viper.GetString("logging.format")
	cfg.Logging.Output = viper.GetString("logging.output")
	cfg.Logging.Caller = viper.GetBool("logging.caller")
	cfg.Logging.NoColor = viper.GetBool("logging.no_color")

	if err := logger.Initialize(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the full configuration with flag overrides applied.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoader(cfgFile)
	overrides := config.GetFromEnv()
	for _, key := range []string{
		"backend.api_key", "backend.base_url", "backend.model", "scheduler.temp_dir",
	} {
		if viper.IsSet(key) && viper.GetString(key) != "" {
			overrides[key] = viper.GetString(key)
		}
	}
	return loader.LoadWithOverrides(overrides)
}
