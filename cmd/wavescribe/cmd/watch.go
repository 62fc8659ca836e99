package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wavescribe/wavescribe/pkg/logger"
	"github.com/wavescribe/wavescribe/pkg/watcher"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch [directory]",
	Short: "Watch a directory and transcribe new audio/video files",
	Long: `Watch a directory for new or modified audio/video files and submit each
one to the transcription pipeline. Processed files are remembered by content
hash in a local history database, so restarts and renames do not cause
re-transcription.

Examples:
  # Watch current directory
  wavescribe watch .

  # Watch recursively with file movement
  wavescribe watch ./inbox -r --move-to ./processed

  # Write SRT subtitles into a separate directory
  wavescribe watch ./meetings --output-dir ./subs --output-format srt

  # Watch specific file types
  wavescribe watch ./audio --pattern "*.mp3" --pattern "*.m4a"`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringSliceP("pattern", "", []string{"*.mp3", "*.wav", "*.mp4", "*.m4a", "*.mkv", "*.mov"},
		"file patterns to watch (repeatable)")
	watchCmd.Flags().BoolP("recursive", "r", false, "watch subdirectories recursively")
	watchCmd.Flags().Duration("interval", 5*time.Second, "rescan interval for missed files")
	watchCmd.Flags().Duration("stability-wait", 2*time.Second, "time to wait for file stability")
	watchCmd.Flags().Bool("no-existing", false, "skip processing existing files on startup")

	watchCmd.Flags().String("output-dir", "", "directory for transcripts")
	watchCmd.Flags().String("output-format", "json", "transcript format (text, json, srt, vtt)")
	watchCmd.Flags().String("move-to", "", "move processed files to this directory")

	watchCmd.Flags().String("history-db", "", "path to history database")
	watchCmd.Flags().Bool("retry-failed", false, "retry previously failed files")

	_ = viper.BindPFlag("watch.patterns", watchCmd.Flags().Lookup("pattern"))
	_ = viper.BindPFlag("watch.recursive", watchCmd.Flags().Lookup("recursive"))
	_ = viper.BindPFlag("watch.interval", watchCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("watch.stability_wait", watchCmd.Flags().Lookup("stability-wait"))
	_ = viper.BindPFlag("watch.output_dir", watchCmd.Flags().Lookup("output-dir"))
	_ = viper.BindPFlag("watch.output_format", watchCmd.Flags().Lookup("output-format"))
	_ = viper.BindPFlag("watch.move_to_dir", watchCmd.Flags().Lookup("move-to"))
	_ = viper.BindPFlag("watch.history_db", watchCmd.Flags().Lookup("history-db"))
	_ = viper.BindPFlag("watch.retry_failed", watchCmd.Flags().Lookup("retry-failed"))
}

func runWatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("watch")

	watchDir := args[0]
	info, err := os.Stat(watchDir)
	if err != nil {
		return fmt.Errorf("invalid watch directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch path must be a directory")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	p := buildPipeline(cfg)

	janCtx, janCancel := context.WithCancel(context.Background())
	defer janCancel()
	go p.janitor.Run(janCtx)

	noExisting, _ := cmd.Flags().GetBool("no-existing")
	w, err := watcher.New(watcher.Config{
		WatchDir:        watchDir,
		Patterns:        cfg.Watch.Patterns,
		Recursive:       cfg.Watch.Recursive,
		Interval:        cfg.Watch.Interval,
		StabilityWait:   cfg.Watch.StabilityWait,
		MoveToDir:       cfg.Watch.MoveToDir,
		OutputDir:       cfg.Watch.OutputDir,
		OutputFormat:    cfg.Watch.OutputFormat,
		HistoryDB:       cfg.Watch.HistoryDB,
		ProcessExisting: cfg.Watch.ProcessExisting && !noExisting,
		RetryFailed:     cfg.Watch.RetryFailed,
		Options:         cfg.Defaults.Options(cfg.Backend.Model),
	}, p.sched)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	cancel()
	if err := w.Stop(); err != nil {
		log.Warn().Err(err).Msg("Watcher stop reported errors")
	}

	stats := w.Stats()
	log.Info().
		Int("submitted", stats.SubmittedCount).
		Int("completed", stats.CompletedCount).
		Int("failed", stats.FailedCount).
		Int("skipped", stats.SkippedCount).
		Msg("Watch session finished")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	return p.sched.Shutdown(shutdownCtx)
}
