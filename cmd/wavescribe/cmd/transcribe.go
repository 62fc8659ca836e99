package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wavescribe/wavescribe/pkg/format"
	"github.com/wavescribe/wavescribe/pkg/jobstore"
	"github.com/wavescribe/wavescribe/pkg/logger"
	"github.com/wavescribe/wavescribe/pkg/progress"
	"github.com/wavescribe/wavescribe/pkg/types"
)

// transcribeCmd represents the transcribe command
var transcribeCmd = &cobra.Command{
	Use:   "transcribe [files...]",
	Short: "Transcribe one or more audio/video files",
	Long: `Transcribe audio or video files into timed transcripts.

Multiple files are processed as a batch through the same pipeline the
service uses: probing, audio preparation, chunked recognition and merging.

Examples:
  # Transcribe a single file to stdout
  wavescribe transcribe meeting.mp4

  # Write SRT subtitles next to the inputs
  wavescribe transcribe -f srt -d ./subs lecture1.mp4 lecture2.mp4

  # Force a language and disable chunking
  wavescribe transcribe --language zh --no-chunking interview.wav`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTranscribe,
}

func init() {
	rootCmd.AddCommand(transcribeCmd)

	transcribeCmd.Flags().StringP("format", "f", "text", "output format (text, json, srt, vtt)")
	transcribeCmd.Flags().StringP("output-dir", "d", "", "write transcripts into this directory instead of stdout")
	transcribeCmd.Flags().String("language", "auto", "source language or auto")
	transcribeCmd.Flags().Float32("temperature", 0, "sampling temperature (0.0-1.0)")
	transcribeCmd.Flags().String("use-gpu", "auto", "GPU mode (on, off, auto)")
	transcribeCmd.Flags().Bool("word-timestamps", false, "request word-level timestamps")
	transcribeCmd.Flags().Bool("no-chunking", false, "disable chunking of long inputs")
	transcribeCmd.Flags().Float64("chunk-seconds", 300, "chunk window length in seconds")
	transcribeCmd.Flags().Float64("overlap-seconds", 2, "chunk overlap in seconds")
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("transcribe")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	outFormat, err := format.Parse(mustString(cmd, "format"))
	if err != nil {
		return err
	}
	outputDir := mustString(cmd, "output-dir")

	opts := cfg.Defaults.Options(cfg.Backend.Model)
	opts.Language = mustString(cmd, "language")
	opts.Temperature, _ = cmd.Flags().GetFloat32("temperature")
	opts.UseGPU = types.GPUMode(mustString(cmd, "use-gpu"))
	opts.WantWordTimestamps, _ = cmd.Flags().GetBool("word-timestamps")
	if noChunk, _ := cmd.Flags().GetBool("no-chunking"); noChunk {
		opts.Chunking.Enabled = false
	}
	opts.Chunking.ChunkSeconds, _ = cmd.Flags().GetFloat64("chunk-seconds")
	opts.Chunking.OverlapSeconds, _ = cmd.Flags().GetFloat64("overlap-seconds")

	p := buildPipeline(cfg)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.sched.Shutdown(ctx)
	}()

	batchID, jobIDs, err := p.sched.SubmitBatch(args, opts)
	if err != nil {
		return err
	}
	log.Info().Str("batch_id", batchID).Int("files", len(args)).Msg("Batch submitted")

	failures := 0
	for i, jobID := range jobIDs {
		job, err := awaitJob(cmd.Context(), p.sched, jobID)
		if err != nil {
			return err
		}
		if job.State != jobstore.StateCompleted {
			failures++
			log.Error().
				Str("file", args[i]).
				Str("kind", job.ErrorKind).
				Str("error", job.ErrorMsg).
				Msg("Transcription failed")
			continue
		}
		if err := emitTranscript(args[i], job, outFormat, outputDir); err != nil {
			return err
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d files failed", failures, len(args))
	}
	return nil
}

// awaitJob follows the job's progress stream until it settles.
func awaitJob(ctx context.Context, sub interface {
	Subscribe(jobID string) *progress.Subscription
	Unsubscribe(s *progress.Subscription)
	GetJob(jobID string) (*jobstore.Job, error)
}, jobID string) (*jobstore.Job, error) {
	stream := sub.Subscribe(jobID)
	defer sub.Unsubscribe(stream)

	job, err := sub.GetJob(jobID)
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
		case ev, ok := <-stream.C:
			if !ok {
				return sub.GetJob(jobID)
			}
			if ev.Type == progress.EventProgress {
				logger.WithComponent("transcribe").Debug().
					Str("job_id", jobID).
					Int("percent", ev.Percent).
					Str("phase", ev.Phase).
					Msg("Progress")
			}
		}
	}
}

// emitTranscript writes one rendered transcript to stdout or the output dir.
func emitTranscript(inputPath string, job *jobstore.Job, f format.Format, outputDir string) error {
	rendered, err := format.Render(job.Transcript, f)
	if err != nil {
		return err
	}
	if outputDir == "" {
		fmt.Print(rendered)
		return nil
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outPath := filepath.Join(outputDir, base+"."+f.Extension())
	if err := os.WriteFile(outPath, []byte(rendered), 0o644); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	logger.WithComponent("transcribe").Info().Str("output", outPath).Msg("Transcript written")
	return nil
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}
