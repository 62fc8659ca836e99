// Package audio turns probed input files into backend-ready audio: the
// preparer decodes to 16 kHz mono PCM with loudness normalization and
// silence trimming, and the chunker partitions long audio into overlapping
// windows and merges the per-chunk transcripts back together.
package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/wavescribe/wavescribe/pkg/logger"
	"github.com/wavescribe/wavescribe/pkg/types"
)

// Loudness and trimming targets for prepared audio.
const (
	preparedSampleRate = 16000
	targetDBFS         = -20.0
	silenceThreshDBFS  = -40.0
	minSilenceSeconds  = 1.0
	keepSilenceSeconds = 0.5
)

// ProgressSink receives coarse preparation milestones. Fraction is in [0,1].
type ProgressSink func(fraction float64, message string)

// Preparer decodes and optimizes input media for transcription.
type Preparer struct {
	log *logger.Logger
}

// NewPreparer returns a Preparer.
func NewPreparer() *Preparer {
	return &Preparer{log: logger.WithComponent("audio-preparer")}
}

// Prepare decodes the input into 16 kHz mono PCM under tempDir, then applies
// loudness normalization and leading/trailing silence trimming. When the
// optimization pass fails the plain decode is kept and a warning is logged;
// normalization alone never fails a job. The caller owns the produced file.
func (p *Preparer) Prepare(ctx context.Context, inputPath, tempDir string, sink ProgressSink) (*types.AudioDescriptor, error) {
	log := p.log.WithField("file", filepath.Base(inputPath))

	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	emit(sink, 0, "decoding audio")

	rawPath := filepath.Join(tempDir, "decoded.wav")
	if err := p.decode(ctx, inputPath, rawPath); err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}

	emit(sink, 0.6, "decode complete")

	preparedPath := filepath.Join(tempDir, "prepared.wav")
	if err := p.optimize(ctx, rawPath, preparedPath); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Msg("Audio optimization failed, keeping plain decode")
		preparedPath = rawPath
	} else {
		_ = os.Remove(rawPath)
	}

	emit(sink, 0.9, "normalization complete")

	duration, err := probeDuration(preparedPath)
	if err != nil {
		return nil, fmt.Errorf("probe prepared audio: %w", err)
	}

	emit(sink, 1, "audio ready")
	log.Debug().
		Float64("duration_seconds", duration).
		Str("prepared", filepath.Base(preparedPath)).
		Msg("Audio prepared")

	return &types.AudioDescriptor{
		Path:            preparedPath,
		DurationSeconds: duration,
		SampleRate:      preparedSampleRate,
		Channels:        1,
	}, nil
}

// decode extracts the audio track as 16 kHz mono PCM without filtering.
func (p *Preparer) decode(ctx context.Context, inputPath, outputPath string) error {
	stream := ffmpeg.Input(inputPath).Output(outputPath, ffmpeg.KwArgs{
		"vn":  "",
		"ar":  preparedSampleRate,
		"ac":  1,
		"c:a": "pcm_s16le",
	})
	return runStream(ctx, stream)
}

// optimize applies loudness normalization to the -20 dBFS target and trims
// leading/trailing silence below -40 dBFS, keeping a 500 ms margin.
func (p *Preparer) optimize(ctx context.Context, inputPath, outputPath string) error {
	// silenceremove trims the head, areverse flips so the same trim catches
	// the tail, then flips back. stop_duration is the 1 s minimum silence.
	filter := fmt.Sprintf(
		"silenceremove=start_periods=1:start_duration=%.1f:start_threshold=%.0fdB:start_silence=%.1f,"+
			"areverse,"+
			"silenceremove=start_periods=1:start_duration=%.1f:start_threshold=%.0fdB:start_silence=%.1f,"+
			"areverse,"+
			"loudnorm=I=%.0f:TP=-1.5",
		minSilenceSeconds, silenceThreshDBFS, keepSilenceSeconds,
		minSilenceSeconds, silenceThreshDBFS, keepSilenceSeconds,
		targetDBFS,
	)
	stream := ffmpeg.Input(inputPath).Output(outputPath, ffmpeg.KwArgs{
		"af":  filter,
		"ar":  preparedSampleRate,
		"ac":  1,
		"c:a": "pcm_s16le",
	})
	return runStream(ctx, stream)
}

func emit(sink ProgressSink, fraction float64, message string) {
	if sink != nil {
		sink(fraction, message)
	}
}
