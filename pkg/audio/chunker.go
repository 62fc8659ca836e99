package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/wavescribe/wavescribe/pkg/logger"
	"github.com/wavescribe/wavescribe/pkg/types"
)

// ErrSplitFailed wraps I/O or codec errors during chunk extraction.
var ErrSplitFailed = errors.New("audio split failed")

// shortTailSeconds is the minimum length of a final chunk. A shorter tail is
// absorbed into the previous chunk instead of becoming its own window.
const shortTailSeconds = 300

// window is a chunk boundary before extraction.
type window struct {
	start float64
	end   float64
}

// Chunker partitions prepared audio into overlapping windows.
type Chunker struct {
	log *logger.Logger
}

// NewChunker returns a Chunker.
func NewChunker() *Chunker {
	return &Chunker{log: logger.WithComponent("audio-chunker")}
}

// Split partitions the descriptor's audio according to opts. Short inputs
// (duration <= min_duration_seconds) and disabled chunking return a single
// chunk referencing the original path without copying. Otherwise each window
// is extracted by a format-level slice into chunkDir.
func (c *Chunker) Split(ctx context.Context, desc *types.AudioDescriptor, opts types.ChunkingOptions, chunkDir string) ([]types.AudioChunk, error) {
	if !opts.Enabled || desc.DurationSeconds <= opts.MinDurationSeconds {
		return []types.AudioChunk{{
			Path:         desc.Path,
			StartSeconds: 0,
			EndSeconds:   desc.DurationSeconds,
		}}, nil
	}

	windows := calculateWindows(desc.DurationSeconds, opts.ChunkSeconds, opts.OverlapSeconds)
	if len(windows) == 1 {
		return []types.AudioChunk{{
			Path:         desc.Path,
			StartSeconds: 0,
			EndSeconds:   desc.DurationSeconds,
		}}, nil
	}

	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSplitFailed, err)
	}

	c.log.Info().
		Int("chunks", len(windows)).
		Float64("duration_seconds", desc.DurationSeconds).
		Float64("chunk_seconds", opts.ChunkSeconds).
		Float64("overlap_seconds", opts.OverlapSeconds).
		Msg("Splitting audio")

	chunks := make([]types.AudioChunk, 0, len(windows))
	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunkPath := filepath.Join(chunkDir, fmt.Sprintf("chunk_%d.wav", i))
		if err := c.extract(ctx, desc.Path, chunkPath, w); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: chunk %d: %v", ErrSplitFailed, i, err)
		}
		chunks = append(chunks, types.AudioChunk{
			Path:         chunkPath,
			StartSeconds: w.start,
			EndSeconds:   w.end,
		})
	}
	return chunks, nil
}

// extract slices [w.start, w.end] out of the source. The seek rides on the
// input so ffmpeg jumps straight to the window instead of decoding and
// discarding everything before it.
func (c *Chunker) extract(ctx context.Context, inputPath, outputPath string, w window) error {
	return runStream(ctx, extractStream(inputPath, outputPath, w))
}

func extractStream(inputPath, outputPath string, w window) *ffmpeg.Stream {
	return ffmpeg.Input(inputPath, ffmpeg.KwArgs{
		"ss": fmt.Sprintf("%.3f", w.start),
	}).Output(outputPath, ffmpeg.KwArgs{
		"t":   fmt.Sprintf("%.3f", w.end-w.start),
		"c:a": "pcm_s16le",
		"ar":  preparedSampleRate,
		"ac":  1,
	})
}

// calculateWindows computes chunk boundaries: consecutive windows of
// chunkSeconds where each one after the first starts overlapSeconds before
// the previous end. The final window ends exactly at duration; when that
// final window would be shorter than shortTailSeconds it is absorbed into
// the previous one.
func calculateWindows(duration, chunkSeconds, overlapSeconds float64) []window {
	if duration <= chunkSeconds {
		return []window{{start: 0, end: duration}}
	}

	var windows []window
	start := 0.0
	for start < duration {
		end := start + chunkSeconds
		if end >= duration {
			end = duration
		}
		if end == duration && len(windows) > 0 && end-start < shortTailSeconds {
			windows[len(windows)-1].end = duration
			break
		}
		windows = append(windows, window{start: start, end: end})
		if end >= duration {
			break
		}
		start = end - overlapSeconds
	}
	return windows
}
