package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// runStream executes a compiled ffmpeg stream and kills the process when the
// context is cancelled, so long decodes stop promptly instead of running to
// completion.
func runStream(ctx context.Context, stream *ffmpeg.Stream) error {
	var stderr bytes.Buffer
	cmd := stream.OverWriteOutput().Silent(true).Compile()
	cmd.Stderr = &stderr
	cmd.Stdout = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("ffmpeg: %w (stderr: %s)", err, truncate(stderr.String(), 512))
		}
		return nil
	}
}

// probeDuration returns the duration of a media file in seconds.
func probeDuration(path string) (float64, error) {
	raw, err := ffmpeg.Probe(path)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", path, err)
	}
	return parseDuration(raw)
}

// parseDuration pulls format.duration out of ffprobe JSON output.
func parseDuration(raw string) (float64, error) {
	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return 0, fmt.Errorf("parse probe output: %w", err)
	}
	d, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", probe.Format.Duration, err)
	}
	return d, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
