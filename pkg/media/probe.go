// Package media inspects input files with ffprobe: container format,
// duration, stream layout. Probing never reads the full file into memory;
// ffprobe only parses headers.
package media

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/wavescribe/wavescribe/pkg/logger"
	"github.com/wavescribe/wavescribe/pkg/types"
)

// Probe failure classes.
var (
	ErrNotFound          = errors.New("input file not found")
	ErrNotAFile          = errors.New("input path is not a regular file")
	ErrUnsupportedFormat = errors.New("unsupported media format")
	ErrProbeUnavailable  = errors.New("media probe unavailable")
)

// supportedExts lists the container formats the pipeline accepts.
var supportedExts = map[string]string{
	".wav":  "wav",
	".mp3":  "mp3",
	".m4a":  "m4a",
	".flac": "flac",
	".ogg":  "ogg",
	".mp4":  "mp4",
	".avi":  "avi",
	".mov":  "mov",
	".mkv":  "mkv",
	".webm": "webm",
	".flv":  "flv",
}

// videoExts marks containers that normally carry a video stream.
var videoExts = map[string]bool{
	".mp4": true, ".avi": true, ".mov": true, ".mkv": true, ".webm": true, ".flv": true,
}

// Prober probes media files. The zero value is usable.
type Prober struct{}

// NewProber returns a Prober.
func NewProber() *Prober { return &Prober{} }

// Supported reports whether the file extension belongs to a recognized
// container format.
func (p *Prober) Supported(path string) bool {
	_, ok := supportedExts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Probe inspects a file and returns its media info. It is pure and
// idempotent: probing the same unchanged file yields the same result.
func (p *Prober) Probe(path string) (*types.MediaInfo, error) {
	log := logger.WithComponent("media-probe").WithField("file", filepath.Base(path))

	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrProbeUnavailable, err)
	}
	if !stat.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotAFile, path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	formatTag, ok := supportedExts[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	raw, err := ffmpeg.Probe(path)
	if err != nil {
		log.Error().Err(err).Msg("ffprobe failed")
		return nil, fmt.Errorf("%w: %v", ErrProbeUnavailable, err)
	}

	info := &types.MediaInfo{
		Path:      path,
		Format:    formatTag,
		HasVideo:  videoExts[ext],
		SizeBytes: stat.Size(),
	}
	if err := parseProbe(raw, info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if info.DurationSeconds <= 0 {
		return nil, fmt.Errorf("%w: no playable duration", ErrUnsupportedFormat)
	}

	log.Debug().
		Float64("duration_seconds", info.DurationSeconds).
		Str("format", info.Format).
		Bool("has_video", info.HasVideo).
		Msg("Probed input file")
	return info, nil
}

// parseProbe extracts duration and stream layout from ffprobe JSON output.
func parseProbe(raw string, info *types.MediaInfo) error {
	var probe struct {
		Format struct {
			Duration   string `json:"duration"`
			FormatName string `json:"format_name"`
		} `json:"format"`
		Streams []struct {
			CodecType string `json:"codec_type"`
		} `json:"streams"`
	}
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return fmt.Errorf("parse probe output: %w", err)
	}

	if probe.Format.Duration != "" {
		if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			info.DurationSeconds = d
			info.Duration = time.Duration(d * float64(time.Second))
		}
	}

	hasAudio := false
	hasVideo := false
	for _, s := range probe.Streams {
		switch s.CodecType {
		case "audio":
			hasAudio = true
		case "video":
			hasVideo = true
		}
	}
	if len(probe.Streams) > 0 {
		if !hasAudio {
			return errors.New("no audio stream")
		}
		info.HasVideo = hasVideo
	}
	return nil
}
