package scheduler

import (
	"context"
	"errors"

	"github.com/wavescribe/wavescribe/pkg/audio"
	"github.com/wavescribe/wavescribe/pkg/backend"
	"github.com/wavescribe/wavescribe/pkg/media"
)

// Job-level failure kinds. Backend failures keep their own kind strings
// (see package backend); these cover the stages before and around inference.
const (
	KindNotFound          = "not_found"
	KindNotAFile          = "not_a_file"
	KindUnsupportedFormat = "unsupported_format"
	KindProbeUnavailable  = "probe_unavailable"
	KindInvalidInput      = "invalid_input"
	KindPrepareFailed     = "prepare_failed"
	KindSplitFailed       = "split_failed"
	KindTimeout           = "timeout"
	KindCancelled         = string(backend.KindCancelled)
)

// probeKind maps a probe failure to its job-level kind.
func probeKind(err error) string {
	switch {
	case errors.Is(err, media.ErrNotFound):
		return KindNotFound
	case errors.Is(err, media.ErrNotAFile):
		return KindNotAFile
	case errors.Is(err, media.ErrUnsupportedFormat):
		return KindUnsupportedFormat
	default:
		return KindProbeUnavailable
	}
}

// stageKind classifies an error from a pipeline stage, preferring the
// interruption kind when the job context is already dead.
func stageKind(ctx context.Context, err error, fallback string) string {
	if ctx.Err() != nil || backend.IsCancelled(err) {
		return interruptionKind(ctx)
	}
	if errors.Is(err, audio.ErrSplitFailed) {
		return KindSplitFailed
	}
	if kind := backend.KindOf(err); kind != backend.KindInternal && kind != "" {
		return string(kind)
	}
	return fallback
}

// interruptionKind distinguishes a job that ran out of wall clock budget
// from one that was cancelled.
func interruptionKind(ctx context.Context) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindCancelled
}
