package audio

import (
	"sort"
	"strings"

	"github.com/wavescribe/wavescribe/pkg/types"
)

// Merge stitches ordered per-chunk results into one transcript. Local
// segment offsets are shifted by their chunk's absolute start; segments of a
// later chunk that begin before the previous chunk's absolute end fall inside
// the overlap region and are dropped, since the previous chunk already
// produced that content. The result's segments are sorted and strictly
// non-overlapping, and the whole function is a pure, deterministic mapping
// of its inputs.
func Merge(chunkResults []*types.ChunkResult, overlapSeconds float64) *types.Transcript {
	merged := &types.Transcript{DetectedLanguage: "unknown"}
	if len(chunkResults) == 0 {
		return merged
	}

	var segments []types.Segment
	prevEnd := 0.0
	for i, cr := range chunkResults {
		if cr == nil {
			continue
		}
		if merged.DetectedLanguage == "unknown" && cr.Language != "" && cr.Language != "unknown" {
			merged.DetectedLanguage = cr.Language
		}
		for _, seg := range cr.Segments {
			abs := types.Segment{
				StartSeconds: seg.StartSeconds + cr.StartSeconds,
				EndSeconds:   seg.EndSeconds + cr.StartSeconds,
				Text:         strings.TrimSpace(seg.Text),
				Confidence:   seg.Confidence,
			}
			if abs.Text == "" || abs.EndSeconds <= abs.StartSeconds {
				continue
			}
			// Overlap elision: content before the previous chunk's end was
			// already transcribed there.
			if i > 0 && abs.StartSeconds < prevEnd {
				continue
			}
			segments = append(segments, abs)
		}
		prevEnd = cr.EndSeconds
	}

	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].StartSeconds < segments[j].StartSeconds
	})

	// Final clamp pass: enforce strict non-overlap even if a backend emitted
	// segments past its chunk boundary.
	out := segments[:0]
	lastEnd := -1.0
	for _, seg := range segments {
		if seg.StartSeconds < lastEnd {
			seg.StartSeconds = lastEnd
			if seg.EndSeconds <= seg.StartSeconds {
				continue
			}
		}
		out = append(out, seg)
		lastEnd = seg.EndSeconds
	}
	merged.Segments = out

	texts := make([]string, 0, len(out))
	confSum := 0.0
	for _, seg := range out {
		texts = append(texts, seg.Text)
		confSum += seg.Confidence
	}
	merged.Text = strings.TrimSpace(strings.Join(texts, " "))
	if len(out) > 0 {
		merged.Confidence = confSum / float64(len(out))
	} else {
		merged.Confidence = 0.5
		// Segment-free backends still produce chunk-level text.
		var parts []string
		for _, cr := range chunkResults {
			if cr != nil && strings.TrimSpace(cr.Text) != "" {
				parts = append(parts, strings.TrimSpace(cr.Text))
			}
		}
		merged.Text = strings.TrimSpace(strings.Join(parts, " "))
	}
	return merged
}
