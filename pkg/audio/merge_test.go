package audio

import (
	"reflect"
	"testing"

	"github.com/wavescribe/wavescribe/pkg/types"
)

func chunkResult(start, end float64, lang string, segs ...types.Segment) *types.ChunkResult {
	text := ""
	for i, s := range segs {
		if i > 0 {
			text += " "
		}
		text += s.Text
	}
	return &types.ChunkResult{
		Text:         text,
		Language:     lang,
		Segments:     segs,
		StartSeconds: start,
		EndSeconds:   end,
	}
}

func TestMergeShiftsLocalOffsets(t *testing.T) {
	results := []*types.ChunkResult{
		chunkResult(0, 300, "en",
			types.Segment{StartSeconds: 0, EndSeconds: 5, Text: "hello", Confidence: 0.9},
		),
		chunkResult(298, 598, "en",
			types.Segment{StartSeconds: 4, EndSeconds: 9, Text: "world", Confidence: 0.8},
		),
	}

	got := Merge(results, 2)
	want := []types.Segment{
		{StartSeconds: 0, EndSeconds: 5, Text: "hello", Confidence: 0.9},
		{StartSeconds: 302, EndSeconds: 307, Text: "world", Confidence: 0.8},
	}
	if !reflect.DeepEqual(got.Segments, want) {
		t.Errorf("Merge() segments = %v, want %v", got.Segments, want)
	}
	if got.Text != "hello world" {
		t.Errorf("Merge() text = %q, want %q", got.Text, "hello world")
	}
}

func TestMergeDropsOverlapDuplicates(t *testing.T) {
	// The second chunk re-transcribes the overlap region; its segment
	// starting before the first chunk's end must be dropped.
	results := []*types.ChunkResult{
		chunkResult(0, 300, "en",
			types.Segment{StartSeconds: 295, EndSeconds: 299, Text: "tail", Confidence: 0.9},
		),
		chunkResult(298, 598, "en",
			types.Segment{StartSeconds: 0, EndSeconds: 1.5, Text: "tail again", Confidence: 0.7},
			types.Segment{StartSeconds: 4, EndSeconds: 8, Text: "fresh", Confidence: 0.8},
		),
	}

	got := Merge(results, 2)
	if len(got.Segments) != 2 {
		t.Fatalf("Merge() kept %d segments, want 2: %v", len(got.Segments), got.Segments)
	}
	if got.Segments[0].Text != "tail" || got.Segments[1].Text != "fresh" {
		t.Errorf("Merge() texts = %q, %q, want tail, fresh", got.Segments[0].Text, got.Segments[1].Text)
	}
	if got.Text != "tail fresh" {
		t.Errorf("Merge() text = %q, want %q", got.Text, "tail fresh")
	}
}

func TestMergeClampsStraddlingSegments(t *testing.T) {
	// A backend may emit a segment crossing its chunk boundary; the clamp
	// pass enforces strict non-overlap.
	results := []*types.ChunkResult{
		chunkResult(0, 300, "en",
			types.Segment{StartSeconds: 290, EndSeconds: 305, Text: "long", Confidence: 0.9},
		),
		chunkResult(298, 598, "en",
			types.Segment{StartSeconds: 4, EndSeconds: 10, Text: "next", Confidence: 0.8},
		),
	}

	got := Merge(results, 2)
	if len(got.Segments) != 2 {
		t.Fatalf("Merge() kept %d segments, want 2", len(got.Segments))
	}
	for i := 1; i < len(got.Segments); i++ {
		if got.Segments[i].StartSeconds < got.Segments[i-1].EndSeconds {
			t.Errorf("segments overlap: %v then %v", got.Segments[i-1], got.Segments[i])
		}
	}
}

func TestMergeLanguageAndConfidence(t *testing.T) {
	results := []*types.ChunkResult{
		chunkResult(0, 300, "unknown",
			types.Segment{StartSeconds: 0, EndSeconds: 1, Text: "a", Confidence: 0.6},
		),
		chunkResult(298, 598, "zh",
			types.Segment{StartSeconds: 4, EndSeconds: 5, Text: "b", Confidence: 0.8},
		),
	}

	got := Merge(results, 2)
	if got.DetectedLanguage != "zh" {
		t.Errorf("DetectedLanguage = %q, want zh", got.DetectedLanguage)
	}
	if !almostEqual(got.Confidence, 0.7) {
		t.Errorf("Confidence = %v, want 0.7", got.Confidence)
	}
}

func TestMergeSegmentFreeFallback(t *testing.T) {
	results := []*types.ChunkResult{
		{Text: "first part", Language: "en", StartSeconds: 0, EndSeconds: 300},
		{Text: "second part", Language: "en", StartSeconds: 298, EndSeconds: 598},
	}

	got := Merge(results, 2)
	if got.Text != "first part second part" {
		t.Errorf("Text = %q, want joined chunk texts", got.Text)
	}
	if got.Confidence != 0.5 {
		t.Errorf("Confidence = %v, want neutral 0.5", got.Confidence)
	}
}

func TestMergeEmpty(t *testing.T) {
	got := Merge(nil, 2)
	if got.Text != "" || len(got.Segments) != 0 {
		t.Errorf("Merge(nil) = %+v, want empty transcript", got)
	}
	if got.DetectedLanguage != "unknown" {
		t.Errorf("DetectedLanguage = %q, want unknown", got.DetectedLanguage)
	}
}

func TestMergeDeterministic(t *testing.T) {
	results := []*types.ChunkResult{
		chunkResult(0, 300, "en",
			types.Segment{StartSeconds: 0, EndSeconds: 5, Text: "one", Confidence: 0.9},
			types.Segment{StartSeconds: 6, EndSeconds: 9, Text: "two", Confidence: 0.9},
		),
		chunkResult(298, 598, "en",
			types.Segment{StartSeconds: 5, EndSeconds: 9, Text: "three", Confidence: 0.9},
		),
	}

	first := Merge(results, 2)
	second := Merge(results, 2)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Merge is not deterministic: %+v vs %+v", first, second)
	}
}
