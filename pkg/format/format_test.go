package format

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/wavescribe/wavescribe/pkg/types"
)

func sampleTranscript() *types.Transcript {
	return &types.Transcript{
		Text:             "hello world again",
		DetectedLanguage: "en",
		Confidence:       0.91,
		Segments: []types.Segment{
			{StartSeconds: 0, EndSeconds: 2.5, Text: "hello world", Confidence: 0.95},
			{StartSeconds: 3661.25, EndSeconds: 3663, Text: "again", Confidence: 0.87},
		},
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", Text, false},
		{"text", Text, false},
		{"txt", Text, false},
		{"TXT", Text, false},
		{"json", JSON, false},
		{"srt", SRT, false},
		{" srt ", SRT, false},
		{"vtt", VTT, false},
		{"webvtt", VTT, false},
		{"pdf", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Parse(%q) = %q, want error", tt.in, got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("Parse(%q) = %q, %v, want %q", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestExtension(t *testing.T) {
	wants := map[Format]string{Text: "txt", JSON: "json", SRT: "srt", VTT: "vtt"}
	for f, want := range wants {
		if got := f.Extension(); got != want {
			t.Errorf("%s.Extension() = %q, want %q", f, got, want)
		}
	}
}

func TestRenderText(t *testing.T) {
	got, err := Render(sampleTranscript(), Text)
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}
	if got != "hello world again\n" {
		t.Errorf("Render(text) = %q", got)
	}
}

func TestRenderJSON(t *testing.T) {
	got, err := Render(sampleTranscript(), JSON)
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}

	var decoded types.Transcript
	if err := json.Unmarshal([]byte(got), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.DetectedLanguage != "en" || len(decoded.Segments) != 2 {
		t.Errorf("decoded = %+v, want original transcript", decoded)
	}
}

func TestRenderSRT(t *testing.T) {
	got, err := Render(sampleTranscript(), SRT)
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}

	want := "1\n00:00:00,000 --> 00:00:02,500\nhello world\n\n" +
		"2\n01:01:01,250 --> 01:01:03,000\nagain\n\n"
	if got != want {
		t.Errorf("Render(srt) = %q, want %q", got, want)
	}
}

func TestRenderVTT(t *testing.T) {
	got, err := Render(sampleTranscript(), VTT)
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}

	if !strings.HasPrefix(got, "WEBVTT\n\n") {
		t.Errorf("Render(vtt) missing WEBVTT header: %q", got)
	}
	if !strings.Contains(got, "00:00:00.000 --> 00:00:02.500\nhello world") {
		t.Errorf("Render(vtt) missing first cue: %q", got)
	}
	if !strings.Contains(got, "01:01:01.250 --> 01:01:03.000\nagain") {
		t.Errorf("Render(vtt) missing second cue: %q", got)
	}
}

func TestRenderSegmentFreeSubtitles(t *testing.T) {
	tr := &types.Transcript{Text: "no timing info"}

	srt, err := Render(tr, SRT)
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}
	if !strings.Contains(srt, "no timing info") {
		t.Errorf("Render(srt) dropped segment-free text: %q", srt)
	}

	vtt, err := Render(tr, VTT)
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}
	if !strings.HasPrefix(vtt, "WEBVTT") || !strings.Contains(vtt, "no timing info") {
		t.Errorf("Render(vtt) = %q", vtt)
	}
}

func TestRenderUnknownFormat(t *testing.T) {
	if _, err := Render(sampleTranscript(), Format("pdf")); err == nil {
		t.Error("Render(unknown) = nil error, want failure")
	}
}
