// Package format renders transcripts into output formats: plain text, JSON,
// and the SubRip / WebVTT subtitle formats.
package format

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wavescribe/wavescribe/pkg/types"
)

// Format identifies a transcript output format.
type Format string

const (
	Text Format = "text"
	JSON Format = "json"
	SRT  Format = "srt"
	VTT  Format = "vtt"
)

// Formats lists every supported format.
var Formats = []Format{Text, JSON, SRT, VTT}

// Parse returns the format for a name, defaulting to Text for empty input.
func Parse(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "text", "txt":
		return Text, nil
	case "json":
		return JSON, nil
	case "srt":
		return SRT, nil
	case "vtt", "webvtt":
		return VTT, nil
	default:
		return "", fmt.Errorf("unknown output format: %q", name)
	}
}

// Extension returns the conventional file extension, without the dot.
func (f Format) Extension() string {
	switch f {
	case JSON:
		return "json"
	case SRT:
		return "srt"
	case VTT:
		return "vtt"
	default:
		return "txt"
	}
}

// Render serializes a transcript in the given format.
func Render(t *types.Transcript, f Format) (string, error) {
	switch f {
	case Text:
		return t.Text + "\n", nil
	case JSON:
		data, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal transcript: %w", err)
		}
		return string(data) + "\n", nil
	case SRT:
		return renderSRT(t), nil
	case VTT:
		return renderVTT(t), nil
	default:
		return "", fmt.Errorf("unknown output format: %q", f)
	}
}

// renderSRT produces SubRip cues, one per segment. A transcript without
// segments becomes a single cue spanning nothing but carrying the text.
func renderSRT(t *types.Transcript) string {
	var b strings.Builder
	if len(t.Segments) == 0 {
		if t.Text != "" {
			fmt.Fprintf(&b, "1\n%s --> %s\n%s\n\n", srtTime(0), srtTime(0), t.Text)
		}
		return b.String()
	}
	for i, seg := range t.Segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1, srtTime(seg.StartSeconds), srtTime(seg.EndSeconds), seg.Text)
	}
	return b.String()
}

func renderVTT(t *types.Transcript) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	if len(t.Segments) == 0 {
		if t.Text != "" {
			fmt.Fprintf(&b, "%s --> %s\n%s\n\n", vttTime(0), vttTime(0), t.Text)
		}
		return b.String()
	}
	for _, seg := range t.Segments {
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n",
			vttTime(seg.StartSeconds), vttTime(seg.EndSeconds), seg.Text)
	}
	return b.String()
}

// srtTime formats seconds as HH:MM:SS,mmm.
func srtTime(seconds float64) string {
	h, m, s, ms := splitTime(seconds)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// vttTime formats seconds as HH:MM:SS.mmm.
func vttTime(seconds float64) string {
	h, m, s, ms := splitTime(seconds)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

func splitTime(seconds float64) (h, m, s, ms int) {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds * 1000)
	ms = total % 1000
	total /= 1000
	s = total % 60
	total /= 60
	m = total % 60
	h = total / 60
	return h, m, s, ms
}
