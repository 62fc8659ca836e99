package media

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/wavescribe/wavescribe/pkg/types"
)

func TestSupported(t *testing.T) {
	p := NewProber()
	for _, path := range []string{"a.wav", "b.MP3", "c.mp4", "/x/y/d.mkv", "e.flac"} {
		if !p.Supported(path) {
			t.Errorf("Supported(%q) = false, want true", path)
		}
	}
	for _, path := range []string{"a.txt", "b.pdf", "noext", "c.wav.bak"} {
		if p.Supported(path) {
			t.Errorf("Supported(%q) = true, want false", path)
		}
	}
}

func TestProbeMissingFile(t *testing.T) {
	p := NewProber()
	_, err := p.Probe(filepath.Join(t.TempDir(), "missing.mp4"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Probe(missing) = %v, want ErrNotFound", err)
	}
}

func TestProbeDirectory(t *testing.T) {
	p := NewProber()
	_, err := p.Probe(t.TempDir())
	if !errors.Is(err, ErrNotAFile) {
		t.Errorf("Probe(directory) = %v, want ErrNotAFile", err)
	}
}

func TestParseProbe(t *testing.T) {
	raw := `{
		"format": {"duration": "932.5", "format_name": "mov,mp4,m4a"},
		"streams": [
			{"codec_type": "video"},
			{"codec_type": "audio"}
		]
	}`
	info := &types.MediaInfo{}
	if err := parseProbe(raw, info); err != nil {
		t.Fatalf("parseProbe() failed: %v", err)
	}
	if info.DurationSeconds != 932.5 {
		t.Errorf("DurationSeconds = %v, want 932.5", info.DurationSeconds)
	}
	if !info.HasVideo {
		t.Error("HasVideo = false, want true")
	}
}

func TestParseProbeAudioOnly(t *testing.T) {
	raw := `{"format": {"duration": "30"}, "streams": [{"codec_type": "audio"}]}`
	info := &types.MediaInfo{HasVideo: true}
	if err := parseProbe(raw, info); err != nil {
		t.Fatalf("parseProbe() failed: %v", err)
	}
	if info.HasVideo {
		t.Error("HasVideo = true for an audio-only stream list")
	}
}

func TestParseProbeNoAudioStream(t *testing.T) {
	raw := `{"format": {"duration": "30"}, "streams": [{"codec_type": "video"}]}`
	if err := parseProbe(raw, &types.MediaInfo{}); err == nil {
		t.Error("parseProbe() = nil, want error for a silent video")
	}
}

func TestParseProbeInvalidJSON(t *testing.T) {
	if err := parseProbe("not json", &types.MediaInfo{}); err == nil {
		t.Error("parseProbe() = nil, want error for malformed output")
	}
}
