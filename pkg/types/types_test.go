package types

import (
	"errors"
	"testing"
)

func TestOptionsNormalize(t *testing.T) {
	var opts Options
	opts.Normalize()

	if opts.ModelID != "whisper-1" {
		t.Errorf("ModelID = %q, want whisper-1", opts.ModelID)
	}
	if opts.Language != "auto" {
		t.Errorf("Language = %q, want auto", opts.Language)
	}
	if opts.UseGPU != GPUAuto {
		t.Errorf("UseGPU = %q, want auto", opts.UseGPU)
	}
	if opts.Chunking != DefaultChunking() {
		t.Errorf("Chunking = %+v, want defaults", opts.Chunking)
	}
}

func TestOptionsNormalizeKeepsExplicitValues(t *testing.T) {
	opts := Options{
		ModelID:  "custom-model",
		Language: "zh",
		UseGPU:   GPUOff,
		Chunking: ChunkingOptions{Enabled: false, ChunkSeconds: 120, OverlapSeconds: 1, MinDurationSeconds: 240},
	}
	opts.Normalize()

	if opts.ModelID != "custom-model" {
		t.Errorf("ModelID = %q, want custom-model", opts.ModelID)
	}
	if opts.Language != "zh" {
		t.Errorf("Language = %q, want zh", opts.Language)
	}
	if opts.UseGPU != GPUOff {
		t.Errorf("UseGPU = %q, want off", opts.UseGPU)
	}
	if opts.Chunking.ChunkSeconds != 120 {
		t.Errorf("ChunkSeconds = %v, want 120", opts.Chunking.ChunkSeconds)
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr error
	}{
		{"defaults are valid", func(*Options) {}, nil},
		{"temperature too high", func(o *Options) { o.Temperature = 1.5 }, ErrInvalidTemperature},
		{"temperature negative", func(o *Options) { o.Temperature = -0.1 }, ErrInvalidTemperature},
		{"chunk not longer than overlap", func(o *Options) {
			o.Chunking.ChunkSeconds = 2
			o.Chunking.OverlapSeconds = 2
		}, ErrInvalidChunking},
		{"negative overlap", func(o *Options) { o.Chunking.OverlapSeconds = -1 }, ErrInvalidChunking},
		{"bad gpu mode", func(o *Options) { o.UseGPU = "maybe" }, ErrInvalidGPUMode},
		{"chunking disabled skips window check", func(o *Options) {
			o.Chunking.Enabled = false
			o.Chunking.ChunkSeconds = 1
			o.Chunking.OverlapSeconds = 5
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			err := opts.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestChunkDuration(t *testing.T) {
	c := AudioChunk{StartSeconds: 298, EndSeconds: 610}
	if got := c.Duration(); got != 312 {
		t.Errorf("Duration() = %v, want 312", got)
	}
}
