package postprocess

import (
	"context"
	"errors"
	"testing"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "hello world", "hello world"},
		{"language token stripped", "<|zh|>你好世界", "你好世界"},
		{"multiple tokens stripped", "<|en|><|NEUTRAL|><|Speech|>hello there", "hello there"},
		{"token in the middle", "hello <|woitn|> world", "hello world"},
		{"whitespace collapsed", "hello    world\n\nagain", "hello world again"},
		{"only tokens", "<|zh|><|EMO_UNKNOWN|>", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Clean(tt.in)
			if got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := Clean(got); again != got {
				t.Errorf("Clean is not idempotent: %q -> %q", got, again)
			}
		})
	}
}

type fakePunctuator struct {
	out       string
	err       error
	languages map[string]bool
	calls     int
}

func (f *fakePunctuator) Punctuate(_ context.Context, text, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.out != "" {
		return f.out, nil
	}
	return text + ".", nil
}

func (f *fakePunctuator) Supports(language string) bool {
	return f.languages[language]
}

func TestProcessorWithoutPunctuator(t *testing.T) {
	p := NewProcessor(nil)
	got := p.Process(context.Background(), "<|en|>hello  world", "en")
	if got != "hello world" {
		t.Errorf("Process() = %q, want %q", got, "hello world")
	}
}

func TestProcessorPunctuates(t *testing.T) {
	fake := &fakePunctuator{languages: map[string]bool{"en": true}}
	p := NewProcessor(fake)

	got := p.Process(context.Background(), "hello world", "en")
	if got != "hello world." {
		t.Errorf("Process() = %q, want punctuated text", got)
	}
	if fake.calls != 1 {
		t.Errorf("punctuator called %d times, want 1", fake.calls)
	}
}

func TestProcessorSkipsUnsupportedLanguage(t *testing.T) {
	fake := &fakePunctuator{languages: map[string]bool{"zh": true}}
	p := NewProcessor(fake)

	got := p.Process(context.Background(), "bonjour le monde", "fr")
	if got != "bonjour le monde" {
		t.Errorf("Process() = %q, want unchanged text", got)
	}
	if fake.calls != 0 {
		t.Errorf("punctuator called %d times, want 0", fake.calls)
	}
}

func TestProcessorPunctuationFailureKeepsCleanedText(t *testing.T) {
	fake := &fakePunctuator{
		err:       errors.New("model unavailable"),
		languages: map[string]bool{"en": true},
	}
	p := NewProcessor(fake)

	got := p.Process(context.Background(), "<|en|>hello world", "en")
	if got != "hello world" {
		t.Errorf("Process() = %q, want cleaned text on punctuation failure", got)
	}
}

func TestProcessorEmptyPunctuationResultKeepsCleanedText(t *testing.T) {
	fake := &fakePunctuator{out: "  ", languages: map[string]bool{"en": true}}
	p := NewProcessor(fake)

	got := p.Process(context.Background(), "hello world", "en")
	if got != "hello world" {
		t.Errorf("Process() = %q, want cleaned text when punctuator returns nothing", got)
	}
}

func TestProcessorEmptyInput(t *testing.T) {
	fake := &fakePunctuator{languages: map[string]bool{"en": true}}
	p := NewProcessor(fake)

	if got := p.Process(context.Background(), "   ", "en"); got != "" {
		t.Errorf("Process() = %q, want empty string", got)
	}
	if fake.calls != 0 {
		t.Errorf("punctuator called %d times for empty input, want 0", fake.calls)
	}
}

func TestModelPunctuatorSupports(t *testing.T) {
	m := NewModelPunctuator("key", "", "")
	for _, lang := range []string{"zh", "en", "ja", "ko", "yue"} {
		if !m.Supports(lang) {
			t.Errorf("Supports(%q) = false, want true", lang)
		}
	}
	for _, lang := range []string{"fr", "de", "unknown", ""} {
		if m.Supports(lang) {
			t.Errorf("Supports(%q) = true, want false", lang)
		}
	}
}
