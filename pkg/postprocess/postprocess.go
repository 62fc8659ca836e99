// Package postprocess cleans backend output: model meta-tokens are stripped
// and, when a punctuation model is configured, flat text is re-punctuated.
package postprocess

import (
	"context"
	"regexp"
	"strings"

	"github.com/wavescribe/wavescribe/pkg/logger"
)

// metaTokenRe matches bracketed backend meta-tokens such as <|zh|>,
// <|NEUTRAL|>, <|Speech|> or <|woitn|>.
var metaTokenRe = regexp.MustCompile(`<\|[^|>]*\|>`)

// spaceRe collapses runs of whitespace left behind by token removal.
var spaceRe = regexp.MustCompile(`\s+`)

// Clean removes meta-tokens and collapses repeated whitespace. Idempotent.
func Clean(text string) string {
	text = metaTokenRe.ReplaceAllString(text, " ")
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Punctuator restores punctuation for a given language. Implementations are
// typically a secondary model behind the speech backend's API.
type Punctuator interface {
	// Punctuate returns text with punctuation restored.
	Punctuate(ctx context.Context, text, language string) (string, error)
	// Supports reports whether a punctuation model exists for the language.
	Supports(language string) bool
}

// Processor applies cleaning and optional punctuation.
type Processor struct {
	punctuator Punctuator // nil disables re-punctuation
	log        *logger.Logger
}

// NewProcessor returns a Processor. punctuator may be nil.
func NewProcessor(punctuator Punctuator) *Processor {
	return &Processor{
		punctuator: punctuator,
		log:        logger.WithComponent("postprocess"),
	}
}

// Process cleans the text and, when a punctuator is configured and supports
// the language, re-punctuates it. Punctuation failures are logged and the
// cleaned text is returned unchanged; they are never fatal.
func (p *Processor) Process(ctx context.Context, text, language string) string {
	cleaned := Clean(text)
	if cleaned == "" || p.punctuator == nil {
		return cleaned
	}
	if !p.punctuator.Supports(language) {
		return cleaned
	}
	punctuated, err := p.punctuator.Punctuate(ctx, cleaned, language)
	if err != nil {
		p.log.Warn().Err(err).Str("language", language).Msg("Punctuation failed, keeping cleaned text")
		return cleaned
	}
	if strings.TrimSpace(punctuated) == "" {
		return cleaned
	}
	return strings.TrimSpace(punctuated)
}
