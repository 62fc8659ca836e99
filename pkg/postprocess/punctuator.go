package postprocess

import (
	"context"
	"fmt"

	gopenai "github.com/sashabaranov/go-openai"
)

// punctuationLanguages are the languages the secondary model handles well
// enough to be worth the round trip.
var punctuationLanguages = map[string]bool{
	"zh": true, "en": true, "ja": true, "ko": true, "yue": true,
}

// ModelPunctuator restores punctuation through a chat-capable secondary
// model on the same OpenAI-compatible endpoint the speech backend uses.
type ModelPunctuator struct {
	client *gopenai.Client
	model  string
}

var _ Punctuator = (*ModelPunctuator)(nil)

// NewModelPunctuator builds a punctuator. baseURL may be empty for the
// default endpoint.
func NewModelPunctuator(apiKey, baseURL, model string) *ModelPunctuator {
	cfg := gopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = gopenai.GPT4oMini
	}
	return &ModelPunctuator{client: gopenai.NewClientWithConfig(cfg), model: model}
}

// Supports reports whether a punctuation model exists for the language.
func (m *ModelPunctuator) Supports(language string) bool {
	return punctuationLanguages[language]
}

// Punctuate asks the secondary model to restore punctuation without changing
// any words.
func (m *ModelPunctuator) Punctuate(ctx context.Context, text, language string) (string, error) {
	resp, err := m.client.CreateChatCompletion(ctx, gopenai.ChatCompletionRequest{
		Model: m.model,
		Messages: []gopenai.ChatCompletionMessage{
			{
				Role: gopenai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(
					"Restore punctuation in the following %s transcript. Do not add, remove, or reorder words. Reply with the punctuated text only.",
					language),
			},
			{Role: gopenai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("punctuation model: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("punctuation model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
