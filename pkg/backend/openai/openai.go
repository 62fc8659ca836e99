// Package openai adapts the OpenAI-compatible audio transcription API to the
// SpeechBackend capability. It works against api.openai.com or any
// whisper-compatible server reachable through a base URL override.
package openai

import (
	"context"
	"errors"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	gopenai "github.com/sashabaranov/go-openai"

	"github.com/wavescribe/wavescribe/pkg/backend"
	"github.com/wavescribe/wavescribe/pkg/logger"
	"github.com/wavescribe/wavescribe/pkg/types"
)

// Config holds the adapter settings.
type Config struct {
	APIKey  string
	BaseURL string // optional, for whisper-compatible servers
	ModelID string // default model when Load is called with ""
	Timeout time.Duration
}

// Backend implements backend.SpeechBackend over the transcription API.
type Backend struct {
	client  *gopenai.Client
	cfg     Config
	guard   backend.LoadGuard
	modelID string
	log     *logger.Logger
}

var _ backend.SpeechBackend = (*Backend)(nil)

// New creates a backend adapter from config.
func New(cfg Config) *Backend {
	if cfg.ModelID == "" {
		cfg.ModelID = string(gopenai.Whisper1)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	clientCfg := gopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Backend{
		client:  gopenai.NewClientWithConfig(clientCfg),
		cfg:     cfg,
		modelID: cfg.ModelID,
		log:     logger.WithComponent("openai-backend"),
	}
}

// Load records the active model. The remote service hosts the weights, so
// loading is a metadata operation; the guard still enforces at-most-one
// concurrent load for callers that race on first use.
func (b *Backend) Load(ctx context.Context, modelID string) error {
	if modelID == "" {
		modelID = b.cfg.ModelID
	}
	return b.guard.Ensure(ctx, modelID, func(ctx context.Context) error {
		b.modelID = modelID
		b.log.Debug().Str("model_id", modelID).Msg("Model selected")
		return nil
	})
}

// Unload drops the loaded marker. Remote weights are not ours to free.
func (b *Backend) Unload() error {
	return b.guard.Reset(nil)
}

// Describe reports the adapter's capabilities.
func (b *Backend) Describe() backend.Description {
	return backend.Description{
		ModelID:             b.modelID,
		SupportedLanguages:  []string{"auto", "en", "zh", "ja", "ko", "de", "fr", "es", "pt", "ru"},
		NeedsAccelerator:    false,
		ApproximateMemoryMB: 0,
		ThreadSafe:          true,
	}
}

// Transcribe sends one prepared chunk to the API and converts the response.
func (b *Backend) Transcribe(ctx context.Context, req backend.TranscribeRequest) (*types.ChunkResult, error) {
	if err := b.Load(ctx, b.modelID); err != nil {
		return nil, err
	}
	if _, err := os.Stat(req.AudioPath); err != nil {
		return nil, backend.NewError(backend.KindInputUnreadable, "audio file unreadable", err)
	}

	if req.Progress != nil {
		req.Progress(0, "uploading audio")
	}

	audioReq := gopenai.AudioRequest{
		Model:       b.modelID,
		FilePath:    req.AudioPath,
		Temperature: req.Temperature,
		Format:      gopenai.AudioResponseFormatVerboseJSON,
	}
	if req.Language != "" && req.Language != "auto" {
		audioReq.Language = req.Language
	}
	if req.WantWordTimestamps {
		audioReq.TimestampGranularities = []gopenai.TranscriptionTimestampGranularity{
			gopenai.TranscriptionTimestampGranularitySegment,
		}
	}

	resp, err := b.client.CreateTranscription(ctx, audioReq)
	if err != nil {
		return nil, classify(ctx, err)
	}

	if req.Progress != nil {
		req.Progress(1, "transcription received")
	}

	result := &types.ChunkResult{
		Text:     strings.TrimSpace(resp.Text),
		Language: resp.Language,
	}
	for _, seg := range resp.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" || seg.End <= seg.Start {
			continue
		}
		result.Segments = append(result.Segments, types.Segment{
			StartSeconds: seg.Start,
			EndSeconds:   seg.End,
			Text:         text,
			Confidence:   confidenceFromLogprob(seg.AvgLogprob),
		})
	}
	return result, nil
}

// confidenceFromLogprob maps the API's average log-probability into [0,1].
func confidenceFromLogprob(avgLogprob float64) float64 {
	c := math.Exp(avgLogprob)
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// classify converts transport and API errors into the backend taxonomy.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return backend.NewError(backend.KindCancelled, "transcription cancelled", ctx.Err())
	}

	var apiErr *gopenai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests,
			apiErr.HTTPStatusCode >= http.StatusInternalServerError:
			return backend.NewError(backend.KindTransient, "transcription API unavailable", err)
		case apiErr.HTTPStatusCode == http.StatusBadRequest,
			apiErr.HTTPStatusCode == http.StatusUnsupportedMediaType:
			return backend.NewError(backend.KindInputUnreadable, "transcription API rejected input", err)
		default:
			return backend.NewError(backend.KindInternal, "transcription API error", err)
		}
	}

	var reqErr *gopenai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode >= http.StatusInternalServerError || reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return backend.NewError(backend.KindTransient, "transcription request failed", err)
		}
		return backend.NewError(backend.KindInternal, "transcription request failed", err)
	}

	// Network-level failures are worth a retry.
	return backend.NewError(backend.KindTransient, "transcription transport failure", err)
}
