package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// DefaultVisionModel reads images through chat completions.
const DefaultVisionModel = "pixtral-12b-2409"

const transcribePrompt = "Extract all text from this image. Provide the text as it appears, " +
	"maintaining the structure and formatting where possible."

// Transcriber reads the text in an image with a vision chat model. It
// satisfies Recognizer.
type Transcriber struct {
	llm    llms.Model
	logger *slog.Logger
}

// NewTranscriber creates a vision transcriber against an OpenAI-compatible
// chat endpoint. cfg.Model names the vision model (default:
// pixtral-12b-2409). A nil logger uses slog.Default().
func NewTranscriber(cfg Config, logger *slog.Logger) (*Transcriber, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyRequired
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultVisionModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	llm, err := openai.New(
		openai.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/v1"),
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("create vision client: %w", err)
	}
	return &Transcriber{llm: llm, logger: logger.With("component", "transcriber")}, nil
}

// Recognize asks the vision model for the image's text.
func (t *Transcriber) Recognize(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty image", ErrExtractionFailed)
	}

	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
	content := []llms.MessageContent{{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(transcribePrompt), llms.ImageURLPart(dataURL)},
	}}

	resp, err := t.llm.GenerateContent(ctx, content)
	if err != nil {
		return "", fmt.Errorf("%w: vision model: %w", ErrExtractionFailed, err)
	}
	if len(resp.Choices) == 0 {
		t.logger.Warn("vision model returned no choices", "bytes", len(data))
		return "", ErrUnrecognizedResponse
	}
	return resp.Choices[0].Content, nil
}
