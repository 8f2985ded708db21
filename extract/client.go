package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultBaseURL = "https://api.mistral.ai"
	DefaultModel   = "mistral-ocr-latest"
	DefaultTimeout = 60 * time.Second
)

// Config holds configuration for the OCR client.
type Config struct {
	// BaseURL is the OCR API base URL (default: https://api.mistral.ai).
	BaseURL string

	// APIKey is sent as a bearer token.
	APIKey string

	// Model is the OCR model (default: mistral-ocr-latest).
	Model string

	// Timeout bounds each request (default: 60s).
	Timeout time.Duration
}

// Client recognizes text in images through an OCR HTTP API.
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	logger  *slog.Logger
}

type ocrDocument struct {
	Type     string `json:"type"`
	ImageURL string `json:"image_url"`
}

type ocrRequest struct {
	Model              string      `json:"model"`
	Document           ocrDocument `json:"document"`
	IncludeImageBase64 bool        `json:"include_image_base64"`
}

// NewClient creates an OCR client. A nil logger uses slog.Default().
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyRequired
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		logger:  logger.With("component", "ocr"),
	}, nil
}

// Recognize returns the text found in an image. mimeType is the image's
// content type, e.g. image/png. The result may be partial.
func (c *Client) Recognize(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty image", ErrExtractionFailed)
	}

	body, err := json.Marshal(ocrRequest{
		Model: c.model,
		Document: ocrDocument{
			Type:     "image_url",
			ImageURL: "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/ocr", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: ocr status %d: %s", ErrExtractionFailed, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	result := ParseOCRResponse(raw)
	if _, ok := result.(UnrecognizedResponse); ok {
		c.logger.Warn("unrecognized OCR response", "bytes", len(raw))
		return "", ErrUnrecognizedResponse
	}
	return result.Text(), nil
}
