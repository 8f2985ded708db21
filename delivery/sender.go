// Package delivery sends generated replies to end users over the messaging channel.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/poiesic/docreply/core"
)

// Default configuration values.
const (
	DefaultBaseURL = "https://api.11za.in"
	DefaultTimeout = 30 * time.Second

	sendMessagePath  = "/apis/sendMessage/sendMessages"
	sendTemplatePath = "/apis/template/sendTemplate"
)

// ErrRejected is returned when the provider refuses a message.
var ErrRejected = errors.New("message rejected by provider")

// Sender delivers a text message to a recipient using tenant credentials.
type Sender interface {
	Send(ctx context.Context, recipient, text string, creds core.Credentials) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, recipient, text string, creds core.Credentials) error

func (f SenderFunc) Send(ctx context.Context, recipient, text string, creds core.Credentials) error {
	return f(ctx, recipient, text, creds)
}

// Config holds configuration for the 11za sender.
type Config struct {
	// BaseURL is the API base URL (default: https://api.11za.in).
	BaseURL string

	// Timeout bounds each request (default: 30s).
	Timeout time.Duration
}

// ElevenzaSender delivers WhatsApp messages through the 11za API.
type ElevenzaSender struct {
	client  *http.Client
	baseURL string
	logger  *slog.Logger
}

var _ Sender = (*ElevenzaSender)(nil)

type messageRequest struct {
	SendTo        string `json:"sendto"`
	AuthToken     string `json:"authToken"`
	OriginWebsite string `json:"originWebsite"`
	ContentType   string `json:"contentType"`
	Text          string `json:"text"`
}

type templateRequest struct {
	SendTo        string            `json:"sendto"`
	AuthToken     string            `json:"authToken"`
	OriginWebsite string            `json:"originWebsite"`
	TemplateID    string            `json:"templateId"`
	Parameters    map[string]string `json:"parameters"`
}

// providerReply covers the fields 11za uses to report a failure.
type providerReply struct {
	Status  *bool  `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// NewElevenzaSender creates a sender. A nil logger uses slog.Default().
func NewElevenzaSender(cfg Config, logger *slog.Logger) *ElevenzaSender {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ElevenzaSender{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  logger.With("component", "delivery"),
	}
}

// Send posts a plain text message.
func (s *ElevenzaSender) Send(ctx context.Context, recipient, text string, creds core.Credentials) error {
	if !creds.Complete() {
		return core.ErrMissingCredentials
	}
	return s.post(ctx, sendMessagePath, messageRequest{
		SendTo:        recipient,
		AuthToken:     creds.AuthToken,
		OriginWebsite: creds.Origin,
		ContentType:   "text",
		Text:          text,
	})
}

// SendTemplate posts a pre-approved template message.
func (s *ElevenzaSender) SendTemplate(ctx context.Context, recipient, templateID string, params map[string]string, creds core.Credentials) error {
	if !creds.Complete() {
		return core.ErrMissingCredentials
	}
	if params == nil {
		params = map[string]string{}
	}
	return s.post(ctx, sendTemplatePath, templateRequest{
		SendTo:        recipient,
		AuthToken:     creds.AuthToken,
		OriginWebsite: creds.Origin,
		TemplateID:    templateID,
		Parameters:    params,
	})
}

func (s *ElevenzaSender) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var reply providerReply
	_ = json.Unmarshal(raw, &reply)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Warn("provider returned error status", "status", resp.StatusCode, "body", string(raw))
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, reply.reason(raw))
	}
	if reply.Status != nil && !*reply.Status {
		return fmt.Errorf("%w: %s", ErrRejected, reply.reason(raw))
	}
	return nil
}

func (r providerReply) reason(raw []byte) string {
	switch {
	case r.Error != "":
		return r.Error
	case r.Message != "":
		return r.Message
	}
	return strings.TrimSpace(string(raw))
}
