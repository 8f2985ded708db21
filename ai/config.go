// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ai

import (
	"errors"
	"strings"
	"time"
)

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "https://api.mistral.ai/v1"
	EmbeddingHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	EmbeddingModel string

	// EmbeddingToken is the API key for the embedding service.
	// Local OpenAI-compatible servers accept any value.
	EmbeddingToken string

	// CompletionHost is the base URL for the chat completion service API.
	// Example: "https://api.groq.com/openai/v1"
	CompletionHost string

	// CompletionModel is the model identifier used to generate answers.
	CompletionModel string

	// CompletionToken is the API key for the completion service.
	CompletionToken string

	// Temperature is the sampling temperature for answers.
	// Default: 0.2
	Temperature float64

	// MaxTokens caps answer length.
	// Default: 500
	MaxTokens int

	// RequestTimeout bounds every embedding and completion call.
	// Default: 30s
	RequestTimeout time.Duration
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithCompletionHost sets the completion service host URL.
func WithCompletionHost(host string) ConfigOption {
	return func(c *Config) {
		c.CompletionHost = host
	}
}

// WithHost sets both embedding and completion hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.CompletionHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithCompletionModel sets the completion model identifier.
func WithCompletionModel(model string) ConfigOption {
	return func(c *Config) {
		c.CompletionModel = model
	}
}

// WithEmbeddingToken sets the embedding API key.
func WithEmbeddingToken(token string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingToken = token
	}
}

// WithCompletionToken sets the completion API key.
func WithCompletionToken(token string) ConfigOption {
	return func(c *Config) {
		c.CompletionToken = token
	}
}

// WithTemperature sets the answer sampling temperature.
func WithTemperature(t float64) ConfigOption {
	return func(c *Config) {
		c.Temperature = t
	}
}

// WithMaxTokens sets the answer length cap.
func WithMaxTokens(n int) ConfigOption {
	return func(c *Config) {
		c.MaxTokens = n
	}
}

// WithRequestTimeout sets the per-call timeout.
func WithRequestTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.RequestTimeout = d
	}
}

// DefaultConfig returns a Config pointing at the hosted embedding and
// completion providers the service was built against.
func DefaultConfig() *Config {
	return &Config{
		EmbeddingHost:   "https://api.mistral.ai/v1",
		EmbeddingModel:  "mistral-embed",
		CompletionHost:  "https://api.groq.com/openai/v1",
		CompletionModel: "llama-3.3-70b-versatile",
		Temperature:     0.2,
		MaxTokens:       500,
		RequestTimeout:  30 * time.Second,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://localhost:11434/v1"),
//	    WithEmbeddingModel("nomic-embed-text"),
//	    WithCompletionModel("qwen2.5:3b"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It adds the /v1 suffix to hosts if missing, which OpenAI-compatible APIs expect.
func (c *Config) Normalize() {
	c.EmbeddingHost = normalizeHost(c.EmbeddingHost)
	c.CompletionHost = normalizeHost(c.CompletionHost)
}

func normalizeHost(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.CompletionHost == "" {
		return errors.New("ai config: CompletionHost is required")
	}
	if c.CompletionModel == "" {
		return errors.New("ai config: CompletionModel is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("ai config: Temperature must be between 0 and 2")
	}
	if c.MaxTokens < 0 {
		return errors.New("ai config: MaxTokens cannot be negative")
	}
	if c.RequestTimeout < 0 {
		return errors.New("ai config: RequestTimeout cannot be negative")
	}
	return nil
}
