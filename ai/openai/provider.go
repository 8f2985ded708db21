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

package openai

import (
	"log/slog"
	"net/http"

	"github.com/poiesic/docreply/ai"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider implements ai.AIProvider on OpenAI-compatible endpoints. The
// embedding and completion hosts may differ; both clients share one
// connection pool that Close drains.
type Provider struct {
	config     *ai.Config
	httpClient *http.Client
	embedder   *Embedder
	completer  *Completer
	logger     *slog.Logger
}

// NewProvider creates a new AI provider with OpenAI-compatible services.
// The config is validated and normalized before use.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	httpClient := &http.Client{Transport: transport}

	embedder, err := newEmbedder(config, httpClient)
	if err != nil {
		return nil, err
	}

	completer, err := newCompleter(config, httpClient)
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("component", "openai-provider")
	logger.Debug("provider ready",
		"embedding_host", config.EmbeddingHost,
		"embedding_model", config.EmbeddingModel,
		"completion_host", config.CompletionHost,
		"completion_model", config.CompletionModel)

	return &Provider{
		config:     config,
		httpClient: httpClient,
		embedder:   embedder,
		completer:  completer,
		logger:     logger,
	}, nil
}

// clientOptions prepends the shared HTTP client, when there is one.
func clientOptions(httpClient *http.Client, opts ...openai.Option) []openai.Option {
	if httpClient == nil {
		return opts
	}
	return append([]openai.Option{openai.WithHTTPClient(httpClient)}, opts...)
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Completer returns the chat completion service.
func (p *Provider) Completer() ai.Completer {
	return p.completer
}

// Close drops idle connections to both hosts. In-flight calls finish
// normally.
func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider")
	p.httpClient.CloseIdleConnections()
	return nil
}
