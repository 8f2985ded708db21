package openai

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/poiesic/docreply/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Completer implements ai.Completer on top of a langchaingo chat model.
type Completer struct {
	client  llms.Model
	timeout time.Duration
	logger  *slog.Logger
}

func newCompleter(config *ai.Config, httpClient *http.Client) (*Completer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(clientOptions(httpClient,
		openai.WithBaseURL(config.CompletionHost),
		openai.WithToken(tokenOrNone(config.CompletionToken)),
		openai.WithModel(config.CompletionModel),
	)...)
	if err != nil {
		return nil, err
	}

	return &Completer{
		client:  client,
		timeout: config.RequestTimeout,
		logger:  slog.Default().With("component", "openai-completer"),
	}, nil
}

// NewCompleter creates a chat completion client for the configured host and model.
func NewCompleter(config *ai.Config) (ai.Completer, error) {
	return newCompleter(config, nil)
}

// Complete sends the messages and returns the first choice's content.
func (c *Completer) Complete(ctx context.Context, messages []ai.Message, opts ai.CompletionOptions) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.MessageContent{
			Role:  chatRole(m.Role),
			Parts: []llms.ContentPart{llms.TextPart(m.Content)},
		})
	}

	callOpts := []llms.CallOption{llms.WithTemperature(opts.Temperature)}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Debug("requesting completion", "messages", len(messages))
	response, err := c.client.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return "", classify(err)
	}
	if len(response.Choices) == 0 {
		return "", nil
	}
	return response.Choices[0].Content, nil
}

func chatRole(r ai.Role) llms.ChatMessageType {
	switch r {
	case ai.RoleSystem:
		return llms.ChatMessageTypeSystem
	case ai.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
