package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in one request.
	// The returned slice contains embeddings in the same order as the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Role is the author of a prompt message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat-style prompt.
type Message struct {
	Role    Role
	Content string
}

// CompletionOptions tune a single completion request.
type CompletionOptions struct {
	Temperature float64
	// MaxTokens caps the response length. Zero leaves the provider default.
	MaxTokens int
}

// Completer turns a chat-style prompt into a model response.
// Implementations must be thread-safe for concurrent use.
type Completer interface {
	// Complete returns the text of the first choice. An empty string is a
	// valid provider response; callers decide whether that is an error.
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Completer returns the chat completion service.
	Completer() Completer

	// Close releases resources held by the provider and its services.
	Close() error
}
