// Package mock provides test double implementations of AI service interfaces.
//
// MockEmbedder, MockCompleter and MockProvider let tests run without external
// model services. Behavior is injected through function fields:
//
//	embedder := mock.NewMockEmbedder()
//	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
//	    return nil, ai.ErrRateLimited
//	}
//
// # Default Behavior
//
//   - MockEmbedder: deterministic unit vectors derived from an FNV hash of the text
//   - MockCompleter: echoes the final message prefixed with "answer: "
//   - MockProvider: aggregates both
package mock
