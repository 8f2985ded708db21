package openai

import (
	"fmt"

	"github.com/poiesic/docreply/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// classify wraps throttling errors with ai.ErrRateLimited and returns
// everything else unchanged. langchaingo's openai error mapper decides what
// counts as throttling.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if mapped := openai.MapError(err); llms.IsRateLimitError(mapped) {
		return fmt.Errorf("%w: %w", ai.ErrRateLimited, mapped)
	}
	return err
}
