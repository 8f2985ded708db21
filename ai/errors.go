package ai

import "errors"

var (
	// ErrRateLimited marks a provider throttling response (HTTP 429 or an
	// equivalent quota signal). Implementations wrap provider errors with it
	// so callers can decide whether to back off.
	ErrRateLimited = errors.New("provider rate limit exceeded")

	// ErrProviderRequired is returned when a nil provider is supplied.
	ErrProviderRequired = errors.New("AI provider required")
)
