package mock

import (
	"context"
	"sync"

	"github.com/poiesic/docreply/ai"
)

// MockCompleter is a test double for ai.Completer.
type MockCompleter struct {
	// CompleteFunc is called by Complete if set.
	// If nil, Complete echoes the last message prefixed with "answer: ".
	CompleteFunc func(ctx context.Context, messages []ai.Message, opts ai.CompletionOptions) (string, error)

	mu       sync.Mutex
	calls    int
	lastMsgs []ai.Message
	lastOpts ai.CompletionOptions
}

// NewMockCompleter creates a mock completer with default echo behavior.
func NewMockCompleter() *MockCompleter {
	return &MockCompleter{}
}

// Complete records the request and returns the injected or default answer.
func (m *MockCompleter) Complete(ctx context.Context, messages []ai.Message, opts ai.CompletionOptions) (string, error) {
	m.mu.Lock()
	m.calls++
	m.lastMsgs = append([]ai.Message(nil), messages...)
	m.lastOpts = opts
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, messages, opts)
	}
	if len(messages) == 0 {
		return "", nil
	}
	return "answer: " + messages[len(messages)-1].Content, nil
}

// CallCount returns the number of Complete calls.
func (m *MockCompleter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastMessages returns the messages of the most recent call.
func (m *MockCompleter) LastMessages() []ai.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastMsgs
}

// LastOptions returns the options of the most recent call.
func (m *MockCompleter) LastOptions() ai.CompletionOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOpts
}
