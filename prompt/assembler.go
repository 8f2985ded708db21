package prompt

import (
	"strings"

	"github.com/poiesic/docreply/ai"
	"github.com/poiesic/docreply/core"
)

const (
	// DefaultHistoryLimit is the number of prior turns kept in a prompt.
	DefaultHistoryLimit = 10

	// DefaultPersona is used when a tenant has no custom system prompt.
	DefaultPersona = "You are a helpful WhatsApp assistant. Your ONLY job is to answer questions based strictly on the provided document context."

	// GroundingRules are appended to every system prompt.
	GroundingRules = "STRICT RULES:\n" +
		"- ONLY answer questions using information from the CONTEXT below\n" +
		"- If the answer is not in the CONTEXT, say \"I don't have that information in the document\"\n" +
		"- NEVER use your general knowledge or make assumptions beyond the document\n" +
		"- NEVER offer to do tasks you cannot do (generate files, make calls, etc.)\n" +
		"- Be concise and friendly - keep responses under 300 words\n" +
		"- Use clear, simple language appropriate for WhatsApp chat\n" +
		"- Format responses with line breaks for readability"

	// NoContext replaces the context block when retrieval found nothing.
	NoContext = "No relevant context found in the documents."

	chunkSeparator = "\n\n"
)

// Assembler builds the message list for a generation call.
type Assembler struct {
	historyLimit int
	persona      string
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithHistoryLimit caps the number of prior turns. Values below zero are
// treated as zero.
func WithHistoryLimit(n int) Option {
	return func(a *Assembler) {
		a.historyLimit = max(n, 0)
	}
}

// WithPersona replaces DefaultPersona.
func WithPersona(persona string) Option {
	return func(a *Assembler) {
		if persona != "" {
			a.persona = persona
		}
	}
}

// NewAssembler creates an assembler.
func NewAssembler(opts ...Option) *Assembler {
	a := &Assembler{
		historyLimit: DefaultHistoryLimit,
		persona:      DefaultPersona,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble returns the system message, the retained history window oldest
// first, and the latest user message. history must be in chronological order.
func (a *Assembler) Assemble(chunks []core.ScoredChunk, history []core.ConversationTurn, systemPrompt, latest string) []ai.Message {
	window := history
	if len(window) > a.historyLimit {
		window = window[len(window)-a.historyLimit:]
	}

	messages := make([]ai.Message, 0, len(window)+2)
	messages = append(messages, ai.Message{
		Role:    ai.RoleSystem,
		Content: a.SystemMessage(systemPrompt, chunks),
	})
	for _, turn := range window {
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		messages = append(messages, ai.Message{Role: roleOf(turn.Role), Content: turn.Content})
	}
	messages = append(messages, ai.Message{Role: ai.RoleUser, Content: latest})
	return messages
}

// SystemMessage renders the system instruction with its context block.
func (a *Assembler) SystemMessage(systemPrompt string, chunks []core.ScoredChunk) string {
	persona := strings.TrimSpace(systemPrompt)
	if persona == "" {
		persona = a.persona
	}

	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")
	b.WriteString(GroundingRules)
	b.WriteString("\n\nCONTEXT:\n")
	b.WriteString(Context(chunks))
	return b.String()
}

// Context joins chunk texts with a blank line, or returns NoContext.
func Context(chunks []core.ScoredChunk) string {
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if t := strings.TrimSpace(c.Text); t != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		return NoContext
	}
	return strings.Join(texts, chunkSeparator)
}

func roleOf(r core.Role) ai.Role {
	if r == core.RoleAssistant {
		return ai.RoleAssistant
	}
	return ai.RoleUser
}
