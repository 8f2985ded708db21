package responder

import (
	"context"
	"fmt"
	"strings"

	"github.com/poiesic/docreply/core"
)

// Question is a web chat message.
type Question struct {
	SessionID string
	Text      string
	// Phone scopes retrieval to a tenant's documents and prompt. Empty
	// searches every document.
	Phone string
}

// Answer is the reply to a web chat message.
type Answer struct {
	Text    string             `json:"text"`
	Sources []core.ScoredChunk `json:"sources"`
}

// Answer replies to a web chat message. Both the question and the answer are
// stored under the session; nothing is delivered.
func (r *Responder) Answer(ctx context.Context, q Question) (Answer, error) {
	if strings.TrimSpace(q.SessionID) == "" {
		return Answer{}, &core.ValidationError{Field: "session id", Reason: "is required"}
	}
	if strings.TrimSpace(q.Text) == "" {
		return Answer{}, &core.ValidationError{Field: "text", Reason: "is required"}
	}
	logger := r.logger.With("session_id", q.SessionID, "phone", q.Phone)
	key := core.SessionKey(q.SessionID)

	scope := core.AllDocuments()
	var systemPrompt string
	if q.Phone != "" {
		mappings, err := r.deps.Mappings.MappingsByPhone(ctx, q.Phone)
		if err != nil {
			return Answer{}, fmt.Errorf("load tenant: %w", err)
		}
		tenant := core.ResolveTenant(q.Phone, mappings)
		if len(tenant.Documents) == 0 {
			return Answer{}, core.ErrNoDocuments
		}
		scope = core.DocumentScope(tenant.Documents...)
		systemPrompt = tenant.SystemPrompt
	}

	history, err := r.history(ctx, key, "")
	if err != nil {
		logger.Warn("error loading history", "err", err)
	}

	vector, err := r.deps.Embedder.Embed(ctx, q.Text)
	if err != nil {
		logger.Error("error embedding question", "err", err)
		return Answer{}, fmt.Errorf("embed question: %w", err)
	}
	chunks, err := r.deps.Retriever.Retrieve(ctx, vector, scope, r.k)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve context: %w", err)
	}

	reply, err := r.generate(ctx, r.assembler.Assemble(chunks, history, systemPrompt, q.Text))
	if err != nil {
		logger.Error("error generating answer", "err", err)
		return Answer{}, err
	}

	now := r.now()
	for _, turn := range []*core.ConversationTurn{
		{Key: key, Role: core.RoleUser, Content: q.Text, Timestamp: now},
		{Key: key, Role: core.RoleAssistant, Content: reply, Timestamp: now},
	} {
		if err := r.deps.Conversations.AppendTurn(ctx, turn); err != nil {
			logger.Error("error saving chat turn", "err", err)
		}
	}

	return Answer{Text: reply, Sources: chunks}, nil
}

// Transcript returns up to limit of the most recent turns of a web chat
// session, oldest first.
func (r *Responder) Transcript(ctx context.Context, sessionID string, limit int) ([]core.ConversationTurn, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, &core.ValidationError{Field: "session id", Reason: "is required"}
	}
	return r.deps.Conversations.RecentTurns(ctx, core.SessionKey(sessionID), limit)
}
