package core

import (
	"encoding/hex"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// ID is a storage-assigned sequential identifier.
type ID uint64

// DocumentID identifies a Document. It is a UUID string.
type DocumentID string

// NewDocumentID returns a fresh random document identifier.
func NewDocumentID() DocumentID {
	return DocumentID(uuid.NewString())
}

// Checksum returns a hex BLAKE2b-256 digest of text. Identical extracted text
// produces identical checksums; ingestion uses this to flag re-uploads.
func Checksum(text string) string {
	h, _ := blake2b.New(32, nil)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Kind is the content kind of an uploaded document.
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
)

// Credentials are the opaque per-tenant delivery credentials.
type Credentials struct {
	AuthToken string `json:"auth_token,omitempty"`
	Origin    string `json:"origin,omitempty"`
}

// Complete reports whether both the token and the origin are present.
func (c Credentials) Complete() bool {
	return c.AuthToken != "" && c.Origin != ""
}

// DocumentStatus tracks whether a document's chunk set is visible to retrieval.
type DocumentStatus string

const (
	// DocumentPending documents exist but their chunks are not yet committed.
	DocumentPending DocumentStatus = "pending"
	// DocumentReady documents have a fully committed chunk set.
	DocumentReady DocumentStatus = "ready"
)

// Document is an ingested source file.
type Document struct {
	ID          DocumentID     `json:"id"`
	Name        string         `json:"name"`
	Kind        Kind           `json:"kind"`
	Credentials Credentials    `json:"credentials"`
	Checksum    string         `json:"checksum,omitempty"`
	Status      DocumentStatus `json:"status"`
	ChunkCount  int            `json:"chunk_count"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Chunk is a bounded slice of a document's text together with its embedding.
// Chunks are immutable once written.
type Chunk struct {
	DocumentID DocumentID `json:"document_id"`
	Ordinal    int        `json:"ordinal"`
	Text       string     `json:"text"`
	Vector     []float32  `json:"vector"`
}

// ScoredChunk is a retrieval hit.
type ScoredChunk struct {
	Chunk
	Score float32 `json:"score"`
}

// Scope restricts retrieval to a set of documents.
// The zero value matches nothing; use AllDocuments or DocumentScope.
type Scope struct {
	all bool
	ids []DocumentID
}

// AllDocuments returns a scope covering every ready document.
func AllDocuments() Scope {
	return Scope{all: true}
}

// DocumentScope returns a scope restricted to the given documents.
// Duplicate identifiers are collapsed, first occurrence wins.
func DocumentScope(ids ...DocumentID) Scope {
	seen := make(map[DocumentID]struct{}, len(ids))
	out := make([]DocumentID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return Scope{ids: out}
}

// All reports whether the scope covers every document.
func (s Scope) All() bool {
	return s.all
}

// DocumentIDs returns the explicit document set. It is nil for AllDocuments.
func (s Scope) DocumentIDs() []DocumentID {
	return s.ids
}

// Contains reports whether a document is inside the scope.
func (s Scope) Contains(id DocumentID) bool {
	if s.all {
		return true
	}
	for _, candidate := range s.ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// Role identifies who authored a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationKey scopes a conversation either to a web chat session or to a
// business/counterpart phone pair on the messaging channel.
type ConversationKey struct {
	SessionID   string `json:"session_id,omitempty"`
	Business    string `json:"business,omitempty"`
	Counterpart string `json:"counterpart,omitempty"`
}

// SessionKey returns the key for a web chat session.
func SessionKey(sessionID string) ConversationKey {
	return ConversationKey{SessionID: sessionID}
}

// PhoneKey returns the key for a messaging-channel conversation.
func PhoneKey(business, counterpart string) ConversationKey {
	return ConversationKey{Business: business, Counterpart: counterpart}
}

// String renders the key in a stable form suitable for storage keys.
func (k ConversationKey) String() string {
	if k.SessionID != "" {
		return "s/" + k.SessionID
	}
	return "p/" + k.Business + "/" + k.Counterpart
}

// ConversationTurn is a single logged message. Turns are append-only.
type ConversationTurn struct {
	ID        ID              `json:"id"`
	Key       ConversationKey `json:"key"`
	Role      Role            `json:"role"`
	Content   string          `json:"content"`
	EventID   string          `json:"event_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventKind is the upstream channel's event type.
type EventKind string

const (
	// EventInboundMessage is a message sent by an end user to the business number.
	EventInboundMessage EventKind = "MoMessage"
	// EventOutboundMessage is a message sent by the business number.
	EventOutboundMessage EventKind = "MtMessage"
)

// IsMessage reports whether the kind carries conversational text.
func (k EventKind) IsMessage() bool {
	return k == EventInboundMessage || k == EventOutboundMessage
}

// EventStatus records what happened to an inbound event after it was claimed.
type EventStatus string

const (
	EventReceived         EventStatus = "received"
	EventResponded        EventStatus = "responded"
	EventAttemptedNotSent EventStatus = "attempted_not_sent"
)

// InboundEvent is an externally delivered message that must be processed at
// most once. ID is assigned by the upstream channel.
type InboundEvent struct {
	ID          string      `json:"id"`
	From        string      `json:"from"`
	To          string      `json:"to"`
	Text        string      `json:"text"`
	Kind        EventKind   `json:"kind"`
	SenderName  string      `json:"sender_name,omitempty"`
	ReceivedAt  time.Time   `json:"received_at"`
	Status      EventStatus `json:"status"`
	RespondedAt time.Time   `json:"responded_at,omitzero"`
}
