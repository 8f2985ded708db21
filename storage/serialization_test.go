package storage

import (
	"testing"
	"time"

	"github.com/poiesic/docreply/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalDocument(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	doc := core.Document{
		ID:          core.NewDocumentID(),
		Name:        "menu.pdf",
		Kind:        core.KindPDF,
		Credentials: core.Credentials{AuthToken: "tok", Origin: "shop.example"},
		Checksum:    core.Checksum("hello"),
		Status:      core.DocumentReady,
		ChunkCount:  3,
		CreatedAt:   now,
	}

	decoded, err := Unmarshal(DocumentMUS, Marshal(DocumentMUS, doc))
	require.NoError(t, err)
	assert.Equal(t, doc, *decoded)
}

func TestMarshalUnmarshalMappingRecord(t *testing.T) {
	rec := core.MappingRecord{
		ID:           18446744073709551615, // max uint64
		Kind:         core.MappingUnbound,
		Phone:        "+15550100",
		Intent:       "support",
		SystemPrompt: "be brief",
		Credentials:  core.Credentials{AuthToken: "tok"},
		CreatedAt:    time.Date(2025, 3, 1, 12, 0, 0, 123000, time.UTC),
	}

	decoded, err := Unmarshal(MappingRecordMUS, Marshal(MappingRecordMUS, rec))
	require.NoError(t, err)
	assert.Equal(t, rec, *decoded)
}

func TestMarshalUnmarshalConversationTurn(t *testing.T) {
	turn := core.ConversationTurn{
		ID:        42,
		Key:       core.PhoneKey("100", "200"),
		Role:      core.RoleAssistant,
		Content:   "hola",
		EventID:   "evt-1",
		Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	decoded, err := Unmarshal(ConversationTurnMUS, Marshal(ConversationTurnMUS, turn))
	require.NoError(t, err)
	assert.Equal(t, turn, *decoded)
}

func TestMarshalUnmarshalInboundEvent_ZeroRespondedAt(t *testing.T) {
	event := core.InboundEvent{
		ID:         "evt-1",
		From:       "200",
		To:         "100",
		Text:       "menu?",
		Kind:       core.EventInboundMessage,
		ReceivedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Status:     core.EventReceived,
	}

	decoded, err := Unmarshal(InboundEventMUS, Marshal(InboundEventMUS, event))
	require.NoError(t, err)
	assert.True(t, decoded.RespondedAt.IsZero())
	assert.Equal(t, event, *decoded)
}

func TestUnmarshal_Truncated(t *testing.T) {
	data := Marshal(DocumentMUS, core.Document{ID: "doc-1", Name: "menu.pdf"})

	_, err := Unmarshal(DocumentMUS, data[:len(data)-3])
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestUnmarshal_TrailingBytes(t *testing.T) {
	data := Marshal(VectorMUS, []float32{1, 2})

	_, err := Unmarshal(VectorMUS, append(data, 0))
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestMarshalUnmarshalVector(t *testing.T) {
	v := []float32{0, 1.5, -2.25, 3.125e-7}
	decoded, err := Unmarshal(VectorMUS, Marshal(VectorMUS, v))
	require.NoError(t, err)
	assert.Equal(t, v, *decoded)

	empty, err := Unmarshal(VectorMUS, Marshal(VectorMUS, nil))
	require.NoError(t, err)
	assert.Empty(t, *empty)
}
