package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/poiesic/docreply/core"
	"github.com/poiesic/docreply/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return New(db), mock
}

func q(s string) string {
	return regexp.QuoteMeta(s)
}

var documentCols = []string{"id", "name", "kind", "auth_token", "origin", "checksum", "status", "chunk_count", "created_at"}

func TestCreateDocument(t *testing.T) {
	store, mock := newMockStore(t)
	doc := &core.Document{ID: "doc-1", Name: "menu.pdf", Kind: core.KindPDF}

	mock.ExpectExec(q("INSERT INTO rag_files")).
		WithArgs("doc-1", "menu.pdf", "pdf", "", "", "", "pending", 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.CreateDocument(context.Background(), doc))
	assert.Equal(t, core.DocumentPending, doc.Status)
	assert.False(t, doc.CreatedAt.IsZero())
}

func TestCreateDocument_Duplicate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(q("INSERT INTO rag_files")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "rag_files_pkey"})

	err := store.CreateDocument(context.Background(), &core.Document{ID: "doc-1"})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestGetDocument(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q("FROM rag_files WHERE id = $1")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows(documentCols).
			AddRow("doc-1", "menu.pdf", "pdf", "tok", "shop", "abc", "ready", 4, created))

	doc, err := store.GetDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, core.DocumentReady, doc.Status)
	assert.Equal(t, core.Credentials{AuthToken: "tok", Origin: "shop"}, doc.Credentials)
	assert.Equal(t, 4, doc.ChunkCount)

	mock.ExpectQuery(q("FROM rag_files WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(documentCols))

	_, err = store.GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteDocument(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("DELETE FROM rag_files WHERE id = $1")).WithArgs("doc-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("DELETE FROM phone_document_mapping WHERE file_id = $1")).WithArgs("doc-1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, store.DeleteDocument(context.Background(), "doc-1"))
}

func TestDeleteDocument_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("DELETE FROM rag_files WHERE id = $1")).WithArgs("nope").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	assert.ErrorIs(t, store.DeleteDocument(context.Background(), "nope"), storage.ErrNotFound)
}

func TestCommitChunks(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT status FROM rag_files WHERE id = $1 FOR UPDATE")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
	prep := mock.ExpectPrepare(q("INSERT INTO rag_chunks"))
	prep.ExpectExec().WithArgs("doc-1", 0, "first", "[1,0]").WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("doc-1", 1, "second", "[0,0.5]").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("UPDATE rag_files SET status = $2, chunk_count = $3 WHERE id = $1")).
		WithArgs("doc-1", "ready", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.CommitChunks(context.Background(), "doc-1", []core.Chunk{
		{Text: "first", Vector: []float32{1, 0}},
		{Text: "second", Vector: []float32{0, 0.5}},
	})
	require.NoError(t, err)
}

func TestCommitChunks_RollsBackOnFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
	prep := mock.ExpectPrepare(q("INSERT INTO rag_chunks"))
	prep.ExpectExec().WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := store.CommitChunks(context.Background(), "doc-1", []core.Chunk{{Text: "a", Vector: []float32{1}}})
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.ErrorContains(t, err, "chunk 1")
}

func TestCommitChunks_MissingDocument(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).WithArgs("gone").WillReturnRows(sqlmock.NewRows([]string{"status"}))
	mock.ExpectRollback()

	err := store.CommitChunks(context.Background(), "gone", nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDocumentChunks(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(q("SELECT status FROM rag_files WHERE id = $1")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("ready"))
	mock.ExpectQuery(q("FROM rag_chunks WHERE file_id = $1 ORDER BY ordinal")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"ordinal", "chunk", "embedding"}).
			AddRow(0, "first", "[1,0]").
			AddRow(1, "second", "[0,0.5]"))

	chunks, err := store.DocumentChunks(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, core.Chunk{DocumentID: "doc-1", Ordinal: 1, Text: "second", Vector: []float32{0, 0.5}}, chunks[1])

	mock.ExpectQuery(q("SELECT status FROM rag_files WHERE id = $1")).
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	_, err = store.DocumentChunks(context.Background(), "gone")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateVectors(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT chunk_count FROM rag_files WHERE id = $1 FOR UPDATE")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"chunk_count"}).AddRow(2))
	prep := mock.ExpectPrepare(q("UPDATE rag_chunks SET embedding"))
	prep.ExpectExec().WithArgs("doc-1", 0, "[0,1]").WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("doc-1", 1, "[1,0]").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.UpdateVectors(context.Background(), "doc-1", [][]float32{{0, 1}, {1, 0}}))
}

func TestUpdateVectors_CountMismatch(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"chunk_count"}).AddRow(3))
	mock.ExpectRollback()

	err := store.UpdateVectors(context.Background(), "doc-1", [][]float32{{1}})
	assert.ErrorIs(t, err, storage.ErrChunkCountMismatch)
}

var chunkCols = []string{"file_id", "ordinal", "chunk", "embedding", "similarity"}

func TestFindSimilar_Scoped(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(q("c.file_id = ANY($3)")).
		WithArgs("[1,0]", 2, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(chunkCols).
			AddRow("doc-a", 0, "alpha", "[0.9,0.1]", 0.9).
			AddRow("doc-a", 2, "gamma", "[0.8,0.2]", 0.8))

	results, err := store.FindSimilar(context.Background(), []float32{1, 0}, core.DocumentScope("doc-a"), 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "alpha", results[0].Text)
	assert.InDelta(t, 0.9, results[0].Score, 1e-6)
	assert.Equal(t, 2, results[1].Ordinal)
	assert.Equal(t, []float32{0.8, 0.2}, results[1].Vector)
}

func TestFindSimilar_AllAndEmpty(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(q("WHERE f.status = 'ready'")).
		WithArgs("[1,0]", 5).
		WillReturnRows(sqlmock.NewRows(chunkCols))

	results, err := store.FindSimilar(context.Background(), []float32{1, 0}, core.AllDocuments(), 5)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestFindSimilar_InvalidQuery(t *testing.T) {
	store, _ := newMockStore(t)

	_, err := store.FindSimilar(context.Background(), []float32{1}, core.DocumentScope(), 5)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)

	_, err = store.FindSimilar(context.Background(), []float32{1}, core.AllDocuments(), 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

var mappingCols = []string{"id", "phone_number", "file_id", "intent", "system_prompt", "auth_token", "origin", "created_at"}

func TestMappingsByPhone(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(q("WHERE phone_number = $1 ORDER BY id")).
		WithArgs("+911").
		WillReturnRows(sqlmock.NewRows(mappingCols).
			AddRow(1, "+911", nil, "sales", "be nice", "", "", now).
			AddRow(2, "+911", "doc-1", "sales", "be nice", "tok", "shop", now))

	mappings, err := store.MappingsByPhone(context.Background(), "+911")
	require.NoError(t, err)
	require.Len(t, mappings, 2)

	unbound, ok := mappings[0].(core.UnboundMapping)
	require.True(t, ok)
	assert.Equal(t, "be nice", unbound.SystemPrompt)

	bound, ok := mappings[1].(core.BoundMapping)
	require.True(t, ok)
	assert.Equal(t, core.DocumentID("doc-1"), bound.DocumentID)
	assert.Equal(t, "tok", bound.Credentials.AuthToken)
}

func TestAddMapping(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(q("INSERT INTO phone_document_mapping")).
		WithArgs("+911", "doc-1", "sales", "", "tok", "shop", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	m, err := store.AddMapping(context.Background(), core.BoundMapping{
		Phone:       "+911",
		DocumentID:  "doc-1",
		Intent:      "sales",
		Credentials: core.Credentials{AuthToken: "tok", Origin: "shop"},
	})
	require.NoError(t, err)
	assert.Equal(t, core.ID(7), m.MappingID())
	_, ok := m.(core.BoundMapping)
	assert.True(t, ok)
}

func TestSaveMapping_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(q("UPDATE phone_document_mapping")).
		WithArgs(9, "+1", nil, "", "", "", "").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.SaveMapping(context.Background(), core.UnboundMapping{ID: 9, Phone: "+1"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBindMapping(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(q("WHERE id = $1 AND phone_number = $2 AND file_id IS NULL")).
		WithArgs(7, "+1", "doc-1", "sales", "", "tok", "shop").
		WillReturnResult(sqlmock.NewResult(0, 1))

	placeholder := core.UnboundMapping{ID: 7, Phone: "+1", Intent: "sales"}
	err := store.BindMapping(context.Background(), placeholder.Bind("doc-1", core.Credentials{AuthToken: "tok", Origin: "shop"}, ""))
	require.NoError(t, err)
}

func TestBindMapping_AlreadyBound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(q("file_id IS NULL")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT file_id IS NOT NULL FROM phone_document_mapping WHERE id = $1")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"bound"}).AddRow(true))

	placeholder := core.UnboundMapping{ID: 7, Phone: "+1"}
	err := store.BindMapping(context.Background(), placeholder.Bind("doc-2", core.Credentials{}, ""))
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestBindMapping_Missing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(q("file_id IS NULL")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT file_id IS NOT NULL")).
		WithArgs(7).
		WillReturnError(sql.ErrNoRows)

	placeholder := core.UnboundMapping{ID: 7, Phone: "+1"}
	err := store.BindMapping(context.Background(), placeholder.Bind("doc-2", core.Credentials{}, ""))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRecentTurns_Chronological(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	key := core.PhoneKey("+1", "+2")

	mock.ExpectQuery(q("ORDER BY id DESC")).
		WithArgs("", "+1", "+2", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "role", "content", "event_id", "created_at"}).
			AddRow(9, "assistant", "newest", "", now).
			AddRow(8, "user", "older", "wamid.8", now.Add(-time.Minute)))

	turns, err := store.RecentTurns(context.Background(), key, 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "older", turns[0].Content)
	assert.Equal(t, "newest", turns[1].Content)
	assert.Equal(t, key, turns[0].Key)
}

func TestAppendTurn(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(q("INSERT INTO messages")).
		WithArgs("sess", "", "", "user", "hi", "", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	turn := &core.ConversationTurn{Key: core.SessionKey("sess"), Role: core.RoleUser, Content: "hi"}
	require.NoError(t, store.AppendTurn(context.Background(), turn))
	assert.Equal(t, core.ID(42), turn.ID)
}

func TestAddEvent(t *testing.T) {
	store, mock := newMockStore(t)
	event := &core.InboundEvent{ID: "wamid.1", From: "+2", To: "+1", Text: "hi", Kind: core.EventInboundMessage}

	mock.ExpectExec(q("ON CONFLICT (message_id) DO NOTHING")).
		WithArgs("wamid.1", "+2", "+1", "hi", "MoMessage", "", "received", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.AddEvent(context.Background(), event))

	mock.ExpectExec(q("ON CONFLICT (message_id) DO NOTHING")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, store.AddEvent(context.Background(), event), storage.ErrDuplicateKey)
}

func TestMarkEvent(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(q("UPDATE whatsapp_messages")).
		WithArgs("wamid.1", "responded", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.MarkEvent(context.Background(), "wamid.1", core.EventResponded, at))

	mock.ExpectExec(q("UPDATE whatsapp_messages")).
		WithArgs("missing", "attempted_not_sent", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := store.MarkEvent(context.Background(), "missing", core.EventAttemptedNotSent, at)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFindSimilar_MalformedEmbedding(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(q("WHERE f.status = 'ready'")).
		WithArgs("[1,-2.5,0.125]", 1).
		WillReturnRows(sqlmock.NewRows(chunkCols).AddRow("doc-a", 0, "alpha", "[a]", 0.5))

	_, err := store.FindSimilar(context.Background(), []float32{1, -2.5, 0.125}, core.AllDocuments(), 1)
	assert.ErrorContains(t, err, "scanning chunk")
}
