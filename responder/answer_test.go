package responder

import (
	"context"
	"testing"

	"github.com/poiesic/docreply/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswer(t *testing.T) {
	f := newFixture(t)
	f.seedTenant(t, tenantCreds, "You work for Acme.")
	r := f.responder(t)
	ctx := context.Background()

	answer, err := r.Answer(ctx, Question{SessionID: "s1", Text: "When do you open?", Phone: business})
	require.NoError(t, err)
	assert.Equal(t, "We open at nine.", answer.Text)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, "The shop opens at 9am.", answer.Sources[0].Text)
	assert.Empty(t, f.sender.Sent(), "web chat never delivers")

	_, err = r.Answer(ctx, Question{SessionID: "s1", Text: "And parking?"})
	require.NoError(t, err)

	msgs := f.completer.LastMessages()
	require.Len(t, msgs, 4, "system + previous exchange + latest")
	assert.Equal(t, "When do you open?", msgs[1].Content)
	assert.Equal(t, "We open at nine.", msgs[2].Content)

	transcript, err := r.Transcript(ctx, "s1", 50)
	require.NoError(t, err)
	require.Len(t, transcript, 4)
	assert.Equal(t, core.RoleUser, transcript[0].Role)
	assert.Equal(t, core.RoleAssistant, transcript[3].Role)
}

func TestAnswer_Validation(t *testing.T) {
	f := newFixture(t)
	r := f.responder(t)

	_, err := r.Answer(context.Background(), Question{Text: "hi"})
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = r.Answer(context.Background(), Question{SessionID: "s"})
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = r.Transcript(context.Background(), "", 10)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestAnswer_UnknownTenant(t *testing.T) {
	f := newFixture(t)
	r := f.responder(t)

	_, err := r.Answer(context.Background(), Question{SessionID: "s", Text: "hi", Phone: "000"})
	assert.ErrorIs(t, err, core.ErrNoDocuments)
}
