package mock

import (
	"context"
	"math"
	"testing"

	"github.com/poiesic/docreply/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorDeterministicUnit(t *testing.T) {
	a := Vector("hello", 16)
	b := Vector("hello", 16)
	c := Vector("world", 16)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestMockEmbedderDefaults(t *testing.T) {
	m := NewMockEmbedder()
	ctx := context.Background()

	v, err := m.EmbedText(ctx, "x")
	require.NoError(t, err)
	assert.Len(t, v, DefaultDimension)

	vs, err := m.EmbedTexts(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vs, 2)
	assert.Equal(t, 2, m.CallCount())

	m.Reset()
	assert.Equal(t, 0, m.CallCount())
}

func TestMockCompleterRecords(t *testing.T) {
	m := NewMockCompleter()
	msgs := []ai.Message{{Role: ai.RoleSystem, Content: "s"}, {Role: ai.RoleUser, Content: "q"}}

	out, err := m.Complete(context.Background(), msgs, ai.CompletionOptions{Temperature: 0.2, MaxTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, "answer: q", out)
	assert.Equal(t, 1, m.CallCount())
	assert.Equal(t, msgs, m.LastMessages())
	assert.Equal(t, 10, m.LastOptions().MaxTokens)
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider()
	var _ ai.AIProvider = p

	assert.Same(t, p.GetMockEmbedder(), p.Embedder())
	assert.Same(t, p.GetMockCompleter(), p.Completer())
	require.NoError(t, p.Close())
	assert.True(t, p.Closed())
}
