package responder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/docreply/ai"
	"github.com/poiesic/docreply/ai/mock"
	"github.com/poiesic/docreply/core"
	"github.com/poiesic/docreply/metrics"
	"github.com/poiesic/docreply/retrieval"
	"github.com/poiesic/docreply/storage/badger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	business = "15550001111"
	customer = "15559998888"
)

var tenantCreds = core.Credentials{AuthToken: "tok", Origin: "https://shop.example"}

type embedFunc func(ctx context.Context, text string) ([]float32, error)

func (f embedFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

func fixedEmbedder() embedFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	}
}

type sent struct {
	to, text string
	creds    core.Credentials
}

// recordingSender captures deliveries and fails when err is set
type recordingSender struct {
	mu   sync.Mutex
	err  error
	sent []sent
}

func (s *recordingSender) Send(ctx context.Context, recipient, text string, creds core.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sent{recipient, text, creds})
	return nil
}

func (s *recordingSender) Sent() []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sent(nil), s.sent...)
}

type fixture struct {
	store     *badger.Store
	completer *mock.MockCompleter
	sender    *recordingSender
	embedder  embedFunc
	metrics   *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	completer := mock.NewMockCompleter()
	completer.CompleteFunc = func(ctx context.Context, messages []ai.Message, opts ai.CompletionOptions) (string, error) {
		return "We open at nine.", nil
	}
	return &fixture{
		store:     store,
		completer: completer,
		sender:    &recordingSender{},
		embedder:  fixedEmbedder(),
		metrics:   metrics.New(),
	}
}

func (f *fixture) responder(t *testing.T, opts ...Option) *Responder {
	t.Helper()
	retriever, err := retrieval.NewRetriever(f.store)
	require.NoError(t, err)
	all := append([]Option{WithMetrics(f.metrics)}, opts...)
	r, err := NewResponder(Dependencies{
		Events:        f.store,
		Mappings:      f.store,
		Conversations: f.store,
		Embedder:      f.embedder,
		Retriever:     retriever,
		Completer:     f.completer,
		Sender:        f.sender,
	}, all...)
	require.NoError(t, err)
	t.Cleanup(r.Release)
	return r
}

// seedTenant stores a ready document and binds it to the business number.
func (f *fixture) seedTenant(t *testing.T, creds core.Credentials, prompt string) core.DocumentID {
	t.Helper()
	ctx := context.Background()
	doc := &core.Document{ID: core.NewDocumentID(), Name: "hours.pdf", Kind: core.KindPDF}
	require.NoError(t, f.store.CreateDocument(ctx, doc))
	require.NoError(t, f.store.CommitChunks(ctx, doc.ID, []core.Chunk{
		{Text: "The shop opens at 9am.", Vector: []float32{1, 0, 0}},
		{Text: "Parking is free.", Vector: []float32{0, 1, 0}},
	}))
	_, err := f.store.AddMapping(ctx, core.BoundMapping{
		Phone:        business,
		DocumentID:   doc.ID,
		SystemPrompt: prompt,
		Credentials:  creds,
	})
	require.NoError(t, err)
	return doc.ID
}

func inbound(id, text string) *core.InboundEvent {
	return &core.InboundEvent{
		ID:         id,
		From:       customer,
		To:         business,
		Text:       text,
		Kind:       core.EventInboundMessage,
		ReceivedAt: time.Now().UTC(),
	}
}

func TestNewResponder_MissingDependencies(t *testing.T) {
	f := newFixture(t)
	retriever, err := retrieval.NewRetriever(f.store)
	require.NoError(t, err)
	full := Dependencies{
		Events: f.store, Mappings: f.store, Conversations: f.store,
		Embedder: f.embedder, Retriever: retriever, Completer: f.completer, Sender: f.sender,
	}

	cases := []struct {
		name   string
		mutate func(*Dependencies)
		want   error
	}{
		{"events", func(d *Dependencies) { d.Events = nil }, ErrEventRepositoryRequired},
		{"mappings", func(d *Dependencies) { d.Mappings = nil }, ErrMappingRepositoryRequired},
		{"conversations", func(d *Dependencies) { d.Conversations = nil }, ErrConversationRepositoryRequired},
		{"embedder", func(d *Dependencies) { d.Embedder = nil }, ErrEmbedderRequired},
		{"retriever", func(d *Dependencies) { d.Retriever = nil }, ErrRetrieverRequired},
		{"completer", func(d *Dependencies) { d.Completer = nil }, ErrCompleterRequired},
		{"sender", func(d *Dependencies) { d.Sender = nil }, ErrSenderRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			deps := full
			tc.mutate(&deps)
			_, err := NewResponder(deps)
			assert.Equal(t, tc.want, err)
		})
	}

	_, err = NewResponder(full, WithK(0))
	assert.ErrorIs(t, err, retrieval.ErrInvalidLimit)
}

func TestRespond_Delivered(t *testing.T) {
	f := newFixture(t)
	f.seedTenant(t, tenantCreds, "You work for Acme.")
	r := f.responder(t)
	ctx := context.Background()

	result, err := r.Respond(ctx, inbound("m1", "When do you open?"))
	require.NoError(t, err)
	assert.Equal(t, Result{Outcome: OutcomeDelivered, Delivered: true, ResponseText: "We open at nine."}, result)

	sent := f.sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, customer, sent[0].to)
	assert.Equal(t, "We open at nine.", sent[0].text)
	assert.Equal(t, tenantCreds, sent[0].creds)

	msgs := f.completer.LastMessages()
	require.Len(t, msgs, 2)
	assert.True(t, strings.HasPrefix(msgs[0].Content, "You work for Acme."))
	assert.Contains(t, msgs[0].Content, "The shop opens at 9am.")
	assert.Equal(t, "When do you open?", msgs[1].Content)
	assert.Equal(t, ai.CompletionOptions{Temperature: 0.2, MaxTokens: 500}, f.completer.LastOptions())

	event, err := f.store.GetEvent(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, core.EventResponded, event.Status)
	assert.False(t, event.RespondedAt.IsZero())

	turns, err := f.store.RecentTurns(ctx, core.PhoneKey(business, customer), 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, core.RoleUser, turns[0].Role)
	assert.Equal(t, "m1", turns[0].EventID)
	assert.Equal(t, core.RoleAssistant, turns[1].Role)
	assert.Equal(t, "We open at nine.", turns[1].Content)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ResponsesTotal.WithLabelValues("delivered")))
}

func TestRespond_DuplicateIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.seedTenant(t, tenantCreds, "")
	r := f.responder(t)
	ctx := context.Background()

	first, err := r.Respond(ctx, inbound("m1", "hours?"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, first.Outcome)

	second, err := r.Respond(ctx, inbound("m1", "hours?"))
	require.NoError(t, err)
	assert.Equal(t, Result{Outcome: OutcomeDuplicate}, second)

	assert.Len(t, f.sender.Sent(), 1)
	assert.Equal(t, 1, f.completer.CallCount())

	turns, err := f.store.RecentTurns(ctx, core.PhoneKey(business, customer), 10)
	require.NoError(t, err)
	assistant := 0
	for _, turn := range turns {
		if turn.Role == core.RoleAssistant {
			assistant++
		}
	}
	assert.Equal(t, 1, assistant)
}

func TestRespond_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	f.seedTenant(t, tenantCreds, "")
	r := f.responder(t)

	var wg sync.WaitGroup
	results := make([]Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = r.Respond(context.Background(), inbound("same", "hours?"))
		}(i)
	}
	wg.Wait()

	delivered := 0
	for _, res := range results {
		if res.Outcome == OutcomeDelivered {
			delivered++
		}
	}
	assert.Equal(t, 1, delivered)
	assert.Len(t, f.sender.Sent(), 1)
}

func TestRespond_NoDocuments(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.AddMapping(context.Background(), core.UnboundMapping{Phone: business, Intent: "sales"})
	require.NoError(t, err)
	r := f.responder(t)

	result, err := r.Respond(context.Background(), inbound("m1", "hello"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoDocuments, result.Outcome)
	assert.Zero(t, f.completer.CallCount())
	assert.Empty(t, f.sender.Sent())
}

func TestRespond_NoCredentials(t *testing.T) {
	f := newFixture(t)
	f.seedTenant(t, core.Credentials{AuthToken: "tok"}, "")
	r := f.responder(t)

	result, err := r.Respond(context.Background(), inbound("m1", "hello"))
	assert.ErrorIs(t, err, core.ErrMissingCredentials)
	assert.Equal(t, OutcomeNoCredentials, result.Outcome)
	assert.Zero(t, f.completer.CallCount())
}

func TestRespond_EmbedFailed(t *testing.T) {
	f := newFixture(t)
	f.seedTenant(t, tenantCreds, "")
	boom := errors.New("rate limited for good")
	f.embedder = func(ctx context.Context, text string) ([]float32, error) { return nil, boom }
	r := f.responder(t)

	result, err := r.Respond(context.Background(), inbound("m1", "hello"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, OutcomeEmbedFailed, result.Outcome)
	assert.Zero(t, f.completer.CallCount())
}

func TestRespond_EmptyCompletion(t *testing.T) {
	f := newFixture(t)
	f.seedTenant(t, tenantCreds, "")
	f.completer.CompleteFunc = func(ctx context.Context, messages []ai.Message, opts ai.CompletionOptions) (string, error) {
		return "  ", nil
	}
	r := f.responder(t)

	result, err := r.Respond(context.Background(), inbound("m1", "hello"))
	assert.ErrorIs(t, err, ErrEmptyCompletion)
	assert.Equal(t, OutcomeGenerationFailed, result.Outcome)
	assert.Empty(t, f.sender.Sent())
}

func TestRespond_GenerationTimeout(t *testing.T) {
	f := newFixture(t)
	f.seedTenant(t, tenantCreds, "")
	f.completer.CompleteFunc = func(ctx context.Context, messages []ai.Message, opts ai.CompletionOptions) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	r := f.responder(t, WithCallTimeout(10*time.Millisecond))

	result, err := r.Respond(context.Background(), inbound("m1", "hello"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, OutcomeGenerationFailed, result.Outcome)
}

func TestRespond_DeliveryFailedKeepsReply(t *testing.T) {
	f := newFixture(t)
	f.seedTenant(t, tenantCreds, "")
	f.sender.err = errors.New("status 401")
	r := f.responder(t)
	ctx := context.Background()

	result, err := r.Respond(ctx, inbound("m1", "hello"))
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Contains(t, err.Error(), "status 401")
	assert.Equal(t, OutcomeDeliveryFailed, result.Outcome)
	assert.False(t, result.Delivered)
	assert.Equal(t, "We open at nine.", result.ResponseText)

	event, err := f.store.GetEvent(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, core.EventAttemptedNotSent, event.Status)

	turns, err := f.store.RecentTurns(ctx, core.PhoneKey(business, customer), 10)
	require.NoError(t, err)
	require.Len(t, turns, 1, "undelivered reply is not logged")
	assert.Equal(t, core.RoleUser, turns[0].Role)
}

func TestRespond_HistoryExcludesCurrentEvent(t *testing.T) {
	f := newFixture(t)
	f.seedTenant(t, tenantCreds, "")
	r := f.responder(t, WithHistoryLimit(3))
	ctx := context.Background()

	for i, text := range []string{"one", "two", "three"} {
		_, err := r.Respond(ctx, inbound(string(rune('a'+i)), text))
		require.NoError(t, err)
	}

	_, err := r.Respond(ctx, inbound("d", "four"))
	require.NoError(t, err)

	msgs := f.completer.LastMessages()
	// system + 3 history + latest
	require.Len(t, msgs, 5)
	assert.Equal(t, ai.Message{Role: ai.RoleUser, Content: "three"}, msgs[2])
	assert.Equal(t, ai.Message{Role: ai.RoleAssistant, Content: "We open at nine."}, msgs[3])
	assert.Equal(t, ai.Message{Role: ai.RoleUser, Content: "four"}, msgs[4])
	for _, m := range msgs[1:4] {
		assert.NotEqual(t, "four", m.Content)
	}
}

func TestRespond_OutboundEventsAreLoggedNotAnswered(t *testing.T) {
	f := newFixture(t)
	f.seedTenant(t, tenantCreds, "")
	r := f.responder(t)
	ctx := context.Background()

	event := &core.InboundEvent{ID: "o1", From: business, To: customer, Text: "Hi from the shop", Kind: core.EventOutboundMessage}
	result, err := r.Respond(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, result.Outcome)
	assert.Zero(t, f.completer.CallCount())

	turns, err := f.store.RecentTurns(ctx, core.PhoneKey(business, customer), 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, core.RoleAssistant, turns[0].Role)

	result, err = r.Respond(ctx, &core.InboundEvent{ID: "s1", From: customer, To: business, Kind: "StatusUpdate"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, result.Outcome)
}

func TestRespond_Validation(t *testing.T) {
	f := newFixture(t)
	r := f.responder(t)

	_, err := r.Respond(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrValidation)

	event := inbound("", "hello")
	_, err = r.Respond(context.Background(), event)
	assert.ErrorIs(t, err, core.ErrValidation)
}

type fakeClaimer struct {
	mu       sync.Mutex
	claimed  map[string]bool
	err      error
	released []string
}

func (c *fakeClaimer) Claim(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	if c.claimed[id] {
		return false, nil
	}
	c.claimed[id] = true
	return true, nil
}

func (c *fakeClaimer) Release(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = append(c.released, id)
	delete(c.claimed, id)
	return nil
}

func TestRespond_Claimer(t *testing.T) {
	f := newFixture(t)
	f.seedTenant(t, tenantCreds, "")
	claimer := &fakeClaimer{claimed: map[string]bool{"taken": true}}
	r := f.responder(t, WithClaimer(claimer))
	ctx := context.Background()

	result, err := r.Respond(ctx, inbound("taken", "hello"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, result.Outcome)
	_, err = f.store.GetEvent(ctx, "taken")
	assert.Error(t, err, "claimed elsewhere, never recorded here")

	result, err = r.Respond(ctx, inbound("fresh", "hello"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, result.Outcome)
}

func TestRespond_ClaimerDownFallsBackToStore(t *testing.T) {
	f := newFixture(t)
	f.seedTenant(t, tenantCreds, "")
	r := f.responder(t, WithClaimer(&fakeClaimer{err: errors.New("redis down")}))
	ctx := context.Background()

	result, err := r.Respond(ctx, inbound("m1", "hello"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, result.Outcome)

	result, err = r.Respond(ctx, inbound("m1", "hello"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, result.Outcome)
}

func TestSubmit(t *testing.T) {
	f := newFixture(t)
	f.seedTenant(t, tenantCreds, "")
	r := f.responder(t, WithPoolSize(2))

	require.NoError(t, r.Submit(inbound("m1", "hello")))
	require.Eventually(t, func() bool {
		return len(f.sender.Sent()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, r.Submit(&core.InboundEvent{ID: "x"}), core.ErrValidation)
}

func TestSubmit_BusyPoolRejectsWithoutBlocking(t *testing.T) {
	f := newFixture(t)
	f.seedTenant(t, tenantCreds, "")
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	f.embedder = func(ctx context.Context, text string) ([]float32, error) {
		entered <- struct{}{}
		<-release
		return []float32{1, 0, 0}, nil
	}
	r := f.responder(t, WithPoolSize(1))
	defer close(release)

	require.NoError(t, r.Submit(inbound("m1", "hello")))
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first event never started")
	}

	done := make(chan error, 1)
	go func() { done <- r.Submit(inbound("m2", "hello")) }()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrBusy)
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked on a saturated pool")
	}
}
