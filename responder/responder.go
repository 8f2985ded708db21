package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docreply/ai"
	"github.com/poiesic/docreply/core"
	"github.com/poiesic/docreply/delivery"
	"github.com/poiesic/docreply/metrics"
	"github.com/poiesic/docreply/prompt"
	"github.com/poiesic/docreply/retrieval"
	"github.com/poiesic/docreply/storage"
)

// Defaults for generation and background handling.
const (
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 500
	DefaultCallTimeout = 30 * time.Second
	DefaultPoolSize    = 8
)

// Outcome names the terminal state of one inbound event.
type Outcome string

const (
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeNoDocuments      Outcome = "no_documents"
	OutcomeNoCredentials    Outcome = "no_credentials"
	OutcomeEmbedFailed      Outcome = "embed_failed"
	OutcomeRetrievalFailed  Outcome = "retrieval_failed"
	OutcomeGenerationFailed Outcome = "generation_failed"
	OutcomeDelivered        Outcome = "delivered"
	OutcomeDeliveryFailed   Outcome = "delivery_failed"
)

// Result reports what happened to an inbound event. ResponseText is set
// whenever generation succeeded, even if delivery did not.
type Result struct {
	Outcome      Outcome `json:"outcome"`
	Delivered    bool    `json:"delivered"`
	ResponseText string  `json:"response_text,omitempty"`
}

// Embedder turns text into a query vector. embedding.Gateway satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever finds context chunks. retrieval.Retriever satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, vector []float32, scope core.Scope, k int) ([]core.ScoredChunk, error)
}

// Claimer is a fast shared pre-check for event IDs, such as a Redis SETNX.
// storage/redis.Claimer satisfies it.
type Claimer interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

// Dependencies are the collaborators a Responder needs. Every field is required.
type Dependencies struct {
	Events        storage.EventRepository
	Mappings      storage.MappingRepository
	Conversations storage.ConversationRepository
	Embedder      Embedder
	Retriever     Retriever
	Completer     ai.Completer
	Sender        delivery.Sender
}

func (d Dependencies) validate() error {
	switch {
	case d.Events == nil:
		return ErrEventRepositoryRequired
	case d.Mappings == nil:
		return ErrMappingRepositoryRequired
	case d.Conversations == nil:
		return ErrConversationRepositoryRequired
	case d.Embedder == nil:
		return ErrEmbedderRequired
	case d.Retriever == nil:
		return ErrRetrieverRequired
	case d.Completer == nil:
		return ErrCompleterRequired
	case d.Sender == nil:
		return ErrSenderRequired
	}
	return nil
}

// Responder answers inbound messages from the tenant's documents.
type Responder struct {
	deps         Dependencies
	claimer      Claimer
	assembler    *prompt.Assembler
	k            int
	historyLimit int
	completion   ai.CompletionOptions
	callTimeout  time.Duration
	pool         *ants.Pool
	now          func() time.Time
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// Option configures a Responder.
type Option func(*Responder) error

// WithClaimer adds a shared pre-check in front of the durable event record.
func WithClaimer(c Claimer) Option {
	return func(r *Responder) error {
		r.claimer = c
		return nil
	}
}

// WithK sets the number of chunks retrieved per message. Default is retrieval.DefaultK.
func WithK(k int) Option {
	return func(r *Responder) error {
		if k < 1 {
			return retrieval.ErrInvalidLimit
		}
		r.k = k
		return nil
	}
}

// WithHistoryLimit sets the number of prior turns included in the prompt.
// Default is prompt.DefaultHistoryLimit.
func WithHistoryLimit(n int) Option {
	return func(r *Responder) error {
		r.historyLimit = max(n, 0)
		r.assembler = prompt.NewAssembler(prompt.WithHistoryLimit(r.historyLimit))
		return nil
	}
}

// WithAssembler replaces the prompt assembler.
func WithAssembler(a *prompt.Assembler) Option {
	return func(r *Responder) error {
		if a != nil {
			r.assembler = a
		}
		return nil
	}
}

// WithCompletionOptions sets temperature and token cap.
func WithCompletionOptions(opts ai.CompletionOptions) Option {
	return func(r *Responder) error {
		r.completion = opts
		return nil
	}
}

// WithCallTimeout bounds each completion and delivery call.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Responder) error {
		r.callTimeout = d
		return nil
	}
}

// WithPoolSize sets the number of events handled concurrently by Submit.
func WithPoolSize(size int) Option {
	return func(r *Responder) error {
		if size < 1 {
			size = 1
		}
		if r.pool != nil {
			r.pool.Release()
		}
		pool, err := ants.NewPool(size, ants.WithNonblocking(true))
		if err != nil {
			return err
		}
		r.pool = pool
		return nil
	}
}

// WithMetrics records outcomes and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Responder) error {
		r.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Responder) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewResponder creates a responder.
func NewResponder(deps Dependencies, opts ...Option) (*Responder, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	pool, err := ants.NewPool(DefaultPoolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}

	r := &Responder{
		deps:         deps,
		assembler:    prompt.NewAssembler(),
		k:            retrieval.DefaultK,
		historyLimit: prompt.DefaultHistoryLimit,
		completion:   ai.CompletionOptions{Temperature: DefaultTemperature, MaxTokens: DefaultMaxTokens},
		callTimeout:  DefaultCallTimeout,
		pool:         pool,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       slog.Default().With("component", "responder"),
	}

	for _, opt := range opts {
		if optErr := opt(r); optErr != nil {
			r.Release()
			return nil, optErr
		}
	}
	return r, nil
}

// Respond handles one inbound event. Stages run strictly in order. Terminal
// outcomes that need no action from anyone return a nil error; the rest
// return both the outcome and the cause.
func (r *Responder) Respond(ctx context.Context, event *core.InboundEvent) (Result, error) {
	if err := core.ValidateInboundEvent(event); err != nil {
		return Result{}, err
	}

	start := time.Now()
	result, err := r.respond(ctx, event)
	outcome := string(result.Outcome)
	if outcome == "" {
		outcome = "error"
	}
	r.metrics.Response(outcome, time.Since(start))
	return result, err
}

func (r *Responder) respond(ctx context.Context, event *core.InboundEvent) (Result, error) {
	logger := r.logger.With("event_id", event.ID, "phone", event.To)

	fresh, err := r.record(ctx, event, logger)
	if err != nil {
		return Result{}, err
	}
	if !fresh {
		logger.Info("duplicate event ignored")
		return Result{Outcome: OutcomeDuplicate}, nil
	}

	if err := r.logTurn(ctx, event); err != nil {
		logger.Warn("error logging conversation turn", "err", err)
	}
	if event.Kind != core.EventInboundMessage || strings.TrimSpace(event.Text) == "" {
		return Result{Outcome: OutcomeIgnored}, nil
	}

	mappings, err := r.deps.Mappings.MappingsByPhone(ctx, event.To)
	if err != nil {
		logger.Error("error loading tenant mappings", "err", err)
		return Result{}, fmt.Errorf("load tenant: %w", err)
	}
	tenant := core.ResolveTenant(event.To, mappings)
	if len(tenant.Documents) == 0 {
		logger.Info("no documents mapped to business number")
		return Result{Outcome: OutcomeNoDocuments}, nil
	}
	if !tenant.Credentials.Complete() {
		logger.Warn("tenant has no delivery credentials")
		return Result{Outcome: OutcomeNoCredentials}, core.ErrMissingCredentials
	}

	vector, err := r.deps.Embedder.Embed(ctx, event.Text)
	if err != nil {
		logger.Error("error embedding message", "err", err)
		return Result{Outcome: OutcomeEmbedFailed}, fmt.Errorf("embed message: %w", err)
	}

	chunks, err := r.deps.Retriever.Retrieve(ctx, vector, core.DocumentScope(tenant.Documents...), r.k)
	if err != nil {
		logger.Error("error retrieving context", "err", err)
		return Result{Outcome: OutcomeRetrievalFailed}, fmt.Errorf("retrieve context: %w", err)
	}
	if len(chunks) == 0 {
		logger.Debug("no relevant chunks found")
	}

	history, err := r.history(ctx, core.PhoneKey(event.To, event.From), event.ID)
	if err != nil {
		logger.Warn("error loading history", "err", err)
	}

	reply, err := r.generate(ctx, r.assembler.Assemble(chunks, history, tenant.SystemPrompt, event.Text))
	if err != nil {
		logger.Error("error generating reply", "err", err)
		return Result{Outcome: OutcomeGenerationFailed}, err
	}

	sendCtx, cancel := r.callContext(ctx)
	err = r.deps.Sender.Send(sendCtx, event.From, reply, tenant.Credentials)
	cancel()
	if err != nil {
		logger.Error("error delivering reply", "err", err)
		r.mark(ctx, event.ID, core.EventAttemptedNotSent, logger)
		return Result{Outcome: OutcomeDeliveryFailed, ResponseText: reply}, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	err = r.deps.Conversations.AppendTurn(ctx, &core.ConversationTurn{
		Key:       core.PhoneKey(event.To, event.From),
		Role:      core.RoleAssistant,
		Content:   reply,
		Timestamp: r.now(),
	})
	if err != nil {
		logger.Error("error saving reply turn", "err", err)
	}
	r.mark(ctx, event.ID, core.EventResponded, logger)

	logger.Info("reply delivered", "documents", len(tenant.Documents), "chunks", len(chunks))
	return Result{Outcome: OutcomeDelivered, Delivered: true, ResponseText: reply}, nil
}

// record claims the event ID. It returns false when the event was seen before.
func (r *Responder) record(ctx context.Context, event *core.InboundEvent, logger *slog.Logger) (bool, error) {
	if r.claimer != nil {
		ok, err := r.claimer.Claim(ctx, event.ID)
		switch {
		case err != nil:
			logger.Warn("event claim unavailable, relying on durable record", "err", err)
		case !ok:
			return false, nil
		}
	}

	stored := *event
	stored.Status = core.EventReceived
	if stored.ReceivedAt.IsZero() {
		stored.ReceivedAt = r.now()
	}
	err := r.deps.Events.AddEvent(ctx, &stored)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return false, nil
	}
	if err != nil {
		if r.claimer != nil {
			if relErr := r.claimer.Release(context.WithoutCancel(ctx), event.ID); relErr != nil {
				logger.Warn("error releasing event claim", "err", relErr)
			}
		}
		logger.Error("error recording event", "err", err)
		return false, fmt.Errorf("record event: %w", err)
	}
	return true, nil
}

// logTurn appends message events to the conversation between the business
// number and the end user.
func (r *Responder) logTurn(ctx context.Context, event *core.InboundEvent) error {
	if !event.Kind.IsMessage() || strings.TrimSpace(event.Text) == "" {
		return nil
	}
	turn := &core.ConversationTurn{
		Key:       core.PhoneKey(event.To, event.From),
		Role:      core.RoleUser,
		Content:   event.Text,
		EventID:   event.ID,
		Timestamp: event.ReceivedAt,
	}
	if event.Kind == core.EventOutboundMessage {
		turn.Key = core.PhoneKey(event.From, event.To)
		turn.Role = core.RoleAssistant
	}
	return r.deps.Conversations.AppendTurn(ctx, turn)
}

// history returns up to historyLimit turns, oldest first, without the turn
// logged for the current event.
func (r *Responder) history(ctx context.Context, key core.ConversationKey, currentEvent string) ([]core.ConversationTurn, error) {
	if r.historyLimit == 0 {
		return nil, nil
	}
	turns, err := r.deps.Conversations.RecentTurns(ctx, key, r.historyLimit+1)
	if err != nil {
		return nil, err
	}
	out := make([]core.ConversationTurn, 0, len(turns))
	for _, t := range turns {
		if currentEvent != "" && t.EventID == currentEvent {
			continue
		}
		out = append(out, t)
	}
	if len(out) > r.historyLimit {
		out = out[len(out)-r.historyLimit:]
	}
	return out, nil
}

func (r *Responder) generate(ctx context.Context, messages []ai.Message) (string, error) {
	callCtx, cancel := r.callContext(ctx)
	defer cancel()

	reply, err := r.deps.Completer.Complete(callCtx, messages, r.completion)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", ErrEmptyCompletion
	}
	return reply, nil
}

func (r *Responder) mark(ctx context.Context, id string, status core.EventStatus, logger *slog.Logger) {
	if err := r.deps.Events.MarkEvent(context.WithoutCancel(ctx), id, status, r.now()); err != nil {
		logger.Error("error updating event status", "status", status, "err", err)
	}
}

func (r *Responder) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.callTimeout)
}

// Submit validates event and handles it in the background. Results are
// logged and recorded in metrics. A saturated pool rejects the event with
// ErrBusy so the caller can ask the channel to redeliver.
func (r *Responder) Submit(event *core.InboundEvent) error {
	if err := core.ValidateInboundEvent(event); err != nil {
		return err
	}
	copied := *event
	err := r.pool.Submit(func() {
		result, err := r.Respond(context.Background(), &copied)
		if err != nil {
			r.logger.Error("auto-response failed", "event_id", copied.ID, "outcome", result.Outcome, "err", err)
			return
		}
		r.logger.Debug("auto-response finished", "event_id", copied.ID, "outcome", result.Outcome)
	})
	if errors.Is(err, ants.ErrPoolOverload) {
		r.logger.Warn("responder workers busy, rejecting event", "event_id", copied.ID)
		return ErrBusy
	}
	if err != nil {
		return fmt.Errorf("submit event: %w", err)
	}
	return nil
}

// Release frees the worker pool without waiting for queued events.
func (r *Responder) Release() {
	if r.pool != nil {
		r.pool.Release()
	}
}

// Drain waits up to timeout for in-flight events, then releases the pool.
func (r *Responder) Drain(timeout time.Duration) error {
	if r.pool == nil {
		return nil
	}
	return r.pool.ReleaseTimeout(timeout)
}
