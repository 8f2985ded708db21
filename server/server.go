// Package server exposes the webhook, document, tenant and web chat
// endpoints over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/poiesic/docreply/core"
	"github.com/poiesic/docreply/extract"
	"github.com/poiesic/docreply/ingestion"
	"github.com/poiesic/docreply/metrics"
	"github.com/poiesic/docreply/responder"
	"github.com/poiesic/docreply/storage"
)

const (
	// DefaultMaxUploadBytes caps multipart document uploads.
	DefaultMaxUploadBytes = 20 << 20

	// DefaultRequestTimeout bounds every request, including synchronous
	// web chat answers.
	DefaultRequestTimeout = 60 * time.Second

	defaultTranscriptLimit = 50
)

// EventSink accepts a validated inbound event for handling. The default sink
// hands events to Responder.Submit; a queue producer can be used instead.
type EventSink func(ctx context.Context, event *core.InboundEvent) error

// Dependencies are the collaborators the HTTP surface needs.
type Dependencies struct {
	Store     storage.Store
	Pipeline  *ingestion.Pipeline
	Responder *responder.Responder
	// Extractor turns uploads into text. Defaults to PDF-only extraction.
	Extractor *extract.Extractor
	Metrics   *metrics.Metrics
}

// Server routes HTTP requests to the ingestion and responder components.
type Server struct {
	deps           Dependencies
	sink           EventSink
	verifyToken    string
	maxUploadBytes int64
	requestTimeout time.Duration
	validate       *validator.Validate
	logger         *slog.Logger
}

// Option configures a Server.
type Option func(*Server) error

// WithEventSink replaces the default in-process event hand-off.
func WithEventSink(sink EventSink) Option {
	return func(s *Server) error {
		if sink != nil {
			s.sink = sink
		}
		return nil
	}
}

// WithVerifyToken sets the token expected by webhook verification.
// Verification always fails while the token is empty.
func WithVerifyToken(token string) Option {
	return func(s *Server) error {
		s.verifyToken = token
		return nil
	}
}

// WithMaxUploadBytes caps the size of document uploads.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) error {
		if n > 0 {
			s.maxUploadBytes = n
		}
		return nil
	}
}

// WithRequestTimeout bounds request handling.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) error {
		if d > 0 {
			s.requestTimeout = d
		}
		return nil
	}
}

// WithLogger sets a custom logger for the server.
// If not provided, slog.Default() will be used.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// New creates a Server. Store, Pipeline and Responder are required.
func New(deps Dependencies, opts ...Option) (*Server, error) {
	if deps.Store == nil {
		return nil, ErrStoreRequired
	}
	if deps.Pipeline == nil {
		return nil, ErrPipelineRequired
	}
	if deps.Responder == nil {
		return nil, ErrResponderRequired
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.NewExtractor(nil)
	}

	s := &Server{
		deps:           deps,
		maxUploadBytes: DefaultMaxUploadBytes,
		requestTimeout: DefaultRequestTimeout,
		validate:       newValidator(),
	}
	s.sink = func(ctx context.Context, event *core.InboundEvent) error {
		return deps.Responder.Submit(event)
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "server")
	}
	return s, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())

	r.Route("/webhook/whatsapp", func(r chi.Router) {
		r.Get("/", s.handleVerify)
		r.Post("/", s.handleWebhook)
	})

	r.Route("/documents", func(r chi.Router) {
		r.Get("/", s.handleListDocuments)
		r.Post("/", s.handleCreateDocument)
		r.Post("/upload", s.handleUploadDocument)
		r.Delete("/{id}", s.handleDeleteDocument)
	})
	r.Get("/jobs/{id}", s.handleGetJob)

	r.Route("/tenants", func(r chi.Router) {
		r.Get("/", s.handleListTenants)
		r.Post("/", s.handleCreateTenant)
		r.Put("/{phone}/settings", s.handleUpdateSettings)
	})

	r.Route("/sessions/{id}/messages", func(r chi.Router) {
		r.Get("/", s.handleTranscript)
		r.Post("/", s.handleAsk)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "endpoint not found")
	})
	return r
}

// newValidator reports fields by their JSON or form names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
