// Package http exposes a soul over HTTP: perceptions, working memory, facts,
// a server-sent event stream of actions and memory diffs, and Prometheus
// metrics.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aretw0/anima"
	"github.com/aretw0/anima/internal/logging"
	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/anima/pkg/runner"
	"github.com/aretw0/anima/pkg/soulmemory"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Soul is the part of anima.Soul the server drives.
type Soul interface {
	runner.Perceiver
	Reset(ctx context.Context) error
	SetFact(ctx context.Context, key string, value any) error
	Facts() *soulmemory.Store
}

// Server serves one soul.
type Server struct {
	soul    Soul
	streams *StreamManager
	metrics prometheus.Gatherer
	logger  *slog.Logger
}

// Option defines a functional option for configuring the Server.
type Option func(*Server)

// WithStreams shares a StreamManager that the soul also uses as its
// ActionSink, so subscribers see speech as it happens.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.streams = sm
	}
}

// WithMetrics exposes g on GET /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = g
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a server for soul.
func NewServer(soul Soul, opts ...Option) *Server {
	s := &Server{soul: soul}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	if s.streams == nil {
		s.streams = NewStreamManager(WithStreamLogger(s.logger))
	}
	return s
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Post("/perceive", s.Perceive)
	r.Get("/memory", s.GetMemory)
	r.Delete("/memory", s.ResetMemory)
	r.Get("/facts", s.ListFacts)
	r.Get("/facts/{key}", s.GetFact)
	r.Put("/facts/{key}", s.PutFact)
	r.Get("/events", s.SubscribeEvents)
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	}
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Perceive handles POST /perceive.
func (s *Server) Perceive(w http.ResponseWriter, r *http.Request) {
	var body runner.JSONInput
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	text, err := runner.SanitizeInput(body.Text)
	if err != nil {
		s.logger.Warn("perceive: input rejected", "err", err, "size", len(body.Text))
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(text) == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("text is required"))
		return
	}

	resp, err := runner.PerceiveAndRender(r.Context(), s.soul, anima.Perception{
		Text:    text,
		Speaker: body.Speaker,
		Params:  body.Params,
	})
	if err != nil {
		status := statusFor(err)
		s.logger.Warn("perceive failed", "soul", s.soul.Name(), "status", status, "err", err)
		s.writeError(w, status, err)
		return
	}

	if resp.Diff != nil {
		s.streams.Broadcast(EventDiff, resp.Diff)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// GetMemory handles GET /memory. ?recent=n limits the entries returned.
func (s *Server) GetMemory(w http.ResponseWriter, r *http.Request) {
	memory := s.soul.Memory()
	raw := r.URL.Query().Get("recent")
	if raw == "" {
		s.writeJSON(w, http.StatusOK, memory)
		return
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid recent: %q", raw))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"soul_name": memory.SoulName(),
		"total":     memory.Len(),
		"entries":   memory.Recent(n),
	})
}

// ResetMemory handles DELETE /memory.
func (s *Server) ResetMemory(w http.ResponseWriter, r *http.Request) {
	if err := s.soul.Reset(r.Context()); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListFacts handles GET /facts.
func (s *Server) ListFacts(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.soul.Facts().Snapshot())
}

// GetFact handles GET /facts/{key}.
func (s *Server) GetFact(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, ok := s.soul.Facts().Get(key)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", domain.ErrFactNotFound, key))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": value})
}

// PutFact handles PUT /facts/{key}. The body is the JSON value. A write
// while the soul is perceiving is refused with 409.
func (s *Server) PutFact(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var value any
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid fact value: %w", err))
		return
	}
	if err := s.soul.SetFact(r.Context(), key, value); err != nil {
		status := statusFor(err)
		s.logger.Warn("fact write failed", "key", key, "status", status, "err", err)
		s.writeError(w, status, err)
		return
	}
	s.streams.Broadcast(EventFact, map[string]any{"key": key, "value": value})
	w.WriteHeader(http.StatusNoContent)
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "anima-http",
		"version": strings.TrimSpace(anima.Version),
		"soul":    s.soul.Name(),
	})
}

// statusFor maps the error taxonomy to HTTP statuses.
func statusFor(err error) int {
	var (
		valErr  *domain.ValidationError
		procErr *domain.ProcessorError
	)
	switch {
	case errors.Is(err, domain.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &valErr), errors.As(err, &procErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
