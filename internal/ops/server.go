// Package ops exposes the pipeline triggers over HTTP for local development
// and integration testing. In deployed environments the triggers are Lambda
// invocations; this surface exists so the same flows can be exercised with
// curl against a local stack.
package ops

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"dealwire/internal/mentions"
	"dealwire/internal/scheduler"
	"dealwire/internal/types"
)

// Server wires the drain scheduler and mention fan-out behind a chi router.
type Server struct {
	drain  *scheduler.DrainScheduler
	fanout *mentions.FanoutService
	logger *slog.Logger
}

// NewServer creates the dev trigger server.
func NewServer(drain *scheduler.DrainScheduler, fanout *mentions.FanoutService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{drain: drain, fanout: fanout, logger: logger}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Post("/v1/triggers/drain", s.handleDrain)
	r.Post("/v1/triggers/mention", s.handleMention)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDrain runs one drain cycle synchronously and returns its report.
func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	ctx := types.WithTraceID(r.Context(), uuid.New().String())

	report, err := s.drain.Drain(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleMention accepts a comment-created event and runs the fan-out.
func (s *Server) handleMention(w http.ResponseWriter, r *http.Request) {
	ctx := types.WithTraceID(r.Context(), uuid.New().String())

	var ev mentions.CommentEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		s.writeError(w, r, types.NewAppError(types.ErrCodeValidationInvalidInput, "request body is not valid JSON", err))
		return
	}

	sent, err := s.fanout.Handle(ctx, ev)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"entries_sent": sent})
}

// writeError maps AppErrors to their HTTP status; anything else is a 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		appErr = types.NewAppError(types.ErrCodeInternalUnexpected, "internal error", err)
	}

	s.logger.ErrorContext(r.Context(), "trigger request failed",
		"path", r.URL.Path,
		"code", string(appErr.Code),
		"error", err,
	)

	writeJSON(w, appErr.HTTPStatus(), map[string]string{
		"code":    string(appErr.Code),
		"message": appErr.Message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
