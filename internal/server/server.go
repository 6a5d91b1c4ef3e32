// Package server exposes the turn service over HTTP and receives Telegram
// webhook updates.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"router-agent/internal/api"
	"router-agent/internal/domain"
	"router-agent/internal/integrations/telegram"
	"router-agent/internal/usecase"
)

const (
	maxBodyBytes         = 1 << 20
	telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
)

type Turns interface {
	Process(ctx context.Context, in usecase.TurnInput) (usecase.TurnOutput, error)
	Clear(ctx context.Context, sessionID string) error
	Stats(ctx context.Context, sessionID string) (domain.SessionStats, bool, error)
	History(ctx context.Context, sessionID string) ([]domain.Message, bool, error)
}

// UpdateHandler consumes Telegram webhook updates.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u telegram.Update) error
}

type Options struct {
	AllowedOrigins []string
	// WebhookSecret, when set, must match the secret token header sent by
	// Telegram.
	WebhookSecret string
	Logger        *slog.Logger
}

type Server struct {
	turns   Turns
	updates UpdateHandler
	opts    Options
	logger  *slog.Logger
	router  chi.Router
}

// New builds the router. updates may be nil, in which case the webhook
// route is not registered.
func New(turns Turns, updates UpdateHandler, opts Options) (*Server, error) {
	if turns == nil {
		return nil, errors.New("server: turn service must not be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	s := &Server{turns: turns, updates: updates, opts: opts, logger: logger}
	s.router = s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(s.correlationID)
	r.Use(s.requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", api.CorrelationHeader},
		ExposedHeaders: []string{api.CorrelationHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleHistory)
			r.Get("/stats", s.handleStats)
			r.Delete("/", s.handleClear)
		})
	})

	if s.updates != nil {
		r.Post("/telegram/webhook", s.handleTelegram)
	}
	return r
}

func (s *Server) correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(api.CorrelationHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(api.CorrelationHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", chiMiddleware.GetReqID(r.Context()),
			"correlation_id", w.Header().Get(api.CorrelationHeader),
		)
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_body"})
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = usecase.NewSessionID()
	}

	out, err := s.turns.Process(r.Context(), usecase.TurnInput{SessionID: sessionID, Text: req.Message})
	if err != nil && out.Reply == "" {
		s.respondError(w, err)
		return
	}
	if err != nil {
		s.logger.Warn("turn not persisted", "session_id", sessionID, "err", err)
	}
	respondJSON(w, http.StatusOK, api.NewChatResponse(sessionID, out))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	msgs, found, err := s.turns.History(r.Context(), sessionID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if !found {
		respondNotFound(w)
		return
	}
	respondJSON(w, http.StatusOK, api.NewHistoryResponse(sessionID, msgs))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	st, found, err := s.turns.Stats(r.Context(), sessionID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if !found {
		respondNotFound(w)
		return
	}
	respondJSON(w, http.StatusOK, api.StatsResponse{SessionID: sessionID, SessionStats: st})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.turns.Clear(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTelegram always acknowledges a well-formed update; Telegram would
// otherwise redeliver it.
func (s *Server) handleTelegram(w http.ResponseWriter, r *http.Request) {
	if s.opts.WebhookSecret != "" {
		got := r.Header.Get(telegramSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.WebhookSecret)) != 1 {
			respondJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "UNAUTHORIZED"})
			return
		}
	}
	var u telegram.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&u); err != nil {
		respondJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_update"})
		return
	}
	if err := s.updates.HandleUpdate(r.Context(), u); err != nil {
		s.logger.Error("telegram update failed", "update_id", u.UpdateID, "err", err)
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status, body := api.ErrorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	respondJSON(w, status, body)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      3 * time.Minute, // repository analysis can be slow
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(io.LimitReader(r, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected trailing data")
	}
	return nil
}

func respondNotFound(w http.ResponseWriter) {
	respondJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "NOT_FOUND", Reason: "session_not_found"})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
