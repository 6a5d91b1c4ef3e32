// Package handler adapts API Gateway proxy events to the turn service.
package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"router-agent/internal/api"
	"router-agent/internal/integrations/telegram"
	"router-agent/internal/usecase"
)

const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

type Turns interface {
	Process(ctx context.Context, in usecase.TurnInput) (usecase.TurnOutput, error)
}

type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u telegram.Update) error
}

type Handler struct {
	turns         Turns
	updates       UpdateHandler
	webhookSecret string
	logger        *slog.Logger
}

type Option func(*Handler)

// WithTelegram enables the /telegram route. secret may be empty.
func WithTelegram(updates UpdateHandler, secret string) Option {
	return func(h *Handler) {
		h.updates = updates
		h.webhookSecret = secret
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func NewHandler(turns Turns, opts ...Option) (*Handler, error) {
	if turns == nil {
		return nil, errors.New("handler: turn service must not be nil")
	}
	h := &Handler{turns: turns, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := header(req.Headers, api.CorrelationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := h.logger.With("correlation_id", correlationID, "path", req.Path)

	var status int
	var body any
	switch {
	case req.HTTPMethod == http.MethodPost && strings.HasSuffix(req.Path, "/chat"):
		status, body = h.chat(ctx, logger, req)
	case req.HTTPMethod == http.MethodPost && strings.HasSuffix(req.Path, "/telegram") && h.updates != nil:
		status, body = h.telegram(ctx, logger, req)
	default:
		status, body = http.StatusNotFound, api.ErrorResponse{Error: "NOT_FOUND", Reason: "unknown_route"}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		logger.Error("failed to encode response", "err", err)
		status, raw = http.StatusInternalServerError, []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	logger.Info("request handled", "status", status)
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":        "application/json",
			api.CorrelationHeader: correlationID,
		},
		Body: string(raw),
	}, nil
}

func (h *Handler) chat(ctx context.Context, logger *slog.Logger, req events.APIGatewayProxyRequest) (int, any) {
	var in api.ChatRequest
	dec := json.NewDecoder(strings.NewReader(req.Body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return http.StatusBadRequest, api.ErrorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_body"}
	}
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = usecase.NewSessionID()
	}

	out, err := h.turns.Process(ctx, usecase.TurnInput{SessionID: sessionID, Text: in.Message})
	if err != nil && out.Reply == "" {
		status, body := api.ErrorStatus(err)
		if status >= http.StatusInternalServerError {
			logger.Error("turn failed", "session_id", sessionID, "err", err)
		}
		return status, body
	}
	if err != nil {
		logger.Warn("turn not persisted", "session_id", sessionID, "err", err)
	}
	return http.StatusOK, api.NewChatResponse(sessionID, out)
}

func (h *Handler) telegram(ctx context.Context, logger *slog.Logger, req events.APIGatewayProxyRequest) (int, any) {
	if h.webhookSecret != "" {
		got := header(req.Headers, telegramSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) != 1 {
			return http.StatusUnauthorized, api.ErrorResponse{Error: "UNAUTHORIZED"}
		}
	}
	var u telegram.Update
	if err := json.Unmarshal([]byte(req.Body), &u); err != nil {
		return http.StatusBadRequest, api.ErrorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_update"}
	}
	if err := h.updates.HandleUpdate(ctx, u); err != nil {
		logger.Error("telegram update failed", "update_id", u.UpdateID, "err", err)
	}
	return http.StatusOK, map[string]bool{"ok": true}
}

// header looks a key up case-insensitively; API Gateway passes headers as sent.
func header(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
