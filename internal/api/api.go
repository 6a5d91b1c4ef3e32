// Package api holds the JSON shapes and error mapping shared by the HTTP
// server and the Lambda handler.
package api

import (
	"errors"
	"net/http"
	"time"

	"router-agent/internal/domain"
	"router-agent/internal/usecase"
)

const CorrelationHeader = "X-Correlation-Id"

type ChatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type ChatResponse struct {
	SessionID  string `json:"sessionId"`
	Reply      string `json:"reply"`
	Category   string `json:"category"`
	Specialist string `json:"specialist"`
	Persisted  bool   `json:"persisted"`
	Fallback   string `json:"fallback,omitempty"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

type MessageView struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type HistoryResponse struct {
	SessionID string        `json:"sessionId"`
	Messages  []MessageView `json:"messages"`
}

type StatsResponse struct {
	SessionID string `json:"sessionId"`
	domain.SessionStats
}

func NewChatResponse(sessionID string, out usecase.TurnOutput) ChatResponse {
	return ChatResponse{
		SessionID:  sessionID,
		Reply:      out.Reply,
		Category:   string(out.Category),
		Specialist: string(out.Specialist),
		Persisted:  out.Persisted,
		Fallback:   string(out.Fallback),
	}
}

func NewHistoryResponse(sessionID string, msgs []domain.Message) HistoryResponse {
	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, MessageView{Role: string(m.Role), Content: m.Content, Timestamp: m.Timestamp})
	}
	return HistoryResponse{SessionID: sessionID, Messages: views}
}

// ErrorStatus maps an error to its HTTP status and response body.
// Errors that are not a *usecase.Error are internal.
func ErrorStatus(err error) (int, ErrorResponse) {
	var ue *usecase.Error
	if !errors.As(err, &ue) {
		return http.StatusInternalServerError, ErrorResponse{Error: string(usecase.ErrorInternal)}
	}
	body := ErrorResponse{Error: string(ue.Code), Reason: ue.Reason}
	switch ue.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, body
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests, body
	case usecase.ErrorUpstream:
		return http.StatusBadGateway, body
	default:
		return http.StatusInternalServerError, body
	}
}
