// Package specialist holds the responders a routed turn is dispatched to.
package specialist

import (
	"context"
	"errors"
	"log/slog"

	"router-agent/internal/domain"
)

// Specialist produces the assistant reply for one turn. Failures of the
// code-hosting collaborator are turned into reply text here; a returned
// error means the text generation call itself failed.
type Specialist interface {
	Respond(ctx context.Context, state domain.ConversationState) (string, error)
}

// LLMClient is the free-text half of a text generation provider.
type LLMClient interface {
	Chat(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

// CodeHost is the read API of the code-hosting service.
type CodeHost interface {
	GetRepository(ctx context.Context, owner, repo string) (domain.RepoFacts, error)
	GetUser(ctx context.Context, username string) (domain.UserFacts, error)
	ListPublicRepos(ctx context.Context, owner string) ([]domain.RepoSummary, error)
}

// General answers anything that is not a GitHub lookup.
type General struct {
	llm        LLMClient
	maxHistory int
}

func NewGeneral(llm LLMClient, maxHistory int) (*General, error) {
	if llm == nil {
		return nil, errors.New("specialist: llm client must not be nil")
	}
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}
	return &General{llm: llm, maxHistory: maxHistory}, nil
}

func (g *General) Respond(ctx context.Context, state domain.ConversationState) (string, error) {
	msgs := []domain.ChatMessage{{Role: "system", Content: generalPrompt()}}
	for _, m := range domain.ChatMessages(state.Messages, g.maxHistory) {
		if m.Role == string(domain.RoleSystem) {
			continue
		}
		msgs = append(msgs, m)
	}
	return g.llm.Chat(ctx, msgs)
}

const defaultMaxHistory = 20

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
