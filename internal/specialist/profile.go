package specialist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"router-agent/internal/domain"
)

// Profile summarizes a GitHub user.
type Profile struct {
	host   CodeHost
	llm    LLMClient
	logger *slog.Logger
}

func NewProfile(host CodeHost, llm LLMClient, logger *slog.Logger) (*Profile, error) {
	if host == nil {
		return nil, errors.New("specialist: code host must not be nil")
	}
	if llm == nil {
		return nil, errors.New("specialist: llm client must not be nil")
	}
	return &Profile{host: host, llm: llm, logger: loggerOrDefault(logger)}, nil
}

func (p *Profile) Respond(ctx context.Context, state domain.ConversationState) (string, error) {
	username := state.Owner
	if username == "" {
		return "Please provide a valid GitHub username or profile URL (e.g., `octocat` or `https://github.com/octocat`)", nil
	}

	facts, err := p.host.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Sprintf("❌ Unable to find GitHub user **%s**.\n\nPlease check if:\n- The username is correct\n- The profile is public", username), nil
		}
		p.logger.Warn("user lookup failed", "username", username, "err", err)
		return unavailableMessage(username, err), nil
	}
	if facts.Profile.Login == "" {
		facts.Profile.Login = username
	}

	reply, err := p.llm.Chat(ctx, []domain.ChatMessage{
		{Role: "system", Content: profileAnalysisPrompt(facts)},
		{Role: "user", Content: "Analyze this GitHub user's profile: " + facts.Profile.Login},
	})
	if err != nil {
		return "", fmt.Errorf("specialist: profile analysis: %w", err)
	}
	return reply, nil
}
