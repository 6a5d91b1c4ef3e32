package specialist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"router-agent/internal/domain"
)

const maxSuggestions = 10

// Repository grades a single GitHub repository.
type Repository struct {
	host   CodeHost
	llm    LLMClient
	logger *slog.Logger
}

func NewRepository(host CodeHost, llm LLMClient, logger *slog.Logger) (*Repository, error) {
	if host == nil {
		return nil, errors.New("specialist: code host must not be nil")
	}
	if llm == nil {
		return nil, errors.New("specialist: llm client must not be nil")
	}
	return &Repository{host: host, llm: llm, logger: loggerOrDefault(logger)}, nil
}

func (r *Repository) Respond(ctx context.Context, state domain.ConversationState) (string, error) {
	owner, repo := state.Owner, state.Repo
	if owner == "" || repo == "" {
		return clarifyRepoMessage(owner, repo), nil
	}

	facts, note, msg := r.lookup(ctx, owner, repo)
	if msg != "" {
		return msg, nil
	}
	if facts.FullName == "" {
		facts.FullName = owner + "/" + facts.Name
	}

	url := "https://github.com/" + facts.FullName
	reply, err := r.llm.Chat(ctx, []domain.ChatMessage{
		{Role: "system", Content: repoAnalysisPrompt(facts, url)},
		{Role: "user", Content: "Please analyze this GitHub repository: " + url},
	})
	if err != nil {
		return "", fmt.Errorf("specialist: repository analysis: %w", err)
	}
	if note != "" {
		return note + "\n\n" + reply, nil
	}
	return reply, nil
}

// lookup resolves the repository, falling back to the closest public
// repository of the same owner. A non-empty msg is a finished reply.
func (r *Repository) lookup(ctx context.Context, owner, repo string) (facts domain.RepoFacts, note, msg string) {
	facts, err := r.host.GetRepository(ctx, owner, repo)
	if err == nil {
		return facts, "", ""
	}
	if !errors.Is(err, domain.ErrNotFound) {
		r.logger.Warn("repository lookup failed", "owner", owner, "repo", repo, "err", err)
		return domain.RepoFacts{}, "", unavailableMessage(owner+"/"+repo, err)
	}

	available, err := r.host.ListPublicRepos(ctx, owner)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.RepoFacts{}, "", repoNotFoundMessage(owner, repo, nil, false)
		}
		r.logger.Warn("listing public repositories failed", "owner", owner, "err", err)
		return domain.RepoFacts{}, "", unavailableMessage(owner+"/"+repo, err)
	}

	names := make([]string, 0, len(available))
	for _, s := range available {
		names = append(names, s.Name)
	}
	best, score, ok := BestMatch(repo, names)
	if !ok {
		return domain.RepoFacts{}, "", repoNotFoundMessage(owner, repo, names, true)
	}
	r.logger.Info("repository resolved by similarity", "owner", owner, "requested", repo, "matched", best, "score", score)

	facts, err = r.host.GetRepository(ctx, owner, best)
	if err != nil {
		r.logger.Warn("matched repository lookup failed", "owner", owner, "repo", best, "err", err)
		return domain.RepoFacts{}, "", unavailableMessage(owner+"/"+best, err)
	}
	note = fmt.Sprintf("ℹ️ Repository **%s/%s** was not found; analyzing the closest match **%s/%s** instead.", owner, repo, owner, best)
	return facts, note, ""
}

func clarifyRepoMessage(owner, repo string) string {
	switch {
	case owner != "" && repo == "":
		return fmt.Sprintf("Which repository of **%s** should I analyze? Send it as `https://github.com/%s/<repo>`.", owner, owner)
	case owner == "" && repo != "":
		return fmt.Sprintf("Who owns the repository **%s**? Send it as `https://github.com/<owner>/%s`.", repo, repo)
	default:
		return "Please provide a valid GitHub repository URL (e.g., https://github.com/owner/repo)"
	}
}

func repoNotFoundMessage(owner, repo string, names []string, ownerExists bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "❌ Unable to find repository **%s/%s**.\n\n", owner, repo)
	switch {
	case !ownerExists:
		fmt.Fprintf(&b, "The GitHub user **%s** does not exist or is not public.", owner)
	case len(names) == 0:
		fmt.Fprintf(&b, "**%s** has no public repositories.", owner)
	default:
		shown := names
		if len(shown) > maxSuggestions {
			shown = shown[:maxSuggestions]
		}
		fmt.Fprintf(&b, "Available repositories for **%s**:\n", owner)
		for _, n := range shown {
			fmt.Fprintf(&b, "- %s\n", n)
		}
		if rest := len(names) - len(shown); rest > 0 {
			fmt.Fprintf(&b, "... and %d more\n", rest)
		}
		b.WriteString("\nPlease check the repository name and try again.")
	}
	return b.String()
}

func unavailableMessage(target string, err error) string {
	if errors.Is(err, domain.ErrRateLimited) {
		return fmt.Sprintf("⏳ GitHub is rate limiting requests right now, so I could not fetch **%s**. Please try again in a few minutes.", target)
	}
	return fmt.Sprintf("❌ Unable to fetch data for **%s**.\n\nPlease check if:\n- The repository or user exists\n- It is public\n- The GitHub token has proper permissions", target)
}
