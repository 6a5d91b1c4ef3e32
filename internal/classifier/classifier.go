// Package classifier decides which specialist should answer a user message
// and which GitHub identifiers it refers to.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"router-agent/internal/domain"
	"router-agent/internal/extract"
)

// LLMClient is the structured-output half of a text generation provider.
type LLMClient interface {
	ChatJSON(ctx context.Context, messages []domain.ChatMessage, schema domain.ResponseSchema) (string, error)
}

// Classifier combines a model decision with deterministic extraction.
type Classifier struct {
	llm    LLMClient
	logger *slog.Logger
}

func New(llm LLMClient, logger *slog.Logger) (*Classifier, error) {
	if llm == nil {
		return nil, errors.New("classifier: llm client must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{llm: llm, logger: logger}, nil
}

// Classify never fails: model errors and invalid answers degrade to the
// general category.
func (c *Classifier) Classify(ctx context.Context, message string) domain.ClassificationResult {
	res, err := c.askModel(ctx, message)
	if err != nil {
		c.logger.Warn("classification degraded to general", "err", err)
		res = domain.ClassificationResult{Category: domain.CategoryGeneral}
	}

	res = pinURL(message, res)
	res = fillMissing(message, res)
	return normalize(res)
}

func (c *Classifier) askModel(ctx context.Context, message string) (domain.ClassificationResult, error) {
	raw, err := c.llm.ChatJSON(ctx, buildClassifierMessages(message), responseSchema())
	if err != nil {
		return domain.ClassificationResult{}, fmt.Errorf("classifier: model call: %w", err)
	}
	decision, err := parseDecision(raw)
	if err != nil {
		return domain.ClassificationResult{}, err
	}
	cat, ok := domain.ParseCategory(decision.Category)
	if !ok {
		return domain.ClassificationResult{}, fmt.Errorf("classifier: invalid category %q", decision.Category)
	}
	return domain.ClassificationResult{
		Category: cat,
		Owner:    extract.Clean(deref(decision.Owner)),
		Repo:     extract.Clean(deref(decision.Repo)),
	}, nil
}

// pinURL lets a code-host URL in the message decide the category and the
// identifiers. The path segments are authoritative over the model.
func pinURL(message string, res domain.ClassificationResult) domain.ClassificationResult {
	owner, repo, ok := extract.URL(message)
	if !ok {
		return res
	}
	if repo == "" {
		return domain.ClassificationResult{Category: domain.CategoryProfileAnalysis, Owner: owner}
	}
	return domain.ClassificationResult{Category: domain.CategoryRepoAnalysis, Owner: owner, Repo: repo}
}

// fillMissing consults the extractor only for empty fields.
func fillMissing(message string, res domain.ClassificationResult) domain.ClassificationResult {
	switch res.Category {
	case domain.CategoryProfileAnalysis:
		if res.Owner == "" {
			res.Owner = extract.Owner(message)
		}
	case domain.CategoryRepoAnalysis:
		if res.Owner == "" || res.Repo == "" {
			owner, repo := extract.OwnerRepo(message)
			// a token-scan owner that is really the model's repo is discarded
			if res.Repo != "" && strings.EqualFold(owner, res.Repo) && !strings.EqualFold(repo, res.Repo) {
				owner = ""
			}
			if res.Owner == "" {
				res.Owner = owner
			}
			if res.Repo == "" {
				res.Repo = repo
			}
		}
	}
	return res
}

func normalize(res domain.ClassificationResult) domain.ClassificationResult {
	switch res.Category {
	case domain.CategoryRepoAnalysis:
	case domain.CategoryProfileAnalysis:
		res.Repo = ""
	default:
		return domain.ClassificationResult{Category: domain.CategoryGeneral}
	}
	res.Owner = strings.TrimSpace(res.Owner)
	res.Repo = strings.TrimSpace(res.Repo)
	return res
}
