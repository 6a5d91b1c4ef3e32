package classifier

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"router-agent/internal/domain"
)

type modelDecision struct {
	Category string  `json:"category"`
	Owner    *string `json:"owner"`
	Repo     *string `json:"repo"`
}

func buildClassifierMessages(message string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: "system", Content: buildInstructionPrompt()},
		{Role: "user", Content: message},
	}
}

func buildInstructionPrompt() string {
	return strings.Join([]string{
		"Task:",
		"Classify the user message into exactly one of these categories:",
		"- profile_analysis: the message refers to a GitHub user or profile and names no repository.",
		"- repo_analysis: the message refers to a GitHub repository and both the owner and the repository name can be identified.",
		"- general: anything else, including facts, explanations, logical questions and practical advice.",
		"",
		"Disambiguation:",
		"- A URL of the form github.com/<owner> with no further path segment is a profile reference.",
		"- A URL of the form github.com/<owner>/<repo> is a repository reference.",
		"",
		"Extraction:",
		"- owner: the GitHub username or repository owner, exactly as written, without a leading @.",
		"- repo: the repository name exactly as written, only for repo_analysis.",
		"- Use null when a value is not present in the message.",
		"",
		"Output Contract:",
		"Return JSON only with keys category, owner and repo.",
	}, "\n")
}

func responseSchema() domain.ResponseSchema {
	cats := domain.Categories()
	enum := make([]string, 0, len(cats))
	for _, c := range cats {
		enum = append(enum, string(c))
	}
	return domain.ResponseSchema{
		Name: "message_classification",
		Properties: []domain.SchemaProperty{
			{Name: "category", Description: "Routing category of the message.", Enum: enum},
			{Name: "owner", Description: "GitHub username or repository owner.", Nullable: true},
			{Name: "repo", Description: "GitHub repository name.", Nullable: true},
		},
	}
}

func parseDecision(raw string) (modelDecision, error) {
	var out modelDecision
	dec := json.NewDecoder(bytes.NewBufferString(strings.TrimSpace(stripCodeFence(raw))))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return modelDecision{}, fmt.Errorf("classifier: decode decision: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return modelDecision{}, errors.New("classifier: decode decision: multiple JSON values")
		}
		return modelDecision{}, fmt.Errorf("classifier: decode decision trailing data: %w", err)
	}
	return out, nil
}

// stripCodeFence removes a ```json fence some providers wrap around JSON
// even in structured mode.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
