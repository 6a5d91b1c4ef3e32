package classifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"router-agent/internal/domain"
)

type fakeLLM struct {
	raw        string
	err        error
	calls      int
	lastSchema domain.ResponseSchema
	lastMsgs   []domain.ChatMessage
}

func (f *fakeLLM) ChatJSON(_ context.Context, msgs []domain.ChatMessage, schema domain.ResponseSchema) (string, error) {
	f.calls++
	f.lastMsgs = msgs
	f.lastSchema = schema
	return f.raw, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClassifier(t *testing.T, llm LLMClient) *Classifier {
	t.Helper()
	c, err := New(llm, quietLogger())
	require.NoError(t, err)
	return c
}

func TestNew_NilLLM(t *testing.T) {
	_, err := New(nil, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

func TestClassify_ModelDecisionUsedAsIs(t *testing.T) {
	llm := &fakeLLM{raw: `{"category":"repo_analysis","owner":"torvalds","repo":"linux"}`}
	c := newTestClassifier(t, llm)

	got := c.Classify(context.Background(), "grade the linux kernel repo by torvalds")
	require.Equal(t, domain.ClassificationResult{Category: domain.CategoryRepoAnalysis, Owner: "torvalds", Repo: "linux"}, got)
	require.Equal(t, 1, llm.calls)
	require.Equal(t, "user", llm.lastMsgs[1].Role)
	require.Equal(t, "grade the linux kernel repo by torvalds", llm.lastMsgs[1].Content)
}

func TestClassify_SchemaEnumeratesThreeCategories(t *testing.T) {
	llm := &fakeLLM{raw: `{"category":"general","owner":null,"repo":null}`}
	c := newTestClassifier(t, llm)
	c.Classify(context.Background(), "hi")

	require.Equal(t, "category", llm.lastSchema.Properties[0].Name)
	require.ElementsMatch(t, []string{"general", "repo_analysis", "profile_analysis"}, llm.lastSchema.Properties[0].Enum)
	require.True(t, llm.lastSchema.Properties[1].Nullable)
	require.True(t, llm.lastSchema.Properties[2].Nullable)
}

func TestClassify_GeneralQuestion(t *testing.T) {
	llm := &fakeLLM{raw: `{"category":"general","owner":null,"repo":null}`}
	c := newTestClassifier(t, llm)

	got := c.Classify(context.Background(), "What is a B-tree?")
	require.Equal(t, domain.ClassificationResult{Category: domain.CategoryGeneral}, got)
}

func TestClassify_GeneralDropsIdentifiers(t *testing.T) {
	llm := &fakeLLM{raw: `{"category":"general","owner":"someone","repo":"something"}`}
	c := newTestClassifier(t, llm)

	got := c.Classify(context.Background(), "How do hash maps work?")
	require.Equal(t, domain.ClassificationResult{Category: domain.CategoryGeneral}, got)
}

func TestClassify_DegradesToGeneral(t *testing.T) {
	cases := map[string]*fakeLLM{
		"model error":      {err: errors.New("upstream down")},
		"invalid category": {raw: `{"category":"therapy","owner":null,"repo":null}`},
		"missing category": {raw: `{"owner":null,"repo":null}`},
		"not json":         {raw: `I think this is about GitHub`},
		"unknown field":    {raw: `{"category":"general","owner":null,"repo":null,"mood":"happy"}`},
		"multiple values":  {raw: `{"category":"general"}{"category":"general"}`},
	}
	for name, llm := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestClassifier(t, llm)
			got := c.Classify(context.Background(), "tell me something")
			require.Equal(t, domain.ClassificationResult{Category: domain.CategoryGeneral}, got)
		})
	}
}

func TestClassify_LegacyAliasAccepted(t *testing.T) {
	llm := &fakeLLM{raw: `{"category":"Github_user","owner":"octocat","repo":null}`}
	c := newTestClassifier(t, llm)

	got := c.Classify(context.Background(), "who is octocat")
	require.Equal(t, domain.ClassificationResult{Category: domain.CategoryProfileAnalysis, Owner: "octocat"}, got)
}

func TestClassify_CodeFencedJSON(t *testing.T) {
	llm := &fakeLLM{raw: "```json\n{\"category\":\"profile_analysis\",\"owner\":\"@octocat\",\"repo\":null}\n```"}
	c := newTestClassifier(t, llm)

	got := c.Classify(context.Background(), "profile of octocat")
	require.Equal(t, domain.ClassificationResult{Category: domain.CategoryProfileAnalysis, Owner: "octocat"}, got)
}

func TestClassify_RepoURL(t *testing.T) {
	cases := []struct {
		in, owner, repo string
	}{
		{"https://github.com/torvalds/linux", "torvalds", "linux"},
		{"rate https://github.com/MohitJoer/Freelance-Web please", "MohitJoer", "Freelance-Web"},
		{"github.com/golang/go/issues/1", "golang", "go"},
	}
	// The URL decides even when the model answers something else or fails.
	models := []*fakeLLM{
		{raw: `{"category":"general","owner":null,"repo":null}`},
		{raw: `{"category":"profile_analysis","owner":"TORVALDS","repo":null}`},
		{err: errors.New("timeout")},
	}
	for _, tc := range cases {
		for _, llm := range models {
			c := newTestClassifier(t, llm)
			got := c.Classify(context.Background(), tc.in)
			require.Equal(t, domain.ClassificationResult{Category: domain.CategoryRepoAnalysis, Owner: tc.owner, Repo: tc.repo}, got, tc.in)
		}
	}
}

func TestClassify_ProfileURL(t *testing.T) {
	llm := &fakeLLM{raw: `{"category":"repo_analysis","owner":"octocat","repo":"hello"}`}
	c := newTestClassifier(t, llm)

	got := c.Classify(context.Background(), "https://github.com/octocat")
	require.Equal(t, domain.ClassificationResult{Category: domain.CategoryProfileAnalysis, Owner: "octocat"}, got)
}

func TestClassify_FallbackFillsMissingRepoFields(t *testing.T) {
	llm := &fakeLLM{raw: `{"category":"repo_analysis","owner":null,"repo":null}`}
	c := newTestClassifier(t, llm)

	got := c.Classify(context.Background(), "repo Freelance-web by mohitjoer")
	require.Equal(t, domain.ClassificationResult{Category: domain.CategoryRepoAnalysis, Owner: "mohitjoer", Repo: "Freelance-web"}, got)
}

func TestClassify_FallbackNeverOverwritesModelValues(t *testing.T) {
	llm := &fakeLLM{raw: `{"category":"repo_analysis","owner":"mohit-joer","repo":null}`}
	c := newTestClassifier(t, llm)

	got := c.Classify(context.Background(), "repo Freelance-web by mohitjoer")
	require.Equal(t, "mohit-joer", got.Owner)
	require.Equal(t, "Freelance-web", got.Repo)
}

func TestClassify_FallbackFillsOwnerNamedAfterRepo(t *testing.T) {
	for _, msg := range []string{
		"analyze linux, the owner is torvalds",
		"grade the linux repo, owner is torvalds",
	} {
		t.Run(msg, func(t *testing.T) {
			llm := &fakeLLM{raw: `{"category":"repo_analysis","owner":null,"repo":"linux"}`}
			c := newTestClassifier(t, llm)

			got := c.Classify(context.Background(), msg)
			require.Equal(t, domain.ClassificationResult{Category: domain.CategoryRepoAnalysis, Owner: "torvalds", Repo: "linux"}, got)
		})
	}
}

func TestClassify_FallbackIgnoresOwnerEqualToModelRepo(t *testing.T) {
	llm := &fakeLLM{raw: `{"category":"repo_analysis","owner":null,"repo":"linux"}`}
	c := newTestClassifier(t, llm)

	got := c.Classify(context.Background(), "analyze linux kernel")
	require.Equal(t, domain.ClassificationResult{Category: domain.CategoryRepoAnalysis, Repo: "linux"}, got)
}

func TestClassify_FallbackFillsMissingProfileOwner(t *testing.T) {
	llm := &fakeLLM{raw: `{"category":"profile_analysis","owner":"","repo":null}`}
	c := newTestClassifier(t, llm)

	got := c.Classify(context.Background(), "show me the profile of @gaearon")
	require.Equal(t, domain.ClassificationResult{Category: domain.CategoryProfileAnalysis, Owner: "gaearon"}, got)
}

func TestClassify_ProfileDropsRepo(t *testing.T) {
	llm := &fakeLLM{raw: `{"category":"profile_analysis","owner":"octocat","repo":"spoon-knife"}`}
	c := newTestClassifier(t, llm)

	got := c.Classify(context.Background(), "tell me about octocat")
	require.Empty(t, got.Repo)
}
