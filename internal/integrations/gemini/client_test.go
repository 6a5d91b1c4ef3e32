package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"router-agent/internal/domain"
)

type fakeGetter struct {
	val   string
	err   error
	calls int
}

func (f *fakeGetter) GetParameter(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.val, f.err
}

type fakeModels struct {
	resp     *genai.GenerateContentResponse
	err      error
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Role: string(genai.RoleModel), Parts: []*genai.Part{{Text: text}}},
	}}}
}

func newTestClient(t *testing.T, models *fakeModels) (*Client, *fakeGetter) {
	t.Helper()
	g := &fakeGetter{val: `{"token":"gm-key"}`}
	c, err := NewClient(g, "gemini-2.0-flash")
	require.NoError(t, err)
	c.newModels = func(_ context.Context, apiKey string) (modelsAPI, error) {
		require.Equal(t, "gm-key", apiKey)
		return models, nil
	}
	return c, g
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil, "gemini-2.0-flash")
	require.ErrorContains(t, err, "nil")
	_, err = NewClient(&fakeGetter{}, "")
	require.ErrorContains(t, err, "model")
}

func TestChat_MapsRolesAndSystemInstruction(t *testing.T) {
	models := &fakeModels{resp: textResponse("answer")}
	c, g := newTestClient(t, models)

	out, err := c.Chat(context.Background(), []domain.ChatMessage{
		{Role: "system", Content: "be logical"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "what is 2+2"},
	})
	require.NoError(t, err)
	require.Equal(t, "answer", out)
	require.Equal(t, "gemini-2.0-flash", models.model)

	require.Len(t, models.contents, 3)
	require.Equal(t, string(genai.RoleUser), models.contents[0].Role)
	require.Equal(t, string(genai.RoleModel), models.contents[1].Role)
	require.Equal(t, "what is 2+2", models.contents[2].Parts[0].Text)
	require.NotNil(t, models.config.SystemInstruction)
	require.Equal(t, "be logical", models.config.SystemInstruction.Parts[0].Text)
	require.Empty(t, models.config.ResponseMIMEType)

	_, err = c.Chat(context.Background(), []domain.ChatMessage{{Role: "user", Content: "again"}})
	require.NoError(t, err)
	require.Equal(t, 1, g.calls)
}

func TestChatJSON_SetsSchema(t *testing.T) {
	models := &fakeModels{resp: textResponse(`{"category":"general","owner":null,"repo":null}`)}
	c, _ := newTestClient(t, models)

	out, err := c.ChatJSON(context.Background(), []domain.ChatMessage{{Role: "user", Content: "hi"}}, domain.ResponseSchema{
		Name: "message_classification",
		Properties: []domain.SchemaProperty{
			{Name: "category", Enum: []string{"general", "repo_analysis", "profile_analysis"}},
			{Name: "owner", Nullable: true},
		},
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"category":"general","owner":null,"repo":null}`, out)

	cfg := models.config
	require.Equal(t, "application/json", cfg.ResponseMIMEType)
	require.Equal(t, genai.TypeObject, cfg.ResponseSchema.Type)
	require.Equal(t, []string{"category", "owner"}, cfg.ResponseSchema.Required)
	require.Equal(t, []string{"general", "repo_analysis", "profile_analysis"}, cfg.ResponseSchema.Properties["category"].Enum)
	require.Nil(t, cfg.ResponseSchema.Properties["category"].Nullable)
	require.True(t, *cfg.ResponseSchema.Properties["owner"].Nullable)
}

func TestChat_Errors(t *testing.T) {
	t.Run("api error keeps status", func(t *testing.T) {
		c, _ := newTestClient(t, &fakeModels{err: genai.APIError{Code: 429, Message: "quota"}})
		_, err := c.Chat(context.Background(), []domain.ChatMessage{{Role: "user", Content: "hi"}})
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, 429, statusErr.HTTPStatusCode())
	})
	t.Run("transport error", func(t *testing.T) {
		c, _ := newTestClient(t, &fakeModels{err: errors.New("dial tcp")})
		_, err := c.Chat(context.Background(), []domain.ChatMessage{{Role: "user", Content: "hi"}})
		require.ErrorContains(t, err, "generate content")
	})
	t.Run("no candidates", func(t *testing.T) {
		c, _ := newTestClient(t, &fakeModels{resp: &genai.GenerateContentResponse{}})
		_, err := c.Chat(context.Background(), []domain.ChatMessage{{Role: "user", Content: "hi"}})
		require.ErrorContains(t, err, "no candidates")
	})
	t.Run("only system messages", func(t *testing.T) {
		c, _ := newTestClient(t, &fakeModels{resp: textResponse("x")})
		_, err := c.Chat(context.Background(), []domain.ChatMessage{{Role: "system", Content: "rules"}})
		require.ErrorContains(t, err, "no user or model messages")
	})
}

func TestReady_ReportsMissingKey(t *testing.T) {
	c, err := NewClient(&fakeGetter{err: errors.New("GEMINI_API_KEY is not set")}, "gemini-2.0-flash")
	require.NoError(t, err)
	require.ErrorContains(t, c.Ready(context.Background()), "GEMINI_API_KEY")
}
