// Package gemini adapts the Google Gen AI SDK to the chat interfaces used by
// the classifier and the specialists.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"router-agent/internal/domain"
	"router-agent/internal/integrations/paramstore"
)

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// modelsAPI is the part of *genai.Models the client needs.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// StatusError carries the HTTP status of a failed Gemini API call.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gemini: status %d: %v", e.Code, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

func (e *StatusError) HTTPStatusCode() int { return e.Code }

// Client generates text with a Gemini model. The SDK client is created on
// first use, once the API key has been resolved.
type Client struct {
	getter      Getter
	model       string
	temperature *float32
	newModels   func(ctx context.Context, apiKey string) (modelsAPI, error)

	initOnce sync.Once
	models   modelsAPI
	initErr  error
}

type Option func(*Client)

func WithTemperature(t float32) Option {
	return func(c *Client) {
		c.temperature = &t
	}
}

func NewClient(getter Getter, model string, opts ...Option) (*Client, error) {
	if getter == nil {
		return nil, errors.New("gemini: paramstore getter must not be nil")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("gemini: model must not be empty")
	}
	c := &Client{getter: getter, model: model, newModels: newSDKModels}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func newSDKModels(ctx context.Context, apiKey string) (modelsAPI, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return client.Models, nil
}

func (c *Client) Model() string { return c.model }

// Ready resolves the key and builds the SDK client eagerly.
func (c *Client) Ready(ctx context.Context) error {
	_, err := c.resolveModels(ctx)
	return err
}

func (c *Client) resolveModels(ctx context.Context) (modelsAPI, error) {
	c.initOnce.Do(func() {
		key, err := paramstore.Token(ctx, c.getter, paramstore.GeminiToken)
		if err != nil {
			c.initErr = fmt.Errorf("gemini: %w", err)
			return
		}
		c.models, c.initErr = c.newModels(ctx, key)
	})
	return c.models, c.initErr
}

// Chat returns the free-text completion for messages. System messages are
// merged into the system instruction.
func (c *Client) Chat(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	system, contents := splitMessages(messages)
	return c.generate(ctx, contents, c.config(system))
}

// ChatJSON constrains the completion to schema and returns the raw JSON text.
func (c *Client) ChatJSON(ctx context.Context, messages []domain.ChatMessage, schema domain.ResponseSchema) (string, error) {
	if schema.Name == "" || len(schema.Properties) == 0 {
		return "", errors.New("gemini: response schema needs a name and properties")
	}
	system, contents := splitMessages(messages)
	cfg := c.config(system)
	cfg.ResponseMIMEType = "application/json"
	cfg.ResponseSchema = toSchema(schema)
	return c.generate(ctx, contents, cfg)
}

func (c *Client) config(system string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{Temperature: c.temperature}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return cfg
}

func (c *Client) generate(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	models, err := c.resolveModels(ctx)
	if err != nil {
		return "", err
	}
	if len(contents) == 0 {
		return "", errors.New("gemini: no user or model messages to send")
	}

	resp, err := models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &StatusError{Code: apiErr.Code, Err: err}
		}
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("gemini: no candidates in response")
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("gemini: empty response text")
	}
	return text, nil
}

// splitMessages maps chat roles onto Gemini contents. Gemini has no system
// role in the conversation, so system text is collected separately.
func splitMessages(messages []domain.ChatMessage) (string, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case string(domain.RoleSystem):
			system = append(system, m.Content)
		case string(domain.RoleAssistant):
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), contents
}

func toSchema(s domain.ResponseSchema) *genai.Schema {
	out := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(s.Properties)),
		Required:   make([]string, 0, len(s.Properties)),
	}
	for _, p := range s.Properties {
		prop := &genai.Schema{
			Type:        genai.TypeString,
			Description: p.Description,
			Enum:        p.Enum,
		}
		if p.Nullable {
			nullable := true
			prop.Nullable = &nullable
		}
		if len(p.Enum) > 0 {
			prop.Format = "enum"
		}
		out.Properties[p.Name] = prop
		out.Required = append(out.Required, p.Name)
	}
	return out
}
