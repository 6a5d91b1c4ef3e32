// Package paramstore resolves secrets from AWS SSM Parameter Store or, for
// local runs, from environment variables.
package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Secret names, relative to the configured parameter prefix.
const (
	OpenAIToken   = "open-ai-token"
	GeminiToken   = "gemini-token"
	GitHubToken   = "github-token"
	TelegramToken = "telegram-bot-token"
)

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter is the interface that wraps GetParameter.
// Consumers (the LLM, GitHub and Telegram clients) depend on this interface
// rather than the concrete *Client so they remain testable without AWS.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Client wraps an AWS SSM API for parameter retrieval. Relative names are
// resolved under prefix.
type Client struct {
	api    ssmAPI
	prefix string
}

// New creates a Client with the given SSM API implementation.
func New(api ssmAPI, prefix string) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return nil, errors.New("paramstore: prefix must not be empty")
	}
	return &Client{api: api, prefix: prefix}, nil
}

func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}
	if !strings.HasPrefix(name, "/") {
		name = c.prefix + "/" + name
	}

	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, nil
}

// Env serves secrets from environment variables, keyed by secret name.
type Env struct {
	vars   map[string]string
	lookup func(string) (string, bool)
}

// NewEnv maps secret names to the environment variables holding them.
func NewEnv(vars map[string]string) *Env {
	return &Env{vars: vars, lookup: os.LookupEnv}
}

// DefaultEnv is the mapping used when no parameter prefix is configured.
func DefaultEnv() *Env {
	return NewEnv(map[string]string{
		OpenAIToken:   "OPENAI_API_KEY",
		GeminiToken:   "GEMINI_API_KEY",
		GitHubToken:   "GITHUB_TOKEN",
		TelegramToken: "TELEGRAM_BOT_TOKEN",
	})
}

func (e *Env) GetParameter(_ context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	key, ok := e.vars[name]
	if !ok {
		return "", fmt.Errorf("paramstore: unknown secret %q", name)
	}
	v, ok := e.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("paramstore: %s is not set", key)
	}
	return strings.TrimSpace(v), nil
}

type tokenPayload struct {
	Token string `json:"token"`
}

// Token fetches a secret and unwraps it. Values stored as {"token": "..."}
// and plain strings are both accepted.
func Token(ctx context.Context, g Getter, name string) (string, error) {
	if g == nil {
		return "", errors.New("paramstore: getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: token parameter name is empty")
	}

	raw, err := g.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("paramstore: fetch %s: %w", name, err)
	}
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		var tp tokenPayload
		if err := json.Unmarshal([]byte(raw), &tp); err != nil {
			return "", fmt.Errorf("paramstore: unmarshal %s value as JSON: %w", name, err)
		}
		raw = strings.TrimSpace(tp.Token)
	}
	if raw == "" {
		return "", fmt.Errorf("paramstore: %s is empty", name)
	}
	return raw, nil
}
