// Package telegram adapts the Telegram Bot API library to the calls the bot
// front-end needs.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MaxMessageLength is the chunk size used when splitting replies. The API
// limit is 4096 characters; the margin leaves room for formatting.
const MaxMessageLength = 4000

const ChatActionTyping = tgbotapi.ChatTyping

type (
	Update  = tgbotapi.Update
	Message = tgbotapi.Message
	Chat    = tgbotapi.Chat
	User    = tgbotapi.User
)

// APIError is a request the Bot API rejected.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s failed with %d: %s", e.Method, e.Code, e.Description)
}

func (e *APIError) HTTPStatusCode() int { return e.Code }

type Client struct {
	api        *tgbotapi.BotAPI
	httpClient *http.Client
}

type options struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*options)

// WithBaseURL points the client at another Bot API server.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
			o.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) {
		if httpClient != nil {
			o.httpClient = httpClient
		}
	}
}

// New checks the token with getMe and returns a ready client.
func New(token string, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("telegram: bot token must not be empty")
	}
	o := options{httpClient: &http.Client{Timeout: 70 * time.Second}}
	for _, opt := range opts {
		opt(&o)
	}
	endpoint := tgbotapi.APIEndpoint
	if o.baseURL != "" {
		endpoint = o.baseURL + "/bot%s/%s"
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, o.httpClient)
	if err != nil {
		return nil, mapError("getMe", err)
	}
	return &Client{api: api, httpClient: o.httpClient}, nil
}

// ctxDoer binds one call's context to the requests the library builds.
type ctxDoer struct {
	ctx    context.Context
	client *http.Client
}

func (d ctxDoer) Do(req *http.Request) (*http.Response, error) {
	return d.client.Do(req.WithContext(d.ctx))
}

func (c *Client) withContext(ctx context.Context) *tgbotapi.BotAPI {
	api := *c.api
	api.Client = ctxDoer{ctx: ctx, client: c.httpClient}
	return &api
}

// GetUpdates long-polls for message updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	updates, err := c.withContext(ctx).GetUpdates(tgbotapi.UpdateConfig{
		Offset:         int(offset),
		Timeout:        int(timeout.Seconds()),
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return nil, mapError("getUpdates", err)
	}
	return updates, nil
}

// SendMessage sends text as-is. parseMode may be empty.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text, parseMode string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = parseMode
	if _, err := c.withContext(ctx).Request(msg); err != nil {
		return mapError("sendMessage", err)
	}
	return nil
}

func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	if _, err := c.withContext(ctx).Request(tgbotapi.NewChatAction(chatID, action)); err != nil {
		return mapError("sendChatAction", err)
	}
	return nil
}

// DeleteWebhook removes any webhook so getUpdates can be used.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	if _, err := c.withContext(ctx).Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return mapError("deleteWebhook", err)
	}
	return nil
}

func mapError(method string, err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return &APIError{Method: method, Code: apiErr.Code, Description: apiErr.Message}
	}
	// the URL carries the token
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	return fmt.Errorf("telegram: %s request failed: %w", method, err)
}

// SplitMessage cuts text into ordered chunks of at most limit runes,
// preferring to break after a newline. Concatenating the chunks yields text.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLength
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
