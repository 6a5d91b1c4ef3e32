// Package bot is the Telegram front-end. Each chat is one session.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"router-agent/internal/domain"
	"router-agent/internal/integrations/telegram"
	"router-agent/internal/usecase"
)

type Turns interface {
	Process(ctx context.Context, in usecase.TurnInput) (usecase.TurnOutput, error)
	Clear(ctx context.Context, sessionID string) error
	Stats(ctx context.Context, sessionID string) (domain.SessionStats, bool, error)
}

// Sender is the outgoing half of the bot API.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text, parseMode string) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
}

// Poller is the long-polling half of the bot API.
type Poller interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
	DeleteWebhook(ctx context.Context) error
}

type Bot struct {
	turns  Turns
	sender Sender
	logger *slog.Logger
}

func New(turns Turns, sender Sender, logger *slog.Logger) (*Bot, error) {
	if turns == nil {
		return nil, errors.New("bot: turn service must not be nil")
	}
	if sender == nil {
		return nil, errors.New("bot: sender must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{turns: turns, sender: sender, logger: logger}, nil
}

// SessionID is the session key of a chat.
func SessionID(chatID int64) string {
	return "telegram:" + strconv.FormatInt(chatID, 10)
}

// HandleUpdate answers one update. Updates without text are ignored.
func (b *Bot) HandleUpdate(ctx context.Context, u telegram.Update) error {
	if u.Message == nil || u.Message.Chat == nil || strings.TrimSpace(u.Message.Text) == "" {
		return nil
	}
	chatID := u.Message.Chat.ID
	text := strings.TrimSpace(u.Message.Text)

	if cmd, ok := command(text); ok {
		return b.handleCommand(ctx, chatID, cmd)
	}
	return b.handleText(ctx, chatID, text)
}

// command returns the lower-cased command name of "/name@bot args".
func command(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name := strings.Fields(text)[0][1:]
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return strings.ToLower(name), true
}

func (b *Bot) handleCommand(ctx context.Context, chatID int64, cmd string) error {
	sessionID := SessionID(chatID)
	switch cmd {
	case "start":
		st, found, err := b.turns.Stats(ctx, sessionID)
		if err != nil {
			b.logger.Warn("could not read session stats", "session_id", sessionID, "err", err)
		}
		if found && st.Total > 0 {
			return b.send(ctx, chatID, fmt.Sprintf(welcomeBackText, st.Total))
		}
		return b.send(ctx, chatID, welcomeText)
	case "help":
		return b.send(ctx, chatID, helpText)
	case "example", "examples":
		return b.send(ctx, chatID, exampleText)
	case "clear":
		if err := b.turns.Clear(ctx, sessionID); err != nil {
			b.logger.Error("failed to clear session", "session_id", sessionID, "err", err)
			return b.send(ctx, chatID, errorText)
		}
		return b.send(ctx, chatID, "✅ Your conversation history has been cleared!")
	case "stats":
		st, found, err := b.turns.Stats(ctx, sessionID)
		if err != nil {
			b.logger.Error("failed to read session stats", "session_id", sessionID, "err", err)
			return b.send(ctx, chatID, errorText)
		}
		if !found || st.Total == 0 {
			return b.send(ctx, chatID, "No conversation history found. Start chatting with me!")
		}
		return b.send(ctx, chatID, fmt.Sprintf(statsText, st.Total, st.UserCount, st.AssistantCount))
	default:
		return b.send(ctx, chatID, "Unknown command. Send /help to see what I can do.")
	}
}

func (b *Bot) handleText(ctx context.Context, chatID int64, text string) error {
	sessionID := SessionID(chatID)
	if err := b.sender.SendChatAction(ctx, chatID, telegram.ChatActionTyping); err != nil {
		b.logger.Debug("typing action failed", "session_id", sessionID, "err", err)
	}

	out, err := b.turns.Process(ctx, usecase.TurnInput{SessionID: sessionID, Text: text})
	if err != nil {
		var ue *usecase.Error
		switch {
		case out.Reply != "":
			// the reply exists but was not saved
			b.logger.Warn("turn not persisted", "session_id", sessionID, "err", err)
		case errors.As(err, &ue) && ue.Code == usecase.ErrorInvalidInput:
			return b.send(ctx, chatID, invalidInputText(ue.Reason))
		default:
			b.logger.Error("turn failed", "session_id", sessionID, "err", err)
			return b.send(ctx, chatID, errorText)
		}
	}

	reply := out.Category.Emoji() + " " + out.Reply
	for _, chunk := range telegram.SplitMessage(reply, telegram.MaxMessageLength) {
		if err := b.send(ctx, chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// send tries Markdown first and falls back to plain text when Telegram
// rejects the markup.
func (b *Bot) send(ctx context.Context, chatID int64, text string) error {
	err := b.sender.SendMessage(ctx, chatID, text, "Markdown")
	var apiErr *telegram.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode() == http.StatusBadRequest {
		err = b.sender.SendMessage(ctx, chatID, text, "")
	}
	if err != nil {
		return fmt.Errorf("bot: send message: %w", err)
	}
	return nil
}

// Run long-polls for updates until ctx is cancelled. Failed updates are
// logged and skipped; polling errors back off and retry.
func (b *Bot) Run(ctx context.Context, p Poller, timeout time.Duration) error {
	if err := p.DeleteWebhook(ctx); err != nil {
		return fmt.Errorf("bot: delete webhook: %w", err)
	}
	b.logger.Info("telegram bot polling for updates")

	var offset int64
	backoff := time.Second
	for {
		updates, err := p.GetUpdates(ctx, offset, timeout)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			b.logger.Warn("getUpdates failed", "err", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		backoff = time.Second

		for _, u := range updates {
			offset = int64(u.UpdateID) + 1
			if err := b.HandleUpdate(ctx, u); err != nil {
				b.logger.Error("failed to handle update", "update_id", u.UpdateID, "err", err)
			}
		}
	}
}

func invalidInputText(reason string) string {
	if reason == "message_too_long" {
		return "⚠️ That message is too long. Please shorten it and try again."
	}
	return "⚠️ Please send a text message."
}

const (
	welcomeText = "Hello! 👋 I'm your GitHub analysis assistant.\n\n" +
		"👤 Send a profile URL or username for a GitHub user analysis\n" +
		"🔍 Send a repository URL or owner/repo for a repository review\n" +
		"🧠 Ask anything else for logical assistance\n\n" +
		"Commands:\n" +
		"/start - Start conversation\n" +
		"/example - Show example messages\n" +
		"/clear - Clear history\n" +
		"/stats - View statistics\n" +
		"/help - Show help"

	welcomeBackText = "Welcome back! 👋\n\n" +
		"I've loaded your previous conversation (%d messages).\n" +
		"Send /clear to start over."

	helpText = "🤖 *GitHub Assistant Help*\n\n" +
		"I automatically detect whether you need:\n" +
		"👤 User analysis (profile, languages, activity)\n" +
		"🔍 Repository analysis (quality scores and grade)\n" +
		"🧠 Logical assistance (facts and explanations)\n\n" +
		"*Commands:*\n" +
		"/start - Start/restart conversation\n" +
		"/example - Show example messages\n" +
		"/clear - Clear conversation history\n" +
		"/stats - View conversation statistics\n" +
		"/help - Show this help message"

	exampleText = "💡 *Examples*\n\n" +
		"👤 https://github.com/octocat\n" +
		"👤 analyze user torvalds\n" +
		"🔍 https://github.com/torvalds/linux\n" +
		"🔍 repo Freelance-web by mohitjoer\n" +
		"🧠 What is a B-tree?"

	statsText = "📊 *Conversation Statistics*\n\n" +
		"Total Messages: %d\n" +
		"Your Messages: %d\n" +
		"My Responses: %d"

	errorText = "Sorry, something went wrong. Please try again."
)
