// Package console is the interactive terminal front-end.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"router-agent/internal/domain"
	"router-agent/internal/usecase"
)

// DefaultSessionID is used when no session is given on the command line.
const DefaultSessionID = "console_session"

type Turns interface {
	Process(ctx context.Context, in usecase.TurnInput) (usecase.TurnOutput, error)
	Clear(ctx context.Context, sessionID string) error
	Stats(ctx context.Context, sessionID string) (domain.SessionStats, bool, error)
}

// Renderer turns markdown into terminal output.
type Renderer interface {
	Render(markdown string) (string, error)
}

type plainRenderer struct{}

func (plainRenderer) Render(s string) (string, error) { return s + "\n", nil }

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	rule       = strings.Repeat("─", 60)
)

type Console struct {
	turns     Turns
	sessionID string
	in        io.Reader
	out       io.Writer
	renderer  Renderer
	logger    *slog.Logger
}

type Option func(*Console)

func WithSessionID(id string) Option {
	return func(c *Console) {
		if id = strings.TrimSpace(id); id != "" {
			c.sessionID = id
		}
	}
}

func WithRenderer(r Renderer) Option {
	return func(c *Console) {
		if r != nil {
			c.renderer = r
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Console) {
		if l != nil {
			c.logger = l
		}
	}
}

func New(turns Turns, in io.Reader, out io.Writer, opts ...Option) (*Console, error) {
	if turns == nil {
		return nil, errors.New("console: turn service must not be nil")
	}
	if in == nil || out == nil {
		return nil, errors.New("console: input and output must not be nil")
	}
	c := &Console{turns: turns, sessionID: DefaultSessionID, in: in, out: out, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if c.renderer == nil {
		c.renderer = newMarkdownRenderer(c.logger)
	}
	return c, nil
}

func newMarkdownRenderer(logger *slog.Logger) Renderer {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		logger.Warn("markdown rendering unavailable", "err", err)
		return plainRenderer{}
	}
	return r
}

// Run reads lines until "exit", EOF or ctx cancellation.
func (c *Console) Run(ctx context.Context) error {
	c.banner(ctx)

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(c.out, labelStyle.Render("You: "))
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("console: read input: %w", err)
			}
			fmt.Fprintln(c.out)
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			fmt.Fprintln(c.out, "\n👋 Goodbye! Have a great day!")
			return nil
		case "clear":
			c.clear(ctx)
		case "stats":
			c.stats(ctx)
		default:
			c.turn(ctx, line)
		}
	}
}

func (c *Console) banner(ctx context.Context) {
	if st, found, err := c.turns.Stats(ctx, c.sessionID); err != nil {
		c.logger.Warn("could not read session stats", "session_id", c.sessionID, "err", err)
	} else if found && st.Total > 0 {
		fmt.Fprintf(c.out, "✅ Loaded previous conversation history (%d messages).\n\n", st.Total)
	}
	fmt.Fprintln(c.out, rule)
	fmt.Fprintln(c.out, titleStyle.Render("🤖 GitHub Assistant Console"))
	fmt.Fprintln(c.out, rule)
	fmt.Fprintln(c.out, "  👤 GitHub User Analysis - send a profile URL")
	fmt.Fprintln(c.out, "  🔍 GitHub Repo Analysis - send a repository URL")
	fmt.Fprintln(c.out, "  🧠 Logical Assistant - ask any question")
	fmt.Fprintln(c.out, mutedStyle.Render("Commands: clear, stats, exit"))
	fmt.Fprintln(c.out)
}

func (c *Console) clear(ctx context.Context) {
	if err := c.turns.Clear(ctx, c.sessionID); err != nil {
		c.printError(err)
		return
	}
	fmt.Fprintln(c.out, "✅ Conversation history cleared!")
	fmt.Fprintln(c.out)
}

func (c *Console) stats(ctx context.Context) {
	st, found, err := c.turns.Stats(ctx, c.sessionID)
	if err != nil {
		c.printError(err)
		return
	}
	if !found {
		fmt.Fprintln(c.out, "❌ No conversation history found.")
		fmt.Fprintln(c.out)
		return
	}
	fmt.Fprintln(c.out, titleStyle.Render("📊 Conversation Statistics"))
	fmt.Fprintf(c.out, "  Total Messages: %d\n", st.Total)
	fmt.Fprintf(c.out, "  Your Messages: %d\n", st.UserCount)
	fmt.Fprintf(c.out, "  Assistant Messages: %d\n\n", st.AssistantCount)
}

func (c *Console) turn(ctx context.Context, text string) {
	fmt.Fprintln(c.out, mutedStyle.Render("⏳ Processing..."))

	out, err := c.turns.Process(ctx, usecase.TurnInput{SessionID: c.sessionID, Text: text})
	if err != nil && out.Reply == "" {
		c.printError(err)
		return
	}
	if err != nil {
		c.logger.Warn("turn not persisted", "session_id", c.sessionID, "err", err)
	}

	fmt.Fprintln(c.out, rule)
	fmt.Fprintln(c.out, labelStyle.Render(fmt.Sprintf("%s Assistant (%s):", out.Category.Emoji(), out.Category.Label())))
	fmt.Fprintln(c.out, rule)
	rendered, rerr := c.renderer.Render(out.Reply)
	if rerr != nil {
		rendered = out.Reply + "\n"
	}
	fmt.Fprint(c.out, rendered)
	fmt.Fprintln(c.out, rule)
	fmt.Fprintln(c.out)
}

func (c *Console) printError(err error) {
	var ue *usecase.Error
	msg := "Sorry, something went wrong. Please try again."
	if errors.As(err, &ue) && ue.Code == usecase.ErrorInvalidInput {
		msg = "Invalid input: " + ue.Reason
	} else {
		c.logger.Error("console command failed", "session_id", c.sessionID, "err", err)
	}
	fmt.Fprintln(c.out, errorStyle.Render("❌ "+msg))
	fmt.Fprintln(c.out)
}
