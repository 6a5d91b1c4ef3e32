// Command router runs the assistant as a terminal console, an HTTP server or
// a long-polling Telegram bot.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"router-agent/internal/app"
	"router-agent/internal/bot"
	"router-agent/internal/config"
	"router-agent/internal/console"
	"router-agent/internal/integrations/paramstore"
	"router-agent/internal/server"
)

type cli struct {
	app    *app.App
	logger *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:          "router",
		Short:        "GitHub analysis assistant with intent routing",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if c.app == nil {
				return nil
			}
			return c.app.Close()
		},
	}
	root.AddCommand(c.consoleCmd(), c.serveCmd(), c.telegramCmd())
	return root
}

func (c *cli) init(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// stdout belongs to the console
	c.logger = cfg.Log.Logger(os.Stderr)
	slog.SetDefault(c.logger)

	a, err := app.New(ctx, cfg, c.logger)
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}
	c.app = a
	return nil
}

func (c *cli) consoleCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Chat in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := c.app.Ready(ctx); err != nil {
				return err
			}
			con, err := console.New(c.app.Turns, cmd.InOrStdin(), cmd.OutOrStdout(),
				console.WithSessionID(sessionID),
				console.WithLogger(c.logger),
			)
			if err != nil {
				return err
			}
			return con.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", console.DefaultSessionID, "session id to resume")
	return cmd
}

func (c *cli) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API (and the Telegram webhook when a bot token is set)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := c.app.Ready(ctx); err != nil {
				return err
			}
			var updates server.UpdateHandler
			if tg, err := c.app.Telegram(ctx); err != nil {
				c.logger.Info("telegram webhook disabled", "err", err)
			} else if updates, err = bot.New(c.app.Turns, tg, c.logger); err != nil {
				return err
			}
			srv, err := server.New(c.app.Turns, updates, server.Options{
				WebhookSecret: c.app.Config.Telegram.WebhookSecret,
				Logger:        c.logger,
			})
			if err != nil {
				return err
			}
			if addr == "" {
				addr = c.app.Config.HTTPAddr
			}
			return srv.Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to HTTP_ADDR)")
	return cmd
}

func (c *cli) telegramCmd() *cobra.Command {
	var pollTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "telegram",
		Short: "Run the Telegram bot with long polling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := c.app.Ready(ctx, paramstore.TelegramToken); err != nil {
				return err
			}
			tg, err := c.app.Telegram(ctx)
			if err != nil {
				return err
			}
			b, err := bot.New(c.app.Turns, tg, c.logger)
			if err != nil {
				return err
			}
			if err := b.Run(ctx, tg, pollTimeout); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&pollTimeout, "poll-timeout", 30*time.Second, "long-poll timeout for getUpdates")
	return cmd
}
