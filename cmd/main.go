package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"router-agent/handler"
	"router-agent/internal/app"
	"router-agent/internal/bot"
	"router-agent/internal/config"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	logger := cfg.Log.Logger(os.Stdout)
	slog.SetDefault(logger)

	// ---- Services ----
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build services", "err", err)
		os.Exit(1)
	}
	if err := a.Ready(ctx); err != nil {
		logger.Error("service is not ready", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	opts := []handler.Option{handler.WithLogger(logger)}
	if tg, err := a.Telegram(ctx); err != nil {
		logger.Warn("telegram webhook disabled", "err", err)
	} else {
		b, err := bot.New(a.Turns, tg, logger)
		if err != nil {
			logger.Error("failed to create bot", "err", err)
			os.Exit(1)
		}
		opts = append(opts, handler.WithTelegram(b, cfg.Telegram.WebhookSecret))
	}

	h, err := handler.NewHandler(a.Turns, opts...)
	if err != nil {
		logger.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
