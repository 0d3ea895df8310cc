package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/BTreeMap/MoodPipe/internal/app"
	"github.com/BTreeMap/MoodPipe/internal/config"
	"github.com/BTreeMap/MoodPipe/internal/lambdahandler"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Parse()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	if _, err := config.InitLogger(cfg); err != nil {
		slog.Error("failed to configure logger", "err", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		// Lambda has no durable local disk; state must live in DATABASE_URL.
		slog.Error("required environment variable is not set", "key", "DATABASE_URL")
		os.Exit(1)
	}

	// ---- Pipeline ----
	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to assemble pipeline", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := lambdahandler.NewHandler(a.Bot, a.Store)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
