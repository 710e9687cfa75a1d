package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"vectorizer/internal/app"
	"vectorizer/internal/config"
	"vectorizer/internal/logging"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg := config.Load()
	logging.Setup(logging.Options{Level: cfg.LogLevel})

	// ---- Clients + handler ----
	h, err := app.Build(ctx, cfg)
	if err != nil {
		logging.Error("failed to build handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
