// Command server runs the Lambda handler as a local HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vectorizer/internal/app"
	"vectorizer/internal/config"
	"vectorizer/internal/devserver"
	"vectorizer/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})

	h, err := app.Build(ctx, cfg)
	if err != nil {
		logging.Error("failed to build handler", "err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           devserver.NewRouter(h.Handle, cfg.MaxUploadBytes),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Error("shutdown failed", "err", err)
		}
	}()

	logging.Info("listening", "addr", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
