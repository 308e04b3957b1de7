package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/lambda-api/internal/app"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, app.WithConfigFile("config.yaml"))
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	logger := a.Logger
	slog.SetDefault(logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Server.Start()
	}()

	logger.Info("server started",
		slog.Int("port", a.Config.Port),
		slog.String("env", a.Config.Env),
		slog.Bool("redis", a.Cache != nil))

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", slog.String("error", err.Error()))
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}
	if err := a.Close(shutdownCtx); err != nil {
		logger.Error("cleanup error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
