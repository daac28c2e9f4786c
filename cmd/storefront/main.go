package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/StorefrontGo/internal/app"
	"github.com/utafrali/StorefrontGo/internal/config"
	"github.com/utafrali/StorefrontGo/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Initialize structured logger.
	log := logger.New("storefront-client", cfg.LogLevel)
	log.Info("starting storefront client",
		slog.String("environment", cfg.Environment),
		slog.String("api_base_url", cfg.APIBaseURL),
		slog.Int("http_port", cfg.HTTPPort),
	)

	// Create a context that is canceled on SIGINT or SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Create the client with all dependencies wired.
	client, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}

	// Rehydrate a previous session from the refresh cookie if one exists.
	// Failure just means the client starts anonymous.
	if user, err := client.Restore(ctx); err != nil {
		log.Info("no session restored, starting anonymous",
			slog.String("reason", err.Error()),
		)
	} else {
		log.Info("session restored", slog.String("user_id", user.ID))
	}

	// Run the client. This blocks until shutdown.
	if err := client.Run(ctx); err != nil {
		return fmt.Errorf("run client: %w", err)
	}

	log.Info("storefront client stopped")
	return nil
}
