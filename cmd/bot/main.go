package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/flor3z/tierbot/internal/bot"
	"github.com/flor3z/tierbot/internal/config"
	"github.com/flor3z/tierbot/internal/logging"
)

func main() {
	var opts config.Options
	pflag.StringVar(&opts.EnvFile, "env-file", "", "path to a .env file (default: ./.env when present)")
	pflag.StringVarP(&opts.PolicyFile, "config", "c", "", "path to the tier/ticket policy YAML (overrides TIERS_CONFIG)")
	pflag.Parse()

	// Load configuration
	cfg, err := config.Load(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Set up logging
	logging.Setup(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	slog.Info("Starting tier bot", "database", cfg.DatabasePath, "guild", cfg.GuildID)

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create and start the bot
	b, err := bot.New(cfg)
	if err != nil {
		slog.Error("Failed to create bot", "error", err)
		os.Exit(1)
	}

	// Start the bot
	if err := b.Start(ctx); err != nil {
		slog.Error("Failed to start bot", "error", err)
		_ = b.Stop()
		os.Exit(1)
	}

	slog.Info("Bot is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	cancel()

	// Stop the bot gracefully
	if err := b.Stop(); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}

	slog.Info("Bot stopped")
}
