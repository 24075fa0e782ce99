package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the bot
type Config struct {
	// Discord
	DiscordToken         string
	DiscordApplicationID string
	// GuildID scopes slash commands and the periodic resync; empty means
	// global commands and every guild the bot is in.
	GuildID           string
	AnnounceChannelID string

	// Database
	DatabasePath string

	// Resync
	ResyncIntervalSeconds int

	// Logging
	LogLevel  string
	LogFormat string

	// Ladder, staff and ticket menu
	Policy *Policy
}

// Options controls where Load reads from
type Options struct {
	EnvFile    string
	PolicyFile string
}

// Load reads configuration from environment variables
func Load(opts Options) (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", opts.EnvFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		DiscordToken:         os.Getenv("DISCORD_BOT_TOKEN"),
		DiscordApplicationID: os.Getenv("DISCORD_APPLICATION_ID"),
		GuildID:              os.Getenv("DISCORD_GUILD_ID"),
		AnnounceChannelID:    os.Getenv("ANNOUNCE_CHANNEL_ID"),
		DatabasePath:         getEnvOrDefault("DATABASE_PATH", "./data/tiers.db"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "text"),
	}

	// Parse resync interval
	intervalStr := getEnvOrDefault("RESYNC_INTERVAL_SECONDS", "600")
	interval, err := strconv.Atoi(intervalStr)
	if err != nil {
		return nil, fmt.Errorf("invalid RESYNC_INTERVAL_SECONDS: %w", err)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("RESYNC_INTERVAL_SECONDS must be positive, got %d", interval)
	}
	cfg.ResyncIntervalSeconds = interval

	policyPath := opts.PolicyFile
	if policyPath == "" {
		policyPath = os.Getenv("TIERS_CONFIG")
	}
	cfg.Policy, err = LoadPolicy(policyPath)
	if err != nil {
		return nil, err
	}

	// Validate required fields
	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
