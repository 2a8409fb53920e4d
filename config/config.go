package config

import (
	"log"
	"os"
	"strconv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Zerodha Kite credentials
	KiteAPIKey     string
	KiteAPISecret  string
	KiteUserID     string
	KitePassword   string
	KiteTOTPSecret string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	HTTPAddr      string

	// Alerting (optional; empty disables the channel)
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string

	// When true, signals are logged and journaled but no orders reach
	// the broker.
	DryRun bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		KiteAPIKey:     mustEnv("KITE_API_KEY"),
		KiteAPISecret:  mustEnv("KITE_API_SECRET"),
		KiteUserID:     mustEnv("KITE_USER_ID"),
		KitePassword:   mustEnv("KITE_PASSWORD"),
		KiteTOTPSecret: mustEnv("KITE_TOTP_SECRET"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/trades.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8000"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),

		DryRun: getEnvBool("DRY_RUN", false),
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid bool for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return b
}
