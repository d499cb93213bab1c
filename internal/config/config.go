package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	BotToken string
	IsBot    bool

	APIBaseURL string
	WSURL      string

	BotPrefix string

	RedisURL    string
	DatabaseURL string

	MaxReconnectAttempts int
	HeartbeatDelay       time.Duration
	SessionIdleTTL       time.Duration

	MessageOverrideDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		IsBot:                true,
		APIBaseURL:           "https://api.revolt.chat",
		WSURL:                "wss://ws.revolt.chat",
		BotPrefix:            "!",
		MaxReconnectAttempts: 10,
		HeartbeatDelay:       10 * time.Second,
		SessionIdleTTL:       30 * time.Minute,
	}

	cfg.BotToken = strings.TrimSpace(os.Getenv("BOT_TOKEN"))
	if v := strings.TrimSpace(os.Getenv("BOT_IS_BOT")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.IsBot = b
		}
	}

	if v := strings.TrimSpace(os.Getenv("REVOLT_API_URL")); v != "" {
		cfg.APIBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("REVOLT_WS_URL")); v != "" {
		cfg.WSURL = v
	}
	if v := strings.TrimSpace(os.Getenv("BOT_PREFIX")); v != "" {
		cfg.BotPrefix = v
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("WS_MAX_RECONNECT_ATTEMPTS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxReconnectAttempts = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("HEARTBEAT_DELAY_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HeartbeatDelay = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("SESSION_IDLE_TTL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionIdleTTL = time.Duration(n) * time.Second
		}
	}

	cfg.MessageOverrideDir = strings.TrimSpace(os.Getenv("MESSAGE_OVERRIDE_DIR"))

	if cfg.BotToken == "" {
		return nil, errors.New("BOT_TOKEN is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}
