package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port            int
	NatsURL         string
	NatsToken       string
	DatabaseURL     string
	SQLitePath      string
	LogLevel        string
	AnthropicAPIKey string
	AnthropicModel  string
	SlackBotToken   string
	SlackChannel    string
	APIToken        string
	RequireLogin    bool
	Timezone        string
	RequestTimeout  time.Duration
	SuggestTimeout  time.Duration
	RetentionDays   int
	RetentionCron   string
	AgendaCron      string
	PolicyFile      string
}

func Load() Config {
	return Config{
		Port:            envInt("TEMPO_PORT", 8760),
		NatsURL:         envStr("NATS_URL", ""),
		NatsToken:       envStr("NATS_TOKEN", ""),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		SQLitePath:      envStr("TEMPO_SQLITE_PATH", ""),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("TEMPO_MODEL", "claude-sonnet-4-20250514"),
		SlackBotToken:   envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:    envStr("SLACK_AGENDA_CHANNEL", ""),
		APIToken:        envStr("TEMPO_API_TOKEN", ""),
		RequireLogin:    envBool("TEMPO_REQUIRE_LOGIN", false),
		Timezone:        envStr("TEMPO_TIMEZONE", "UTC"),
		RequestTimeout:  envDuration("REQUEST_TIMEOUT", 10*time.Second),
		SuggestTimeout:  envDuration("SUGGEST_TIMEOUT", 3*time.Second),
		RetentionDays:   envInt("RETENTION_DAYS", 90),
		RetentionCron:   envStr("RETENTION_CRON", "30 3 * * *"),
		AgendaCron:      envStr("AGENDA_CRON", "0 7 * * *"),
		PolicyFile:      envStr("TEMPO_POLICY_FILE", ""),
	}
}

// Location resolves Timezone, falling back to UTC for unknown names.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
