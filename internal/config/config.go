package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	BackendAnthropic = "anthropic"
	BackendText      = "text"
)

type Config struct {
	Port            int
	LogLevel        string
	Backend         string
	BackendURL      string
	AnthropicAPIKey string
	AnthropicModel  string
	MaxTokens       int
	NatsURL         string
	NatsToken       string
	DatabaseURL     string
	SlackBotToken   string
	SlackChannel    string
	APIToken        string
	AllowedOrigins  []string
	MaxSessions     int
	RateLimitRPM    int
	RateLimitBurst  int
}

func Load() Config {
	return Config{
		Port:            envInt("FLEEK_PORT", 8760),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		Backend:         envStr("FLEEK_BACKEND", BackendAnthropic),
		BackendURL:      envStr("FLEEK_BACKEND_URL", "http://localhost:3002/characterFile"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("FLEEK_MODEL", "claude-sonnet-4-20250514"),
		MaxTokens:       envInt("FLEEK_MAX_TOKENS", 4096),
		NatsURL:         envStr("NATS_URL", ""),
		NatsToken:       envStr("NATS_TOKEN", ""),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		SlackBotToken:   envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:    envStr("SLACK_CHANNEL", ""),
		APIToken:        envStr("FLEEK_API_TOKEN", ""),
		AllowedOrigins:  envList("FLEEK_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		MaxSessions:     envInt("FLEEK_MAX_SESSIONS", 256),
		RateLimitRPM:    envInt("FLEEK_RATE_LIMIT_RPM", 30),
		RateLimitBurst:  envInt("FLEEK_RATE_LIMIT_BURST", 5),
	}
}

// Validate reports settings that make startup impossible.
func (c Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendAnthropic:
		if c.AnthropicAPIKey == "" {
			errs = append(errs, errors.New("ANTHROPIC_API_KEY is required for the anthropic backend"))
		}
	case BackendText:
		if c.BackendURL == "" {
			errs = append(errs, errors.New("FLEEK_BACKEND_URL is required for the text backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown FLEEK_BACKEND %q", c.Backend))
	}
	if c.MaxSessions <= 0 {
		errs = append(errs, errors.New("FLEEK_MAX_SESSIONS must be positive"))
	}
	return errors.Join(errs...)
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

// envList reads a comma-separated list, dropping empty entries.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
