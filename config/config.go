// Package config loads environment variables into a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required credentials (e.g., Twitch chat), use ValidateChatReady.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Twitch
	TwitchChannels     []string `env:"TWITCH_CHANNELS" envSeparator:","`
	TwitchBotUsername  string   `env:"TWITCH_BOT_USERNAME"`
	TwitchOAuthToken   string   `env:"TWITCH_OAUTH_TOKEN"`
	TwitchClientID     string   `env:"TWITCH_CLIENT_ID"`
	TwitchClientSecret string   `env:"TWITCH_CLIENT_SECRET"`
	TwitchRedirectURI  string   `env:"TWITCH_REDIRECT_URI"`
	TwitchScopes       string   `env:"TWITCH_SCOPES" envDefault:"chat:read chat:edit"`
	// Other accounts run by the bot owner. They can never hold cookies.
	TwitchAuxAccounts []string `env:"TWITCH_AUX_ACCOUNTS" envSeparator:","`

	// Server
	DBDsn      string `env:"DB_DSN" envDefault:"glorpinia_cookies.db"`
	HTTPAddr   string `env:"HTTP_ADDR" envDefault:":8080"`
	AdminToken string `env:"ADMIN_TOKEN"`
	// Base64 32-byte key sealing stored OAuth tokens; empty stores them in plaintext.
	EncryptionKey string `env:"ENCRYPTION_KEY"`
	// Requests per AdminRateWindow per client IP on /admin routes; 0 disables the limit.
	AdminRateLimit     int           `env:"ADMIN_RATE_LIMIT" envDefault:"10"`
	AdminRateWindow    time.Duration `env:"ADMIN_RATE_WINDOW" envDefault:"1m"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat          string        `env:"LOG_FORMAT" envDefault:"text"`

	// Cookies
	DailyBonus      int64         `env:"COOKIE_DAILY_BONUS" envDefault:"5"`
	BonusInterval   time.Duration `env:"COOKIE_BONUS_INTERVAL" envDefault:"24h"`
	BonusCheckEvery time.Duration `env:"COOKIE_BONUS_CHECK_EVERY" envDefault:"1h"`
	ForbiddenExtra  []string      `env:"COOKIE_FORBIDDEN_EXTRA" envSeparator:","`
	SlotsMinBet     int64         `env:"SLOTS_MIN_BET" envDefault:"10"`
	SlotsCooldown   time.Duration `env:"SLOTS_COOLDOWN" envDefault:"30s"`
	BridgeMaxAmount int64         `env:"BRIDGE_MAX_AMOUNT" envDefault:"500"`
	LivePoll        time.Duration `env:"LIVE_POLL_INTERVAL" envDefault:"60s"`

	// LLM
	GeminiAPIKey     string        `env:"GEMINI_API_KEY"`
	GeminiModel      string        `env:"GEMINI_MODEL" envDefault:"gemini-flash-latest"`
	GeminiPersona    string        `env:"GEMINI_PERSONA"`
	LLMMaxConcurrent int           `env:"LLM_MAX_CONCURRENCY" envDefault:"2"`
	LLMTimeout       time.Duration `env:"LLM_TIMEOUT" envDefault:"30s"`

	// Tracing and profiling
	OTLPEndpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	TraceSampleRate float64 `env:"OTEL_TRACES_SAMPLE_RATIO" envDefault:"1"`
	EnablePprof     bool    `env:"ENABLE_PPROF"`
	PprofAddr       string  `env:"PPROF_ADDR" envDefault:"localhost:6060"`
}

// Load reads environment variables and applies defaults. It doesn't fail if Twitch creds are missing;
// use ValidateChatReady() when you require the chat bot.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.TwitchChannels = cleanList(cfg.TwitchChannels, true)
	cfg.TwitchAuxAccounts = cleanList(cfg.TwitchAuxAccounts, false)
	cfg.ForbiddenExtra = cleanList(cfg.ForbiddenExtra, false)
	cfg.CORSAllowedOrigins = cleanList(cfg.CORSAllowedOrigins, false)
	cfg.TwitchBotUsername = strings.ToLower(strings.TrimSpace(cfg.TwitchBotUsername))
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.DailyBonus <= 0 {
		errs = append(errs, errors.New("COOKIE_DAILY_BONUS must be positive"))
	}
	if c.BonusInterval <= 0 || c.BonusCheckEvery <= 0 {
		errs = append(errs, errors.New("COOKIE_BONUS_INTERVAL and COOKIE_BONUS_CHECK_EVERY must be positive"))
	}
	if c.SlotsMinBet <= 0 {
		errs = append(errs, errors.New("SLOTS_MIN_BET must be positive"))
	}
	if c.BridgeMaxAmount <= 0 {
		errs = append(errs, errors.New("BRIDGE_MAX_AMOUNT must be positive"))
	}
	if c.AdminRateLimit < 0 || c.AdminRateWindow <= 0 {
		errs = append(errs, errors.New("ADMIN_RATE_LIMIT must not be negative and ADMIN_RATE_WINDOW must be positive"))
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		errs = append(errs, errors.New("OTEL_TRACES_SAMPLE_RATIO must be within [0, 1]"))
	}
	if c.LLMMaxConcurrent <= 0 {
		errs = append(errs, errors.New("LLM_MAX_CONCURRENCY must be positive"))
	}
	return errors.Join(errs...)
}

// ValidateChatReady checks required fields when the chat bot is enabled. token is the
// chat token actually in use: the stored OAuth token or TWITCH_OAUTH_TOKEN.
func (c *Config) ValidateChatReady(token string) error {
	if len(c.TwitchChannels) == 0 || c.TwitchBotUsername == "" || token == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CHANNELS, TWITCH_BOT_USERNAME and TWITCH_OAUTH_TOKEN (or a stored token)")
	}
	return nil
}

// Forbidden returns every configured principal that may not hold cookies.
func (c *Config) Forbidden() []string {
	out := make([]string, 0, len(c.TwitchAuxAccounts)+len(c.ForbiddenExtra))
	out = append(out, c.TwitchAuxAccounts...)
	return append(out, c.ForbiddenExtra...)
}

// cleanList trims, lowercases and drops empty entries. Channels lose a leading '#'.
func cleanList(in []string, channel bool) []string {
	out := in[:0]
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if channel {
			s = strings.TrimPrefix(s, "#")
		}
		s = strings.TrimPrefix(s, "@")
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
