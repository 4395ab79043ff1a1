// Package config loads process configuration from the environment.
// Database connection strings, chat credentials and feature flags are
// environment-owned per spec; operational tuning tables (alert
// thresholds, provider endpoints) live in YAML under config/ and are
// loaded separately by the packages that own them.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full set of environment-driven settings for the daemon.
type Config struct {
	// Database
	PostgresDSN     string        `env:"PG_DSN,required"`
	PGMaxOpenConns  int           `env:"PG_MAX_OPEN_CONNS" envDefault:"12"`
	PGMaxIdleConns  int           `env:"PG_MAX_IDLE_CONNS" envDefault:"4"`
	PGConnLifetime  time.Duration `env:"PG_CONN_MAX_LIFETIME" envDefault:"30m"`
	PGQueryTimeout  time.Duration `env:"PG_QUERY_TIMEOUT" envDefault:"10s"`

	// Redis (alert cooldown lock)
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// Scheduler
	CycleIntervalMS int    `env:"CYCLE_INTERVAL_MS" envDefault:"60000"`
	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`

	// Provider feature flags
	EnableKalshi     bool `env:"ENABLE_KALSHI" envDefault:"true"`
	EnablePolymarket bool `env:"ENABLE_POLYMARKET" envDefault:"true"`
	EnableOpinion    bool `env:"ENABLE_OPINION" envDefault:"false"`

	KalshiAPIKey        string `env:"KALSHI_API_KEY"`
	PolymarketAPIKey    string `env:"POLYMARKET_API_KEY"`
	OpinionAPIKey       string `env:"OPINION_API_KEY"`

	// Alerter
	MinLiquidityUSD   float64       `env:"ALERT_MIN_LIQUIDITY_USD" envDefault:"5000"`
	MaxSpreadPp       float64       `env:"ALERT_MAX_SPREAD_PP" envDefault:"15"`
	CooldownMinutes   int           `env:"ALERT_COOLDOWN_MINUTES" envDefault:"30"`
	AlertSelectionCap int           `env:"ALERT_SELECTION_CAP" envDefault:"500"`

	// Chat dispatch
	ChatMode       string `env:"CHAT_MODE" envDefault:"disabled"` // bot | user | disabled
	ChatBotToken   string `env:"CHAT_BOT_TOKEN"`
	ChatUserToken  string `env:"CHAT_USER_TOKEN"`
	ChatChannelID  string `env:"CHAT_CHANNEL_ID"`

	// Read API
	HTTPHost string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	HTTPPort int    `env:"HTTP_PORT" envDefault:"8080"`
}

// CycleInterval returns the scheduler tick as a time.Duration.
func (c Config) CycleInterval() time.Duration {
	return time.Duration(c.CycleIntervalMS) * time.Millisecond
}

// ChatConfigured reports whether at least one transport variant has a
// complete credential set; the dispatcher is disabled otherwise (spec §6).
func (c Config) ChatConfigured() bool {
	switch c.ChatMode {
	case "bot":
		return c.ChatBotToken != "" && c.ChatChannelID != ""
	case "user":
		return c.ChatUserToken != "" && c.ChatChannelID != ""
	default:
		return false
	}
}

// Load parses Config from the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment config: %w", err)
	}
	return cfg, nil
}
