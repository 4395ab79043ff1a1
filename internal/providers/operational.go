package providers

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// OperationalConfig is the YAML-configured per-provider request budget
// table, grounded on the teacher's internal/config/providers.go shape:
// host, rate limit, daily budget and timeout per provider, plus a
// shared global section. Feature enablement itself stays env-driven
// (config.Config). Of these fields the adapters apply only the
// per-provider timeout (BuildAdapters); the rest are parsed and kept
// on the struct but not applied.
type OperationalConfig struct {
	Providers map[string]ProviderOperational `yaml:"providers"`
	Global    GlobalOperational              `yaml:"global"`
}

// ProviderOperational tunes one provider's request behavior.
type ProviderOperational struct {
	BaseURL     string `yaml:"base_url"`
	RPS         int    `yaml:"rps"`
	Burst       int    `yaml:"burst"`
	DailyBudget int    `yaml:"daily_budget"`
	TimeoutMS   int    `yaml:"timeout_ms"`
}

// GlobalOperational holds settings shared across every provider.
type GlobalOperational struct {
	MaxConcurrentPerHost int    `yaml:"max_concurrent_per_host"`
	UserAgent            string `yaml:"user_agent"`
}

// Timeout returns the configured per-request timeout, or fallback when
// unset.
func (p ProviderOperational) Timeout(fallback time.Duration) time.Duration {
	if p.TimeoutMS <= 0 {
		return fallback
	}
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// LoadOperationalConfig reads the provider request-budget table from
// YAML. A missing or unreadable file is not fatal: callers fall back to
// adapter-internal defaults.
func LoadOperationalConfig(path string) (OperationalConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return OperationalConfig{}, fmt.Errorf("read providers config: %w", err)
	}
	var cfg OperationalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return OperationalConfig{}, fmt.Errorf("parse providers config: %w", err)
	}
	return cfg, nil
}
