// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package insights

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds every tunable of the insights service. Durations are plain
// integers (seconds or minutes) so they layer cleanly from YAML and env.
type Config struct {
	// Addr is the listen address of the HTTP server.
	Addr string `koanf:"addr"`

	// InfluxURL, InfluxToken, InfluxOrg, and InfluxBucket locate the
	// assessment time-series store. An empty URL disables the Influx
	// provider (the service then serves empty streams).
	InfluxURL    string `koanf:"influx_url"`
	InfluxToken  string `koanf:"influx_token"`
	InfluxOrg    string `koanf:"influx_org"`
	InfluxBucket string `koanf:"influx_bucket"`

	// LookbackDays bounds how far back assessment queries reach.
	LookbackDays int `koanf:"lookback_days"`

	// RosterBaseURL is the platform core API serving tenant rosters. Empty
	// disables roster fetching.
	RosterBaseURL string `koanf:"roster_base_url"`

	// PostgresDSN is the durable store for notifications and usage records.
	// Empty falls back to in-memory stores (single-node only).
	PostgresDSN string `koanf:"postgres_dsn"`

	// LLMBackend selects the narrative backend: "openai", "ollama", or
	// "none". Empty means none; the service degrades to deterministic
	// fallbacks.
	LLMBackend string `koanf:"llm_backend"`

	// SnapshotTTLSeconds is the dashboard snapshot cache lifetime.
	SnapshotTTLSeconds int `koanf:"snapshot_ttl_seconds"`

	// AggregateTTLSeconds is the aggregated-bundle cache lifetime.
	AggregateTTLSeconds int `koanf:"aggregate_ttl_seconds"`

	// RateBudget is the per-tenant budget of model-backed operations per
	// window; RatePeriodMinutes is the window length.
	RateBudget        int `koanf:"rate_budget"`
	RatePeriodMinutes int `koanf:"rate_period_minutes"`

	// InputRatePer1K and OutputRatePer1K are the usage cost rates.
	InputRatePer1K  float64 `koanf:"input_rate_per_1k"`
	OutputRatePer1K float64 `koanf:"output_rate_per_1k"`

	// OTLPEndpoint enables trace export when non-empty.
	OTLPEndpoint string `koanf:"otlp_endpoint"`

	// LogLevel is the minimum log level: debug, info, warn, or error.
	LogLevel string `koanf:"log_level"`

	// LogDir enables a daily JSON log file alongside stderr when non-empty.
	LogDir string `koanf:"log_dir"`
}

// DefaultConfig returns the documented production defaults.
func DefaultConfig() Config {
	return Config{
		Addr:                ":8097",
		LookbackDays:        180,
		LLMBackend:          "",
		SnapshotTTLSeconds:  30,
		AggregateTTLSeconds: 300,
		RateBudget:          50,
		RatePeriodMinutes:   60,
		InputRatePer1K:      0.0025,
		OutputRatePer1K:     0.010,
		LogLevel:            "info",
	}
}

// LoadConfig builds a Config by layering defaults, an optional YAML file,
// and environment variables.
//
// Order of precedence (low -> high):
//  1. DefaultConfig()
//  2. YAML file named by LUMINA_CONFIG, if set
//  3. env with prefix LUMINA_ (LUMINA_ADDR, LUMINA_RATE_BUDGET, ...)
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	k := koanf.New(".")

	if path := os.Getenv("LUMINA_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, err
		}
	}

	// LUMINA_SNAPSHOT_TTL_SECONDS -> snapshot_ttl_seconds, matching the
	// koanf tags on the struct.
	envProvider := env.Provider("LUMINA_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "lumina_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, err
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if c.LookbackDays <= 0 {
		return errors.New("lookback_days must be positive")
	}
	if c.RateBudget <= 0 {
		return errors.New("rate_budget must be positive")
	}
	if c.RatePeriodMinutes <= 0 {
		return errors.New("rate_period_minutes must be positive")
	}
	if c.SnapshotTTLSeconds <= 0 || c.AggregateTTLSeconds <= 0 {
		return errors.New("cache TTLs must be positive")
	}
	switch c.LLMBackend {
	case "", "none", "openai", "ollama":
	default:
		return errors.New("llm_backend must be one of none, openai, ollama")
	}
	return nil
}

// SnapshotTTL returns the snapshot cache lifetime as a duration.
func (c Config) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLSeconds) * time.Second
}

// AggregateTTL returns the aggregate cache lifetime as a duration.
func (c Config) AggregateTTL() time.Duration {
	return time.Duration(c.AggregateTTLSeconds) * time.Second
}

// RatePeriod returns the rate limiter window as a duration.
func (c Config) RatePeriod() time.Duration {
	return time.Duration(c.RatePeriodMinutes) * time.Minute
}

// Lookback returns the assessment query horizon as a duration.
func (c Config) Lookback() time.Duration {
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}
