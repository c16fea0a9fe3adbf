// Package config loads and validates demo-binary configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all demo-binary configuration.
type Config struct {
	// Sentry settings.
	SentryDSN        string
	Environment      string
	Release          string
	TracesSampleRate float64 // 0..1; fraction of new traces to sample

	// OTEL settings.
	OTELEndpoint string // OTLP HTTP endpoint; empty disables the OTLP exporters
	OTELInsecure bool
	ServiceName  string

	// Bridge settings.
	PruneInterval   time.Duration
	MonitorInterval time.Duration

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		SentryDSN:        envStr("SENTRY_DSN", ""),
		Environment:      envStr("SENTRY_ENVIRONMENT", "development"),
		Release:          envStr("SENTRY_RELEASE", ""),
		TracesSampleRate: envFloat("SENTRY_TRACES_SAMPLE_RATE", 1.0),
		OTELEndpoint:     envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:     envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:      envStr("OTEL_SERVICE_NAME", "tsunagi-demo"),
		PruneInterval:    envDuration("TSUNAGI_PRUNE_INTERVAL", 5*time.Second),
		MonitorInterval:  envDuration("TSUNAGI_MONITOR_INTERVAL", 30*time.Second),
		LogLevel:         envStr("TSUNAGI_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.SentryDSN == "" {
		return fmt.Errorf("config: SENTRY_DSN is required")
	}
	if c.TracesSampleRate < 0 || c.TracesSampleRate > 1 {
		return fmt.Errorf("config: SENTRY_TRACES_SAMPLE_RATE must be in [0, 1]")
	}
	if c.PruneInterval <= 0 {
		return fmt.Errorf("config: TSUNAGI_PRUNE_INTERVAL must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
