package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// All fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	LogLevel    string
	MetricsAddr string

	// NATS configuration
	NATSURL string

	// Solana configuration
	SolanaRPCURLs    []string
	SolanaCommitment string
	RPCMaxAttempts   int
	RPCTimeout       time.Duration

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Watch schedules analyze the latest block on this interval
	WatchInterval time.Duration
}

// Load reads configuration from environment variables and validates all fields.
// Returns an error listing every invalid setting.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9091")

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Solana configuration
	cfg.SolanaRPCURLs = splitList(getEnvOrDefault("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"))
	if len(cfg.SolanaRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}

	cfg.SolanaCommitment = getEnvOrDefault("SOLANA_COMMITMENT", "finalized")

	maxAttempts, err := parseInt("RPC_MAX_ATTEMPTS", 3)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RPCMaxAttempts = maxAttempts
	}

	timeout, err := parseDuration("RPC_TIMEOUT", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RPCTimeout = timeout
	}

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "blockgraph-analysis")

	watchInterval, err := parseDuration("WATCH_INTERVAL", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.WatchInterval = watchInterval
	}

	if len(errs) == 0 {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for worker initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if len(c.SolanaRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SolanaRPCURLs is required"))
	}

	switch c.SolanaCommitment {
	case "finalized", "confirmed":
	default:
		errs = append(errs, fmt.Errorf("SolanaCommitment must be finalized or confirmed, got %q", c.SolanaCommitment))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LogLevel must be one of debug, info, warn, error, got %q", c.LogLevel))
	}

	if c.RPCMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("RPCMaxAttempts must be at least 1"))
	}

	if c.RPCTimeout < time.Second {
		errs = append(errs, fmt.Errorf("RPCTimeout must be at least 1 second"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.WatchInterval < time.Second {
		errs = append(errs, fmt.Errorf("WatchInterval must be at least 1 second"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitList splits a comma-separated value, dropping empty entries.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
