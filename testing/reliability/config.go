package reliability

import (
	"testing"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// envPrefix selects the TRACEZ_RELIABILITY_* variables.
const envPrefix = "TRACEZ_RELIABILITY"

// ReliabilityConfig holds configuration for reliability testing
type ReliabilityConfig struct {
	Level            string        `envconfig:"LEVEL"`                       // "basic" or "stress"
	Duration         time.Duration `envconfig:"DURATION" default:"30s"`      // Test duration for stress tests
	MaxGoroutines    int           `envconfig:"MAX_GOROUTINES" default:"100"` // Maximum goroutines for concurrent tests
	MaxMemoryMB      int           `envconfig:"MAX_MEMORY_MB" default:"512"`  // Memory limit for tests
	FailureThreshold float64       `envconfig:"FAILURE_THRESHOLD" default:"0.05"`
}

// getReliabilityConfig reads configuration from environment variables.
// Malformed values fail the test instead of silently falling back.
func getReliabilityConfig(t *testing.T) ReliabilityConfig {
	t.Helper()
	var config ReliabilityConfig
	if err := envconfig.Process(envPrefix, &config); err != nil {
		t.Fatalf("reliability config: %v", err)
	}
	return config
}

// runLevels runs the subtests for the configured level and skips the test
// when no level is set.
func runLevels(t *testing.T, basic, stress map[string]func(*testing.T, ReliabilityConfig)) {
	t.Helper()
	config := getReliabilityConfig(t)

	var tests map[string]func(*testing.T, ReliabilityConfig)
	switch config.Level {
	case "basic":
		tests = basic
	case "stress":
		tests = stress
	default:
		t.Skip("TRACEZ_RELIABILITY_LEVEL not set, skipping reliability tests")
	}

	for name, fn := range tests {
		t.Run(name, func(t *testing.T) { fn(t, config) })
	}
}
