package tracez

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of every environment variable read by LoadConfig.
const EnvPrefix = "TRACEZ"

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("tracez: invalid config")

// Config holds tracing configuration.
type Config struct {
	ServiceName     string        `envconfig:"SERVICE_NAME" default:"storefront"`
	ServiceVersion  string        `envconfig:"SERVICE_VERSION" default:"1.0.0"`
	CollectorURL    string        `envconfig:"COLLECTOR_URL" default:"http://localhost:9411/api/v2/spans"`
	BatchSize       int           `envconfig:"BATCH_SIZE" default:"50"`
	QueueCapacity   int           `envconfig:"QUEUE_CAPACITY" default:"2048"`
	FlushInterval   time.Duration `envconfig:"FLUSH_INTERVAL" default:"2s"`
	ExportTimeout   time.Duration `envconfig:"EXPORT_TIMEOUT" default:"10s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
	SampleRate      float64       `envconfig:"SAMPLE_RATE" default:"1"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	LogDevelopment  bool          `envconfig:"LOG_DEVELOPMENT" default:"false"`
}

// LoadConfig loads configuration from TRACEZ_* environment variables and
// validates it.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfigOrDefault loads configuration from the environment or returns
// the defaults when it cannot be loaded.
func LoadConfigOrDefault() *Config {
	cfg, err := LoadConfig()
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:     "storefront",
		ServiceVersion:  "1.0.0",
		CollectorURL:    "http://localhost:9411/api/v2/spans",
		BatchSize:       DefaultBatchSize,
		QueueCapacity:   DefaultQueueCapacity,
		FlushInterval:   DefaultFlushInterval,
		ExportTimeout:   DefaultExportTimeout,
		ShutdownTimeout: 5 * time.Second,
		SampleRate:      1,
		LogLevel:        "info",
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.ServiceName == "":
		return fmt.Errorf("%w: service name is empty", ErrInvalidConfig)
	case c.CollectorURL == "":
		return fmt.Errorf("%w: collector url is empty", ErrInvalidConfig)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size %d must be positive", ErrInvalidConfig, c.BatchSize)
	case c.QueueCapacity <= 0:
		return fmt.Errorf("%w: queue capacity %d must be positive", ErrInvalidConfig, c.QueueCapacity)
	case c.BatchSize > c.QueueCapacity:
		return fmt.Errorf("%w: batch size %d exceeds queue capacity %d", ErrInvalidConfig, c.BatchSize, c.QueueCapacity)
	case c.FlushInterval <= 0:
		return fmt.Errorf("%w: flush interval %s must be positive", ErrInvalidConfig, c.FlushInterval)
	case c.ExportTimeout <= 0:
		return fmt.Errorf("%w: export timeout %s must be positive", ErrInvalidConfig, c.ExportTimeout)
	case c.ShutdownTimeout <= 0:
		return fmt.Errorf("%w: shutdown timeout %s must be positive", ErrInvalidConfig, c.ShutdownTimeout)
	case math.IsNaN(c.SampleRate) || c.SampleRate < 0 || c.SampleRate > 1:
		return fmt.Errorf("%w: sample rate %v outside [0, 1]", ErrInvalidConfig, c.SampleRate)
	}

	u, err := url.Parse(c.CollectorURL)
	if err != nil {
		return fmt.Errorf("%w: collector url: %w", ErrInvalidConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: collector url scheme %q", ErrInvalidConfig, u.Scheme)
	}
	return nil
}

// Batch returns the batching parameters.
func (c *Config) Batch() BatchConfig {
	return BatchConfig{
		BatchSize:     c.BatchSize,
		QueueCapacity: c.QueueCapacity,
		FlushInterval: c.FlushInterval,
		ExportTimeout: c.ExportTimeout,
	}
}

// Sampler returns the root sampler for the configured rate.
func (c *Config) Sampler() Sampler {
	return TraceIDRatioBased(c.SampleRate)
}

// Resource returns the service resource.
func (c *Config) Resource() Resource {
	return NewResource(c.ServiceName, c.ServiceVersion)
}
