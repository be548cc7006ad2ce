// Package config loads agentry configuration from a YAML file and
// environment variables using viper, with validation via
// go-playground/validator.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/agentry/agentry/pkg/telemetry"
)

// Config holds all configuration for the agentry engine.
// The mapstructure tags are used by viper to unmarshal the data.
type Config struct {
	Store    StoreConfig    `mapstructure:"store"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Review   ReviewConfig   `mapstructure:"review"`
}

// StoreConfig configures the SQLite audit store.
type StoreConfig struct {
	Path            string        `mapstructure:"path" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level        string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format       string `mapstructure:"format" validate:"oneof=console json"`
	Output       string `mapstructure:"output"`
	EnableCaller bool   `mapstructure:"enable_caller"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ListenAddress string `mapstructure:"listen_address"`
	Path          string `mapstructure:"path"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter" validate:"oneof=otlp stdout none"`
	Endpoint     string  `mapstructure:"endpoint"`
	SamplingRate float64 `mapstructure:"sampling_rate" validate:"min=0,max=1"`
	Insecure     bool    `mapstructure:"insecure"`
}

// DispatchConfig configures dispatcher behaviour.
type DispatchConfig struct {
	// MaxParallel bounds fan-out concurrency. Zero means unbounded.
	MaxParallel int `mapstructure:"max_parallel" validate:"min=0"`

	// Timeout bounds a single agent execution. Zero means no timeout.
	Timeout time.Duration `mapstructure:"timeout"`

	// HistoryLimit is the default page size for history queries.
	HistoryLimit int `mapstructure:"history_limit" validate:"min=1,max=500"`
}

// ReviewConfig configures the shared review-gating policy.
type ReviewConfig struct {
	// MinConfidence is the threshold below which results require review.
	MinConfidence float64 `mapstructure:"min_confidence" validate:"min=0,max=1"`

	// CriticalSeverity is the severity label that forces review.
	CriticalSeverity string `mapstructure:"critical_severity" validate:"required"`
}

// Load loads configuration from file and environment variables. An empty
// path means the default search locations (./agentry.yaml, ./configs,
// ~/.agentry). Environment variables use the AGENTRY_ prefix with
// underscores for nesting, e.g. AGENTRY_STORE_PATH.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("agentry")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.agentry")
	}

	v.SetEnvPrefix("AGENTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file found; defaults and env vars apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always unmarshal cleanly.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.path", "agentry.db")
	v.SetDefault("store.max_open_conns", 25)
	v.SetDefault("store.max_idle_conns", 5)
	v.SetDefault("store.conn_max_lifetime", "5m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.enable_caller", false)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_address", ":9090")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.sampling_rate", 1.0)
	v.SetDefault("tracing.insecure", true)

	v.SetDefault("dispatch.max_parallel", 8)
	v.SetDefault("dispatch.timeout", "0s")
	v.SetDefault("dispatch.history_limit", 50)

	v.SetDefault("review.min_confidence", 0.7)
	v.SetDefault("review.critical_severity", "critical")
}

// Telemetry maps the loaded configuration onto a telemetry.Config.
func (c *Config) Telemetry(serviceVersion, environment string) *telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = serviceVersion
	tc.Environment = environment
	tc.Logging = telemetry.LoggingConfig{
		Level:        c.Logging.Level,
		Format:       c.Logging.Format,
		Output:       c.Logging.Output,
		EnableCaller: c.Logging.EnableCaller,
	}
	tc.Metrics.Enabled = c.Metrics.Enabled
	tc.Metrics.ListenAddress = c.Metrics.ListenAddress
	tc.Metrics.Path = c.Metrics.Path
	tc.Tracing.Enabled = c.Tracing.Enabled
	tc.Tracing.Exporter = c.Tracing.Exporter
	tc.Tracing.Endpoint = c.Tracing.Endpoint
	tc.Tracing.SamplingRate = c.Tracing.SamplingRate
	tc.Tracing.Insecure = c.Tracing.Insecure
	return tc
}
