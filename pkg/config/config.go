// Package config loads the engine configuration from an optional YAML file and
// STRIDE_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const EnvPrefix = "STRIDE"

type Config struct {
	Port      int    `mapstructure:"port"       validate:"min=1,max=65535"`
	LogLevel  string `mapstructure:"log_level"  validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=json text"`
	// Timezone applies to system events and date conditions. Cron triggers
	// carry their own timezone.
	Timezone string `mapstructure:"timezone" validate:"required,timezone"`

	// WorkerLimit bounds concurrent executions of one cron fan-out.
	WorkerLimit int `mapstructure:"worker_limit" validate:"min=1"`
	// HandlerLimit bounds concurrent event handlers of one dispatch.
	HandlerLimit       int           `mapstructure:"handler_limit"       validate:"min=1"`
	ExecutionRetention time.Duration `mapstructure:"execution_retention" validate:"gt=0"`
	CleanupInterval    time.Duration `mapstructure:"cleanup_interval"    validate:"gt=0"`

	// DatabaseURL selects the workflow and user store: file://<dir> or postgres://...
	DatabaseURL string `mapstructure:"database_url" validate:"required"`
	// RecordsURL selects where database actions write. Empty means the
	// database store when it accepts records.
	RecordsURL     string   `mapstructure:"records_url" validate:"omitempty,url"`
	RecordsMaxLen  int64    `mapstructure:"records_max_len" validate:"min=0"`
	WorkflowsDir   string   `mapstructure:"workflows_dir"`
	EventBus       string   `mapstructure:"event_bus" validate:"oneof=gochannel kafka"`
	KafkaBrokers   []string `mapstructure:"kafka_brokers" validate:"required_if=EventBus kafka"`
	KafkaGroup     string   `mapstructure:"kafka_group"`
	TracingEnabled bool     `mapstructure:"tracing_enabled"`
	ServiceName    string   `mapstructure:"service_name" validate:"required"`
}

func DefaultConfig() *Config {
	return &Config{
		Port:               9091,
		LogLevel:           "info",
		LogFormat:          "text",
		Timezone:           "UTC",
		WorkerLimit:        8,
		HandlerLimit:       16,
		ExecutionRetention: 24 * time.Hour,
		CleanupInterval:    time.Hour,
		DatabaseURL:        "file://./data",
		RecordsMaxLen:      10000,
		EventBus:           "gochannel",
		KafkaBrokers:       []string{"localhost:9092"},
		KafkaGroup:         "stride",
		ServiceName:        "stride",
	}
}

// Load reads path when given, otherwise stride.yaml from the working directory
// or /etc/stride. A missing default file is not an error.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("stride")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/stride/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", config.Port)
	v.SetDefault("log_level", config.LogLevel)
	v.SetDefault("log_format", config.LogFormat)
	v.SetDefault("timezone", config.Timezone)
	v.SetDefault("worker_limit", config.WorkerLimit)
	v.SetDefault("handler_limit", config.HandlerLimit)
	v.SetDefault("execution_retention", config.ExecutionRetention)
	v.SetDefault("cleanup_interval", config.CleanupInterval)
	v.SetDefault("database_url", config.DatabaseURL)
	v.SetDefault("records_url", config.RecordsURL)
	v.SetDefault("records_max_len", config.RecordsMaxLen)
	v.SetDefault("workflows_dir", config.WorkflowsDir)
	v.SetDefault("event_bus", config.EventBus)
	v.SetDefault("kafka_brokers", config.KafkaBrokers)
	v.SetDefault("kafka_group", config.KafkaGroup)
	v.SetDefault("tracing_enabled", config.TracingEnabled)
	v.SetDefault("service_name", config.ServiceName)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func (c *Config) Validate() error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(c)
}

// Location resolves Timezone. It falls back to UTC for a config that skipped Validate.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}

	return loc
}
