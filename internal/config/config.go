// Package config loads busctl settings from defaults, an optional config
// file, a .env file and BUSCTL_ environment variables, in increasing order of
// priority.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, so logging.level is
// read from BUSCTL_LOGGING_LEVEL.
const EnvPrefix = "BUSCTL"

// Config is the root of the busctl configuration.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Bus       BusConfig       `mapstructure:"bus"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// LoggingConfig controls the zerolog logger.
type LoggingConfig struct {
	// Level is a zerolog level name.
	Level string `mapstructure:"level" validate:"required,oneof=trace debug info warn error disabled"`

	// Format selects JSON lines or the human console writer.
	Format string `mapstructure:"format" validate:"required,oneof=json console"`
}

// BusConfig tunes the mediator.
type BusConfig struct {
	// BroadcastConcurrency bounds concurrent event handlers. Zero or one runs
	// them serially.
	BroadcastConcurrency int `mapstructure:"broadcast_concurrency" validate:"min=0,max=256"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint" validate:"omitempty,url"`
	ServiceName string `mapstructure:"service_name" validate:"required"`
}

var defaults = map[string]any{
	"logging.level":             "info",
	"logging.format":            "console",
	"bus.broadcast_concurrency": 1,
	"telemetry.enabled":         false,
	"telemetry.endpoint":        "",
	"telemetry.service_name":    "busctl",
}

// Load reads the configuration. An empty path looks for busctl.yaml in the
// working directory and ./configs; a missing file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("busctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the struct tags of cfg and flattens validator failures
// into one readable error.
func Validate(cfg *Config) error {
	err := validator.New().Struct(cfg)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed validation: %s (value: '%v')", e.Namespace(), e.Tag(), e.Value()))
	}
	return fmt.Errorf("validation failed:\n  %s", strings.Join(msgs, "\n  "))
}
