package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config.yaml in the working directory; env vars still win.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("TASKRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("worker.count", 4)
	v.SetDefault("worker.lane_size", 100)
	v.SetDefault("worker.dequeue_timeout", 5*time.Second)
	v.SetDefault("worker.max_in_progress", 30*time.Minute)
	v.SetDefault("worker.watchdog_interval", 5*time.Minute)

	v.SetDefault("retry.base_delay", 2*time.Second)
	v.SetDefault("retry.max_delay", 10*time.Minute)
	v.SetDefault("retry.jitter", time.Second)
	v.SetDefault("retry.immediate_threshold", time.Second)

	v.SetDefault("scheduler.scan_interval", time.Minute)
	v.SetDefault("scheduler.batch_size", 100)

	v.SetDefault("intent.model_name", "gemini-2.0-flash")
	v.SetDefault("intent.confidence_threshold", 0.5)
}
