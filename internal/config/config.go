package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Worker    WorkerConfig    `mapstructure:"worker"    validate:"required"`
	Retry     RetryConfig     `mapstructure:"retry"     validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
	Intent    IntentConfig    `mapstructure:"intent"`
}

// ServerConfig contains all HTTP server related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// WorkerConfig controls the worker pool and queue lanes.
type WorkerConfig struct {
	// Count is the number of concurrent workers; it bounds the maximum
	// in-flight task executions.
	Count int `mapstructure:"count" validate:"required,gt=0"`

	// LaneSize is the buffer size of each queue lane.
	LaneSize int `mapstructure:"lane_size" validate:"required,gt=0"`

	// DequeueTimeout bounds how long a worker blocks waiting for work
	// before re-checking for shutdown.
	DequeueTimeout time.Duration `mapstructure:"dequeue_timeout" validate:"required"`

	// MaxInProgress is the longest a task may stay in_progress before the
	// watchdog treats it as a transient failure.
	MaxInProgress time.Duration `mapstructure:"max_in_progress" validate:"required"`

	// WatchdogInterval is how often the watchdog scans for stuck tasks.
	WatchdogInterval time.Duration `mapstructure:"watchdog_interval" validate:"required"`
}

// RetryConfig controls exponential backoff for transient failures.
type RetryConfig struct {
	BaseDelay time.Duration `mapstructure:"base_delay" validate:"required"`
	MaxDelay  time.Duration `mapstructure:"max_delay"  validate:"required"`
	Jitter    time.Duration `mapstructure:"jitter"`

	// ImmediateThreshold is the delay below which a retry is re-enqueued
	// directly instead of being parked for the scheduler.
	ImmediateThreshold time.Duration `mapstructure:"immediate_threshold"`
}

// SchedulerConfig controls the due-task scan.
type SchedulerConfig struct {
	ScanInterval time.Duration `mapstructure:"scan_interval" validate:"required"`
	BatchSize    int           `mapstructure:"batch_size"    validate:"required,gt=0"`
}

// IntentConfig controls the intent parser collaborator.
type IntentConfig struct {
	// GeminiAPIKey enables the LLM-backed parser; when empty the keyword
	// fallback parser is used alone.
	GeminiAPIKey string `mapstructure:"gemini_api_key"`

	// ModelName selects the generative model for parsing and the builtin
	// content processors.
	ModelName string `mapstructure:"model_name"`

	// ConfidenceThreshold routes parses below this confidence to the
	// default processor.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" validate:"gte=0,lte=1"`
}
