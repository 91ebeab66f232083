package domain

import (
	"time"
)

// EngineConfig bounds the engine's logical concurrency and sets the retry
// defaults applied when a definition declares no policy of its own.
type EngineConfig struct {
	MaxConcurrentExecutions int           `json:"max_concurrent_executions" yaml:"max_concurrent_executions"`
	DispatchInterval        time.Duration `json:"dispatch_interval" yaml:"dispatch_interval"`
	DefaultTimeout          time.Duration `json:"default_timeout" yaml:"default_timeout"`
	MaxSubflowDepth         int           `json:"max_subflow_depth" yaml:"max_subflow_depth"`
	BatchSize               int           `json:"batch_size" yaml:"batch_size"`
	SubflowPollInterval     time.Duration `json:"subflow_poll_interval" yaml:"subflow_poll_interval"`
	DefaultRetry            RetryPolicy   `json:"default_retry" yaml:"default_retry"`

	// DataDir enables badger-backed persistence of definitions and
	// execution records. Empty keeps everything in memory.
	DataDir string `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxConcurrentExecutions: 4,
		DispatchInterval:        50 * time.Millisecond,
		DefaultTimeout:          5 * time.Minute,
		MaxSubflowDepth:         8,
		BatchSize:               4,
		SubflowPollInterval:     25 * time.Millisecond,
		DefaultRetry: RetryPolicy{
			Enabled:       false,
			MaxAttempts:   3,
			Backoff:       100 * time.Millisecond,
			BackoffFactor: 2.0,
		},
	}
}

func (c *EngineConfig) Validate() error {
	if c.MaxConcurrentExecutions <= 0 {
		return NewValidationError("", "max_concurrent_executions", "must be positive")
	}
	if c.DispatchInterval <= 0 {
		return NewValidationError("", "dispatch_interval", "must be positive")
	}
	if c.MaxSubflowDepth <= 0 {
		return NewValidationError("", "max_subflow_depth", "must be positive")
	}
	if c.BatchSize <= 0 {
		return NewValidationError("", "batch_size", "must be positive")
	}
	if c.SubflowPollInterval <= 0 {
		return NewValidationError("", "subflow_poll_interval", "must be positive")
	}
	return nil
}
