// Package worker implements the self-healing runtime every asynchronous
// task builds on: idempotency caching, timeouts, retry with exponential
// backoff, dead-lettering, audit, and health reporting. Workers implement
// one method; the runtime composes everything else around it.
package worker

import (
	"context"
	"errors"
	"time"
)

// WorkItem is one durable unit of work.
type WorkItem struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	Type          string     `json:"type"`
	Payload       []byte     `json:"payload"`
	CorrelationID string     `json:"correlation_id"`
	Attempt       int        `json:"attempt"`
	MaxAttempts   int        `json:"max_attempts"`
	CreatedAt     time.Time  `json:"created_at"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	Errors        []string   `json:"errors,omitempty"`
}

// WorkResult is what a worker reports back for one execution.
type WorkResult struct {
	Success     bool   `json:"success"`
	Result      any    `json:"result,omitempty"`
	Error       string `json:"error,omitempty"`
	ShouldRetry bool   `json:"should_retry"`
}

// ErrorOrNil converts the result's error string back to an error value.
func (r WorkResult) ErrorOrNil() error {
	if r.Success || r.Error == "" {
		return nil
	}
	return errors.New(r.Error)
}

// Worker is the single contract for asynchronous work. Implementations are
// plain structs; no inheritance, the runtime does the rest.
type Worker interface {
	Name() string
	ExecuteWork(ctx context.Context, payload []byte, item *WorkItem, executionID string) WorkResult
}

// Status is one terminal state of a processing loop.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCached    Status = "cached"
	StatusDLQ       Status = "dlq"
	StatusFailed    Status = "failed" // retries exhausted with DLQ disabled
)

// Outcome is the runtime's final word on a work item.
type Outcome struct {
	Status   Status
	Result   WorkResult
	Attempts int
	Duration time.Duration
}

// Config is the enumerated worker runtime configuration.
type Config struct {
	MaxRetries         int           `json:"max_retries"`
	RetryDelay         time.Duration `json:"retry_delay"`
	BackoffMultiplier  float64       `json:"backoff_multiplier"`
	MaxRetryDelay      time.Duration `json:"max_retry_delay"`
	Timeout            time.Duration `json:"timeout"`
	DLQEnabled         bool          `json:"dlq_enabled"`
	IdempotencyEnabled bool          `json:"idempotency_enabled"`
	CacheCapacity      int           `json:"cache_capacity"`
}

// DefaultConfig mirrors the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:         3,
		RetryDelay:         1 * time.Second,
		BackoffMultiplier:  2,
		MaxRetryDelay:      30 * time.Second,
		Timeout:            60 * time.Second,
		DLQEnabled:         true,
		IdempotencyEnabled: true,
		CacheCapacity:      1000,
	}
}

// RetryDelayFor computes delay(n) = min(base * multiplier^(n-1), max) for
// attempt n (1-based).
func (c Config) RetryDelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(c.RetryDelay)
	for i := 1; i < attempt; i++ {
		delay *= c.BackoffMultiplier
		if time.Duration(delay) >= c.MaxRetryDelay {
			return c.MaxRetryDelay
		}
	}
	if time.Duration(delay) > c.MaxRetryDelay {
		return c.MaxRetryDelay
	}
	return time.Duration(delay)
}

// Health is the per-runtime health report.
type Health struct {
	WorkerName string `json:"worker_name"`
	IsHealthy  bool   `json:"is_healthy"`
	CacheSize  int    `json:"cache_size"`
	Config     Config `json:"config"`
}
