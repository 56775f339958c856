package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/loanserve/backend/internal/audit"
	"github.com/loanserve/backend/internal/core"
)

// DLQSink receives work items that exhausted their retries. Implementations
// must be durable enough for an operator to replay from.
type DLQSink interface {
	Send(ctx context.Context, item *WorkItem, finalErr string) error
}

// Runtime wraps one Worker with the self-healing behaviors. Multiple
// runtimes of the same worker type may run in parallel; the idempotency
// cache is per process.
type Runtime struct {
	worker  Worker
	config  Config
	cache   *resultCache
	dlq     DLQSink
	sink    *audit.Sink
	metrics *Metrics
	logger  *log.Logger
	healthy bool
}

// NewRuntime builds a runtime around a worker. dlq and sink may be nil.
func NewRuntime(w Worker, cfg Config, dlq DLQSink, sink *audit.Sink, metrics *Metrics) *Runtime {
	return &Runtime{
		worker:  w,
		config:  cfg,
		cache:   newResultCache(cfg.CacheCapacity),
		dlq:     dlq,
		sink:    sink,
		metrics: metrics,
		logger:  log.New(log.Writer(), fmt.Sprintf("[WORKER:%s] ", w.Name()), log.LstdFlags),
		healthy: true,
	}
}

// Run drives a work item to a terminal state: completed, cached, dlq, or
// failed. It owns the retry loop, sleeping the backoff between attempts.
func (r *Runtime) Run(ctx context.Context, item *WorkItem) Outcome {
	start := time.Now()

	if item.MaxAttempts == 0 {
		item.MaxAttempts = r.config.MaxRetries + 1
	}

	key := IdempotencyKey(r.worker.Name(), item.Type, item.Payload, item.CorrelationID)
	if r.config.IdempotencyEnabled {
		if cached, ok := r.cache.Get(key); ok {
			r.audit(ctx, item, "WORK_CACHED", "", map[string]any{"idempotency_key": key})
			r.observe(StatusCached, time.Since(start))
			return Outcome{Status: StatusCached, Result: cached, Duration: time.Since(start)}
		}
	}

	var result WorkResult
	for {
		item.Attempt++
		now := time.Now().UTC()
		item.LastAttemptAt = &now

		executionID := uuid.NewString()
		r.audit(ctx, item, "WORK_STARTED", executionID, map[string]any{"attempt": item.Attempt})

		result = r.attempt(ctx, item, executionID)

		if result.Success {
			if r.config.IdempotencyEnabled {
				r.cache.Put(key, result)
			}
			r.audit(ctx, item, "WORK_COMPLETED", executionID, map[string]any{
				"attempt":     item.Attempt,
				"duration_ms": time.Since(start).Milliseconds(),
			})
			r.observe(StatusCompleted, time.Since(start))
			return Outcome{Status: StatusCompleted, Result: result, Attempts: item.Attempt, Duration: time.Since(start)}
		}

		item.Errors = append(item.Errors, result.Error)
		r.audit(ctx, item, "WORK_ERROR", executionID, map[string]any{
			"attempt": item.Attempt,
			"error":   result.Error,
		})

		if !result.ShouldRetry || item.Attempt >= item.MaxAttempts {
			break
		}

		delay := r.config.RetryDelayFor(item.Attempt)
		next := time.Now().UTC().Add(delay)
		item.NextRetryAt = &next
		r.audit(ctx, item, "WORK_FAILED", executionID, map[string]any{
			"attempt":       item.Attempt,
			"next_retry_at": next,
			"error":         result.Error,
		})
		r.logger.Printf("Attempt %d/%d failed (%s); retrying in %s", item.Attempt, item.MaxAttempts, result.Error, delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Outcome{Status: StatusFailed, Result: result, Attempts: item.Attempt, Duration: time.Since(start)}
		}
	}

	// Final failure
	if r.config.DLQEnabled && r.dlq != nil {
		r.audit(ctx, item, "WORK_DLQ", "", map[string]any{
			"attempts": item.Attempt,
			"error":    result.Error,
		})
		if err := r.dlq.Send(ctx, item, result.Error); err != nil {
			r.logger.Printf("❌ DLQ handoff failed for %s: %v", item.ID, err)
			r.healthy = false
		}
		r.observe(StatusDLQ, time.Since(start))
		return Outcome{Status: StatusDLQ, Result: result, Attempts: item.Attempt, Duration: time.Since(start)}
	}

	r.observe(StatusFailed, time.Since(start))
	return Outcome{Status: StatusFailed, Result: result, Attempts: item.Attempt, Duration: time.Since(start)}
}

// attempt races one execution against the timeout.
func (r *Runtime) attempt(ctx context.Context, item *WorkItem, executionID string) WorkResult {
	actx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	done := make(chan WorkResult, 1)
	go func() {
		done <- r.worker.ExecuteWork(actx, item.Payload, item, executionID)
	}()

	select {
	case res := <-done:
		return res
	case <-actx.Done():
		if ctx.Err() != nil {
			return WorkResult{Error: "canceled", ShouldRetry: false}
		}
		return WorkResult{
			Error:       fmt.Sprintf("work timed out after %dms", r.config.Timeout.Milliseconds()),
			ShouldRetry: true,
		}
	}
}

// ResultFromError builds the WorkResult for an execution error using the
// error taxonomy: the retry decision is a pure function of error kind.
func ResultFromError(err error) WorkResult {
	return WorkResult{
		Error:       err.Error(),
		ShouldRetry: core.IsRetryable(err),
	}
}

// Health reports the runtime's state.
func (r *Runtime) Health() Health {
	return Health{
		WorkerName: r.worker.Name(),
		IsHealthy:  r.healthy,
		CacheSize:  r.cache.Len(),
		Config:     r.config,
	}
}

func (r *Runtime) audit(ctx context.Context, item *WorkItem, eventType, executionID string, payload map[string]any) {
	if r.sink == nil {
		return
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payload["work_item_id"] = item.ID
	payload["work_type"] = item.Type
	if executionID != "" {
		payload["execution_id"] = executionID
	}
	r.sink.Emit(ctx, item.TenantID, "WORKER."+eventType, "system",
		r.worker.Name(), core.WorkerURN(r.worker.Name(), item.ID), payload)
}

func (r *Runtime) observe(status Status, d time.Duration) {
	if r.metrics != nil {
		r.metrics.Observe(r.worker.Name(), status, d)
	}
}
