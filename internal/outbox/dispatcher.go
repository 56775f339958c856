// Package outbox drains transactional outbox rows to the message broker.
// Writers insert rows in the same transaction as their domain change; the
// dispatcher gives the at-least-once delivery guarantee.
package outbox

import (
	"context"
	"log"
	"time"

	"github.com/loanserve/backend/internal/core"
	"github.com/loanserve/backend/internal/storage"
)

// Store is the outbox persistence surface.
type Store interface {
	ClaimUnpublished(ctx context.Context, limit int) ([]core.OutboxMessage, error)
	MarkPublished(ctx context.Context, id string) error
	BumpOutboxAttempts(ctx context.Context, id string) (int, error)
	DeadOutbox(ctx context.Context, id string) error
}

// Dispatcher polls unpublished rows in insertion order and publishes them.
type Dispatcher struct {
	store     Store
	broker    storage.QueueBroker
	topic     string
	batchSize int
	interval  time.Duration
	deadAfter int
	logger    *log.Logger
}

// NewDispatcher builds a dispatcher. deadAfter is the attempt count at
// which a row moves to the dead state instead of being retried.
func NewDispatcher(store Store, broker storage.QueueBroker, topic string, batchSize int, interval time.Duration, deadAfter int) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if deadAfter <= 0 {
		deadAfter = 10
	}
	return &Dispatcher{
		store:     store,
		broker:    broker,
		topic:     topic,
		batchSize: batchSize,
		interval:  interval,
		deadAfter: deadAfter,
		logger:    log.New(log.Writer(), "[OUTBOX] ", log.LstdFlags),
	}
}

// Run polls until the context is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Printf("Outbox dispatcher started (batch=%d, interval=%s)", d.batchSize, d.interval)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Printf("🔌 Outbox dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := d.DrainOnce(ctx); err != nil {
				d.logger.Printf("❌ Outbox drain failed: %v", err)
			}
		}
	}
}

// DrainOnce claims and publishes one batch. Returns the number published.
func (d *Dispatcher) DrainOnce(ctx context.Context) (int, error) {
	batch, err := d.store.ClaimUnpublished(ctx, d.batchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, row := range batch {
		msg := &storage.Message{
			ID:      row.ID,
			Type:    row.EventType,
			Payload: row.Payload,
			Attributes: map[string]string{
				"tenant-id":      row.TenantID,
				"aggregate-type": row.AggregateType,
				"aggregate-id":   row.AggregateID,
			},
			OrderingKey: row.AggregateID,
		}

		if err := d.broker.Publish(ctx, d.topic, msg); err != nil {
			attempts, bumpErr := d.store.BumpOutboxAttempts(ctx, row.ID)
			if bumpErr != nil {
				d.logger.Printf("❌ Failed to bump attempts for %s: %v", row.ID, bumpErr)
				continue
			}
			if attempts >= d.deadAfter {
				d.logger.Printf("☠️  Outbox row %s dead after %d attempts", row.ID, attempts)
				if deadErr := d.store.DeadOutbox(ctx, row.ID); deadErr != nil {
					d.logger.Printf("❌ Failed to dead-letter %s: %v", row.ID, deadErr)
				}
			}
			continue
		}

		if err := d.store.MarkPublished(ctx, row.ID); err != nil {
			// The row stays claimable; consumers dedupe on message id.
			d.logger.Printf("⚠️  Published %s but failed to mark: %v", row.ID, err)
			continue
		}
		published++
	}
	return published, nil
}
