package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/loanserve/backend/internal/core"
)

// InsertOutbox writes an outbox row inside the caller's transaction so the
// domain change and the message commit or roll back together.
func InsertOutbox(ctx context.Context, tx *sqlx.Tx, tenantID, aggregateType, aggregateID, eventType string, payload any) (*core.OutboxMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal outbox payload: %w", err)
	}

	msg := &core.OutboxMessage{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
		CreatedAt:     time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox_messages (id, tenant_id, aggregate_type, aggregate_id, event_type, payload, created_at, attempts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,0)`,
		msg.ID, msg.TenantID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert outbox message: %w", err)
	}
	return msg, nil
}

// ClaimUnpublished locks a batch of unpublished rows in insertion order.
// SKIP LOCKED keeps concurrent dispatchers from fighting over the same rows.
func (s *SQLStore) ClaimUnpublished(ctx context.Context, limit int) ([]core.OutboxMessage, error) {
	var msgs []core.OutboxMessage
	err := s.db.SelectContext(ctx, &msgs, `
		SELECT id, tenant_id, aggregate_type, aggregate_id, event_type, payload, created_at, published_at, attempts
		FROM outbox_messages
		WHERE published_at IS NULL AND NOT dead
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	return msgs, nil
}

// MarkPublished sets publishedAt exactly once, after the broker ack.
func (s *SQLStore) MarkPublished(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox_messages SET published_at = $1
		WHERE id = $2 AND published_at IS NULL`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark outbox published %s: %w", id, err)
	}
	return nil
}

// BumpOutboxAttempts increments the attempt counter after a failed publish.
func (s *SQLStore) BumpOutboxAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	err := s.db.GetContext(ctx, &attempts, `
		UPDATE outbox_messages SET attempts = attempts + 1
		WHERE id = $1 RETURNING attempts`, id)
	if err != nil {
		return 0, fmt.Errorf("bump outbox attempts %s: %w", id, err)
	}
	return attempts, nil
}

// DeadOutbox marks a row dead once it crosses the attempt threshold; dead
// rows are excluded from claims and surfaced through the DLQ. published_at
// stays NULL: it is set only on a broker ack.
func (s *SQLStore) DeadOutbox(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE outbox_messages SET dead = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("dead-letter outbox %s: %w", id, err)
	}
	return nil
}
