package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresStore persists audit events to the audit_events table.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type eventRow struct {
	ID           string    `db:"id"`
	TenantID     string    `db:"tenant_id"`
	EventType    string    `db:"event_type"`
	ActorType    string    `db:"actor_type"`
	ActorID      string    `db:"actor_id"`
	ResourceURN  string    `db:"resource_urn"`
	Payload      []byte    `db:"payload"`
	Timestamp    time.Time `db:"timestamp"`
	Hash         string    `db:"hash"`
	PreviousHash string    `db:"previous_hash"`
}

func (s *PostgresStore) SaveEvent(ctx context.Context, event *Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events
			(id, tenant_id, event_type, actor_type, actor_id, resource_urn, payload, timestamp, hash, previous_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.ID, event.TenantID, event.EventType, event.ActorType, event.ActorID,
		event.ResourceURN, payload, event.Timestamp, event.Hash, event.PreviousHash)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) QueryEvents(ctx context.Context, q Query) ([]*Event, error) {
	query := `SELECT id, tenant_id, event_type, actor_type, actor_id, resource_urn, payload, timestamp, hash, previous_hash
		FROM audit_events WHERE tenant_id = $1`
	args := []any{q.TenantID}

	if q.EventType != "" {
		args = append(args, q.EventType)
		query += fmt.Sprintf(" AND event_type = $%d", len(args))
	}
	if q.ResourceURN != "" {
		args = append(args, q.ResourceURN)
		query += fmt.Sprintf(" AND resource_urn = $%d", len(args))
	}
	if !q.Since.IsZero() {
		args = append(args, q.Since)
		query += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if !q.Until.IsZero() {
		args = append(args, q.Until)
		query += fmt.Sprintf(" AND timestamp <= $%d", len(args))
	}
	query += " ORDER BY timestamp ASC"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}

	events := make([]*Event, 0, len(rows))
	for _, r := range rows {
		ev := &Event{
			ID:           r.ID,
			TenantID:     r.TenantID,
			EventType:    r.EventType,
			ActorType:    r.ActorType,
			ActorID:      r.ActorID,
			ResourceURN:  r.ResourceURN,
			Timestamp:    r.Timestamp,
			Hash:         r.Hash,
			PreviousHash: r.PreviousHash,
		}
		if len(r.Payload) > 0 {
			if err := json.Unmarshal(r.Payload, &ev.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal audit payload %s: %w", r.ID, err)
			}
		}
		events = append(events, ev)
	}
	return events, nil
}

var _ Store = (*PostgresStore)(nil)
