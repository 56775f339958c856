// Package audit implements the append-only event log every component writes
// to. Events are chained per tenant with SHA-256 links so the log is
// tamper-evident, and optionally persisted through a Store backend.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"
)

// Event is one append-only audit record, keyed by tenant + resource URN.
// EventType uses a dotted namespace, e.g. "AI_PIPELINE.AUTHORITY_DECISION".
type Event struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	EventType   string         `json:"event_type"`
	ActorType   string         `json:"actor_type"`
	ActorID     string         `json:"actor_id,omitempty"`
	ResourceURN string         `json:"resource_urn"`
	Payload     map[string]any `json:"payload,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`

	// Integrity chain
	Hash         string `json:"hash"`
	PreviousHash string `json:"previous_hash"`
}

// ComputeHash returns the SHA-256 of the canonical record without its own
// hash field.
func (e *Event) ComputeHash() string {
	cp := *e
	cp.Hash = ""
	data, _ := json.Marshal(cp)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify checks the record's own hash.
func (e *Event) Verify() bool {
	return e.Hash == e.ComputeHash()
}

// Store persists audit events. The sink keeps working (in memory) when the
// store is unavailable; persistence failures are logged, never fatal.
type Store interface {
	SaveEvent(ctx context.Context, event *Event) error
	QueryEvents(ctx context.Context, q Query) ([]*Event, error)
}

// Query filters persisted events.
type Query struct {
	TenantID    string
	EventType   string
	ResourceURN string
	Since       time.Time
	Until       time.Time
	Limit       int
}

// Sink is the process-wide audit writer. Each tenant gets its own hash
// chain; appends are serialized per sink.
type Sink struct {
	mu       sync.Mutex
	lastHash map[string]string // tenantID -> hash of last event
	recent   map[string][]*Event
	keep     int
	store    Store
	logger   *log.Logger
}

const genesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// NewSink creates an audit sink. store may be nil (in-memory only, used in
// tests). keepRecent bounds the per-tenant in-memory tail.
func NewSink(store Store, keepRecent int) *Sink {
	if keepRecent <= 0 {
		keepRecent = 512
	}
	return &Sink{
		lastHash: make(map[string]string),
		recent:   make(map[string][]*Event),
		keep:     keepRecent,
		store:    store,
		logger:   log.New(log.Writer(), "[AUDIT] ", log.LstdFlags),
	}
}

// Emit appends one event to the tenant chain. The event's Hash and
// PreviousHash are filled in here.
func (s *Sink) Emit(ctx context.Context, tenantID, eventType, actorType, actorID, resourceURN string, payload map[string]any) *Event {
	event := &Event{
		ID:          fmt.Sprintf("ae-%d", time.Now().UnixNano()),
		TenantID:    tenantID,
		EventType:   eventType,
		ActorType:   actorType,
		ActorID:     actorID,
		ResourceURN: resourceURN,
		Payload:     payload,
		Timestamp:   time.Now().UTC(),
	}

	s.mu.Lock()
	prev, ok := s.lastHash[tenantID]
	if !ok {
		prev = genesisHash
	}
	event.PreviousHash = prev
	event.Hash = event.ComputeHash()
	s.lastHash[tenantID] = event.Hash

	tail := append(s.recent[tenantID], event)
	if len(tail) > s.keep {
		tail = tail[len(tail)-s.keep:]
	}
	s.recent[tenantID] = tail
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.SaveEvent(ctx, event); err != nil {
			s.logger.Printf("Failed to persist audit event %s: %v", event.ID, err)
		}
	}

	return event
}

// Recent returns the in-memory tail for a tenant, newest last.
func (s *Sink) Recent(tenantID string) []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	tail := s.recent[tenantID]
	out := make([]*Event, len(tail))
	copy(out, tail)
	return out
}

// ValidateChain walks the in-memory tail verifying hashes and linkage.
// Returns ok and the index of the first broken record (-1 when intact).
func (s *Sink) ValidateChain(tenantID string) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tail := s.recent[tenantID]
	for i, ev := range tail {
		if !ev.Verify() {
			return false, i
		}
		if i > 0 && ev.PreviousHash != tail[i-1].Hash {
			return false, i
		}
	}
	return true, -1
}

// ============================================================================
// IN-MEMORY STORE (tests)
// ============================================================================

// InMemoryStore keeps events in a slice. Used by tests and local runs.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []*Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) SaveEvent(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) QueryEvents(_ context.Context, q Query) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Event
	for _, e := range s.events {
		if q.TenantID != "" && e.TenantID != q.TenantID {
			continue
		}
		if q.EventType != "" && e.EventType != q.EventType {
			continue
		}
		if q.ResourceURN != "" && e.ResourceURN != q.ResourceURN {
			continue
		}
		if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && e.Timestamp.After(q.Until) {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}
