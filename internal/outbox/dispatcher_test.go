package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loanserve/backend/internal/core"
	"github.com/loanserve/backend/internal/storage"
)

type fakeOutboxStore struct {
	rows []core.OutboxMessage

	published   []string
	markErr     error
	attempts    map[string]int
	dead        []string
}

func newFakeOutboxStore(rows ...core.OutboxMessage) *fakeOutboxStore {
	return &fakeOutboxStore{rows: rows, attempts: make(map[string]int)}
}

func (f *fakeOutboxStore) ClaimUnpublished(_ context.Context, limit int) ([]core.OutboxMessage, error) {
	if limit > len(f.rows) {
		limit = len(f.rows)
	}
	return f.rows[:limit], nil
}

func (f *fakeOutboxStore) MarkPublished(_ context.Context, id string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeOutboxStore) BumpOutboxAttempts(_ context.Context, id string) (int, error) {
	f.attempts[id]++
	return f.attempts[id], nil
}

func (f *fakeOutboxStore) DeadOutbox(_ context.Context, id string) error {
	f.dead = append(f.dead, id)
	return nil
}

type failingBroker struct {
	err       error
	published []*storage.Message
}

func (b *failingBroker) Publish(_ context.Context, _ string, msg *storage.Message) error {
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, msg)
	return nil
}

func (b *failingBroker) Subscribe(_ context.Context, _, _ string, _ storage.Handler) (func(), error) {
	return func() {}, nil
}

func (b *failingBroker) Close() error { return nil }

func outboxRow(id, aggregateID string) core.OutboxMessage {
	return core.OutboxMessage{
		ID:            id,
		TenantID:      "t1",
		AggregateType: "loan",
		AggregateID:   aggregateID,
		EventType:     "loan.validated",
		Payload:       []byte(`{"loan_id":"` + aggregateID + `"}`),
		CreatedAt:     time.Now().UTC(),
	}
}

func TestDrainOncePublishes(t *testing.T) {
	store := newFakeOutboxStore(outboxRow("ob-1", "loan-1"), outboxRow("ob-2", "loan-2"))
	broker := &failingBroker{}
	d := NewDispatcher(store, broker, "loanserve-work", 50, time.Second, 10)

	n, err := d.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"ob-1", "ob-2"}, store.published)

	require.Len(t, broker.published, 2)
	msg := broker.published[0]
	assert.Equal(t, "ob-1", msg.ID)
	assert.Equal(t, "loan.validated", msg.Type)
	assert.Equal(t, "loan-1", msg.OrderingKey)
	assert.Equal(t, "t1", msg.Attributes["tenant-id"])
	assert.Equal(t, "loan", msg.Attributes["aggregate-type"])
	assert.Equal(t, "loan-1", msg.Attributes["aggregate-id"])
}

func TestDrainOnceBumpsAttemptsOnPublishFailure(t *testing.T) {
	store := newFakeOutboxStore(outboxRow("ob-1", "loan-1"))
	broker := &failingBroker{err: errors.New("broker not connected")}
	d := NewDispatcher(store, broker, "loanserve-work", 50, time.Second, 10)

	n, err := d.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, store.attempts["ob-1"])
	assert.Empty(t, store.published)
	assert.Empty(t, store.dead)
}

func TestDrainOnceDeadLettersAfterThreshold(t *testing.T) {
	store := newFakeOutboxStore(outboxRow("ob-1", "loan-1"))
	store.attempts["ob-1"] = 2 // next bump reaches deadAfter
	broker := &failingBroker{err: errors.New("broker not connected")}
	d := NewDispatcher(store, broker, "loanserve-work", 50, time.Second, 3)

	_, err := d.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ob-1"}, store.dead)
}

func TestDrainOnceMarkFailureLeavesRowClaimable(t *testing.T) {
	store := newFakeOutboxStore(outboxRow("ob-1", "loan-1"))
	store.markErr = errors.New("connection reset")
	broker := &failingBroker{}
	d := NewDispatcher(store, broker, "loanserve-work", 50, time.Second, 10)

	n, err := d.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	// The message went out; the row just stays unpublished for the next pass.
	assert.Len(t, broker.published, 1)
	assert.Empty(t, store.published)
}

func TestDrainOnceRespectsBatchSize(t *testing.T) {
	store := newFakeOutboxStore(outboxRow("ob-1", "loan-1"), outboxRow("ob-2", "loan-2"), outboxRow("ob-3", "loan-3"))
	broker := &failingBroker{}
	d := NewDispatcher(store, broker, "loanserve-work", 2, time.Second, 10)

	n, err := d.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
