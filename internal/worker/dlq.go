package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// DeadLetter is one dead-lettered item plus its terminal error.
type DeadLetter struct {
	Item     *WorkItem `json:"item"`
	FinalErr string    `json:"final_error"`
	DeadAt   time.Time `json:"dead_at"`
}

// MemDLQ is an in-process DLQ with operator replay. Replay hands the item
// back to a runtime with the attempt counter reset by default;
// preserveAttempts keeps the counter for operators who want the history.
type MemDLQ struct {
	mu      sync.Mutex
	letters []DeadLetter
	logger  *log.Logger
}

func NewMemDLQ() *MemDLQ {
	return &MemDLQ{
		logger: log.New(log.Writer(), "[DLQ] ", log.LstdFlags),
	}
}

func (q *MemDLQ) Send(_ context.Context, item *WorkItem, finalErr string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.letters = append(q.letters, DeadLetter{Item: item, FinalErr: finalErr, DeadAt: time.Now().UTC()})
	q.logger.Printf("☠️  Dead-lettered %s (%s): %s", item.ID, item.Type, finalErr)
	return nil
}

// List returns a snapshot of the dead letters.
func (q *MemDLQ) List() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetter, len(q.letters))
	copy(out, q.letters)
	return out
}

// Replay re-runs one dead letter through the given runtime and removes it on
// success.
func (q *MemDLQ) Replay(ctx context.Context, itemID string, rt *Runtime, preserveAttempts bool) (Outcome, error) {
	q.mu.Lock()
	idx := -1
	for i, dl := range q.letters {
		if dl.Item.ID == itemID {
			idx = i
			break
		}
	}
	if idx == -1 {
		q.mu.Unlock()
		return Outcome{}, fmt.Errorf("dead letter %s not found", itemID)
	}
	letter := q.letters[idx]
	q.mu.Unlock()

	item := *letter.Item
	if !preserveAttempts {
		item.Attempt = 0
		item.Errors = nil
		item.NextRetryAt = nil
	}

	outcome := rt.Run(ctx, &item)
	if outcome.Status == StatusCompleted || outcome.Status == StatusCached {
		q.mu.Lock()
		for i, dl := range q.letters {
			if dl.Item.ID == itemID {
				q.letters = append(q.letters[:i], q.letters[i+1:]...)
				break
			}
		}
		q.mu.Unlock()
	}
	return outcome, nil
}

var _ DLQSink = (*MemDLQ)(nil)
