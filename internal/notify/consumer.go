package notify

import (
	"context"
	"log"
	"time"

	"github.com/loanserve/backend/internal/storage"
	"github.com/loanserve/backend/internal/worker"
)

// Consumer bridges broker messages into the notification runtime. The work
// item id is the broker message id, so runtime idempotency and the worker's
// own messageId dedupe both key off the same identity.
type Consumer struct {
	runtime *worker.Runtime
	logger  *log.Logger
}

func NewConsumer(runtime *worker.Runtime) *Consumer {
	return &Consumer{
		runtime: runtime,
		logger:  log.New(log.Writer(), "[NOTIFY-CONSUMER] ", log.LstdFlags),
	}
}

// Start subscribes to the topic. The returned function cancels the
// subscription.
func (c *Consumer) Start(ctx context.Context, broker storage.QueueBroker, topic, subscription string) (func(), error) {
	return broker.Subscribe(ctx, topic, subscription, func(ctx context.Context, msg *storage.Message) error {
		item := &worker.WorkItem{
			ID:            msg.ID,
			TenantID:      msg.Attributes["tenant-id"],
			Type:          msg.Type,
			Payload:       msg.Payload,
			CorrelationID: msg.ID,
			CreatedAt:     time.Now().UTC(),
		}
		outcome := c.runtime.Run(ctx, item)
		if outcome.Status == worker.StatusFailed {
			return outcome.Result.ErrorOrNil()
		}
		return nil
	})
}
