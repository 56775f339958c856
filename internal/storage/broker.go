package storage

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one durable unit on the broker.
type Message struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Payload     []byte            `json:"payload"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	OrderingKey string            `json:"ordering_key,omitempty"`
	PublishedAt time.Time         `json:"published_at"`
}

// Handler consumes one message. A non-nil error nacks it; the broker may
// redeliver.
type Handler func(ctx context.Context, msg *Message) error

// QueueBroker is the durable message transport between pipeline stages.
type QueueBroker interface {
	Publish(ctx context.Context, topic string, msg *Message) error
	Subscribe(ctx context.Context, topic, subscription string, handler Handler) (func(), error)
	Close() error
}

// ============================================================================
// IN-MEMORY BROKER
// ============================================================================

// MemBroker is a process-local broker with at-least-once redelivery. Local
// development and tests.
type MemBroker struct {
	mu     sync.RWMutex
	subs   map[string][]*memSub // topic -> subscriptions
	closed bool
	logger *log.Logger
}

type memSub struct {
	name    string
	handler Handler
	ch      chan *Message
	done    chan struct{}
}

func NewMemBroker() *MemBroker {
	return &MemBroker{
		subs:   make(map[string][]*memSub),
		logger: log.New(log.Writer(), "[BROKER] ", log.LstdFlags),
	}
}

func (b *MemBroker) Publish(_ context.Context, topic string, msg *Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("broker not connected")
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.PublishedAt = time.Now().UTC()

	for _, sub := range b.subs[topic] {
		select {
		case sub.ch <- msg:
		default:
			b.logger.Printf("Subscription %s backlog full, dropping message %s", sub.name, msg.ID)
		}
	}
	return nil
}

func (b *MemBroker) Subscribe(ctx context.Context, topic, subscription string, handler Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("broker not connected")
	}

	sub := &memSub{
		name:    subscription,
		handler: handler,
		ch:      make(chan *Message, 256),
		done:    make(chan struct{}),
	}
	b.subs[topic] = append(b.subs[topic], sub)

	go func() {
		for {
			select {
			case msg := <-sub.ch:
				if err := handler(ctx, msg); err != nil {
					b.logger.Printf("Handler %s failed on %s: %v (redelivering once)", subscription, msg.ID, err)
					// one redelivery attempt; worker-level retry owns the rest
					if err := handler(ctx, msg); err != nil {
						b.logger.Printf("Redelivery of %s failed: %v", msg.ID, err)
					}
				}
			case <-sub.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() { close(sub.done) }
	return cancel, nil
}

func (b *MemBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

var _ QueueBroker = (*MemBroker)(nil)
