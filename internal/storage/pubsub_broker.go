package storage

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
)

// PubSubBroker is the Google Cloud Pub/Sub-backed QueueBroker for durable,
// cross-process delivery. Topics and subscriptions are created on demand.
//
// Usage:
//
//	broker, err := storage.NewPubSubBroker(ctx, "my-project")
//	broker.Publish(ctx, "loanserve-work", msg)
//	defer broker.Close()
type PubSubBroker struct {
	client *pubsub.Client
	topics map[string]*pubsub.Topic
	logger *log.Logger
}

// NewPubSubBroker connects to Pub/Sub for the given project.
func NewPubSubBroker(ctx context.Context, projectID string) (*PubSubBroker, error) {
	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := pubsub.NewClient(cctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}

	b := &PubSubBroker{
		client: client,
		topics: make(map[string]*pubsub.Topic),
		logger: log.New(log.Writer(), "[PUBSUB] ", log.LstdFlags),
	}
	b.logger.Printf("✅ Connected to Pub/Sub project %s", projectID)
	return b, nil
}

func (b *PubSubBroker) topic(ctx context.Context, topicID string) (*pubsub.Topic, error) {
	if t, ok := b.topics[topicID]; ok {
		return t, nil
	}

	topic := b.client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("topic.Exists: %w", err)
	}
	if !exists {
		topic, err = b.client.CreateTopic(ctx, topicID)
		if err != nil {
			return nil, fmt.Errorf("CreateTopic: %w", err)
		}
		slog.Info("Created Pub/Sub topic", "topic_id", topicID)
	}

	// Tenant-scoped ordering via the ordering key
	topic.EnableMessageOrdering = true
	b.topics[topicID] = topic
	return topic, nil
}

func (b *PubSubBroker) Publish(ctx context.Context, topicID string, msg *Message) error {
	topic, err := b.topic(ctx, topicID)
	if err != nil {
		return err
	}

	attrs := map[string]string{
		"message-id":   msg.ID,
		"message-type": msg.Type,
	}
	for k, v := range msg.Attributes {
		attrs[k] = v
	}

	result := topic.Publish(ctx, &pubsub.Message{
		Data:        msg.Payload,
		Attributes:  attrs,
		OrderingKey: msg.OrderingKey,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("pubsub publish %s: %w", msg.ID, err)
	}
	return nil
}

func (b *PubSubBroker) Subscribe(ctx context.Context, topicID, subscription string, handler Handler) (func(), error) {
	topic, err := b.topic(ctx, topicID)
	if err != nil {
		return nil, err
	}

	sub := b.client.Subscription(subscription)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscription.Exists: %w", err)
	}
	if !exists {
		sub, err = b.client.CreateSubscription(ctx, subscription, pubsub.SubscriptionConfig{
			Topic:                 topic,
			AckDeadline:           60 * time.Second,
			EnableMessageOrdering: true,
		})
		if err != nil {
			return nil, fmt.Errorf("CreateSubscription: %w", err)
		}
		slog.Info("Created Pub/Sub subscription", "subscription", subscription)
	}

	rctx, cancel := context.WithCancel(ctx)
	go func() {
		err := sub.Receive(rctx, func(mctx context.Context, pm *pubsub.Message) {
			msg := &Message{
				ID:          pm.Attributes["message-id"],
				Type:        pm.Attributes["message-type"],
				Payload:     pm.Data,
				Attributes:  pm.Attributes,
				OrderingKey: pm.OrderingKey,
				PublishedAt: pm.PublishTime,
			}
			if msg.ID == "" {
				msg.ID = pm.ID
			}
			if err := handler(mctx, msg); err != nil {
				b.logger.Printf("❌ Handler failed on %s: %v (nack)", msg.ID, err)
				pm.Nack()
				return
			}
			pm.Ack()
		})
		if err != nil && rctx.Err() == nil {
			b.logger.Printf("❌ Receive loop for %s exited: %v", subscription, err)
		}
	}()

	return cancel, nil
}

// Close stops all topics and the client.
func (b *PubSubBroker) Close() error {
	for _, t := range b.topics {
		t.Stop()
	}
	if err := b.client.Close(); err != nil {
		return fmt.Errorf("pubsub client close: %w", err)
	}
	b.logger.Printf("🔌 Pub/Sub client closed")
	return nil
}

var _ QueueBroker = (*PubSubBroker)(nil)
