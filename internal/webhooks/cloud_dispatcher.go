package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	cloudtasks "cloud.google.com/go/cloudtasks/apiv2"
	taskspb "cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
)

// CloudDispatcher hands webhook deliveries to a Cloud Tasks queue, one HTTP
// task per matching subscriber. The queue owns retries, backoff, and the
// delivery dead-letter policy; this process only signs and enqueues.
// When the queue is unreachable an in-memory Dispatcher (if configured)
// delivers the event directly so local runs degrade instead of dropping.
type CloudDispatcher struct {
	registry  *Registry
	client    *cloudtasks.Client
	queuePath string
	logger    *log.Logger
	fallback  *Dispatcher
}

// NewCloudDispatcher connects to the queue identified by project, location
// and queue id. fallbackWorkers > 0 also starts an in-memory Dispatcher used
// when an enqueue fails.
func NewCloudDispatcher(registry *Registry, projectID, locationID, queueID string, fallbackWorkers int) (*CloudDispatcher, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := cloudtasks.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("cloudtasks.NewClient: %w", err)
	}

	cd := &CloudDispatcher{
		registry:  registry,
		client:    client,
		queuePath: fmt.Sprintf("projects/%s/locations/%s/queues/%s", projectID, locationID, queueID),
		logger:    log.New(log.Writer(), "[CLOUD-TASKS] ", log.LstdFlags),
	}
	if fallbackWorkers > 0 {
		cd.fallback = NewDispatcher(registry, fallbackWorkers)
	}

	cd.logger.Printf("✅ Connected to Cloud Tasks queue: %s", cd.queuePath)
	return cd, nil
}

// Emit fans the event out through the queue. Enqueueing happens off the
// caller's path; per-event ordering toward a single subscriber is preserved
// by enqueueing that event's tasks sequentially.
func (cd *CloudDispatcher) Emit(eventType EventType, tenantID string, data map[string]interface{}) {
	event := &Event{
		ID:        fmt.Sprintf("evt-%d", time.Now().UnixNano()),
		Type:      eventType,
		Source:    "loanserve",
		Timestamp: time.Now().UTC(),
		TenantID:  tenantID,
		Data:      data,
	}

	subscribers := cd.registry.Subscribers(event)
	if len(subscribers) == 0 {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		cd.logger.Printf("❌ Failed to marshal webhook event: %v", err)
		return
	}

	go func() {
		for _, sub := range subscribers {
			req := newTaskRequest(cd.queuePath, sub, event, payload)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			task, err := cd.client.CreateTask(ctx, req)
			cancel()
			if err != nil {
				cd.logger.Printf("❌ Cloud Task enqueue failed: %s → %s: %v", event.ID, sub.URL, err)
				if cd.fallback != nil {
					cd.logger.Printf("↩️  Falling back to in-memory delivery for %s", event.ID)
					cd.fallback.Emit(event.Type, event.TenantID, event.Data)
				}
				return
			}
			cd.logger.Printf("📤 Enqueued Cloud Task: %s → %s (task=%s)", event.ID, sub.URL, task.GetName())
		}
	}()
}

// newTaskRequest builds the signed HTTP task for one subscriber. The headers
// mirror what the in-memory Dispatcher sends so receivers cannot tell the
// two backends apart.
func newTaskRequest(queuePath string, sub *Subscription, event *Event, payload []byte) *taskspb.CreateTaskRequest {
	headers := map[string]string{
		"Content-Type":                 "application/json",
		"X-LoanServe-Event-Type":       string(event.Type),
		"X-LoanServe-Event-ID":         event.ID,
		"X-LoanServe-Delivery-Attempt": "1",
	}
	if sub.Secret != "" {
		headers["X-LoanServe-Signature"] = SignPayload(payload, sub.Secret)
	}

	return &taskspb.CreateTaskRequest{
		Parent: queuePath,
		Task: &taskspb.Task{
			MessageType: &taskspb.Task_HttpRequest{
				HttpRequest: &taskspb.HttpRequest{
					HttpMethod: taskspb.HttpMethod_POST,
					Url:        sub.URL,
					Headers:    headers,
					Body:       payload,
				},
			},
		},
	}
}

// Shutdown closes the Cloud Tasks client and the fallback dispatcher.
func (cd *CloudDispatcher) Shutdown() {
	if cd.fallback != nil {
		cd.fallback.Shutdown()
	}
	if err := cd.client.Close(); err != nil {
		cd.logger.Printf("⚠️ Cloud Tasks client close error: %v", err)
	}
	cd.logger.Printf("🔌 Cloud Tasks dispatcher closed")
}

var _ Emitter = (*CloudDispatcher)(nil)
