package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Emitter is the interface for dispatching webhook events.
// Both the in-memory Dispatcher and CloudDispatcher satisfy this interface.
type Emitter interface {
	Emit(eventType EventType, tenantID string, data map[string]interface{})
	Shutdown()
}

// EventType defines the types of events that can trigger webhooks
type EventType string

const (
	EventPayoutSent       EventType = "remittance.payout.sent"
	EventRemittanceDone   EventType = "remittance.completed"
	EventExportCompleted  EventType = "export.completed"
	EventExportFailed     EventType = "export.failed"
	EventLoanValidated    EventType = "loan.validated"
	EventLoanConflicts    EventType = "loan.conflicts"
	EventDocumentIngested EventType = "document.ingested"
	EventDefectRaised     EventType = "defect.raised"
)

var knownEvents = map[EventType]bool{
	EventPayoutSent:       true,
	EventRemittanceDone:   true,
	EventExportCompleted:  true,
	EventExportFailed:     true,
	EventLoanValidated:    true,
	EventLoanConflicts:    true,
	EventDocumentIngested: true,
	EventDefectRaised:     true,
}

// A subscription this many consecutive delivery failures deep is disabled
// until an operator re-registers it.
const maxDeliveryFailures = 10

// Subscription is one registered webhook endpoint. TenantID scopes the
// subscription to a tenant's events; Template narrows export events to one
// investor template.
type Subscription struct {
	ID        string      `json:"id"`
	URL       string      `json:"url"`
	Events    []EventType `json:"events"`
	Secret    string      `json:"secret,omitempty"`
	Template  string      `json:"template,omitempty"`
	Active    bool        `json:"active"`
	TenantID  string      `json:"tenant_id"`
	CreatedAt time.Time   `json:"created_at"`
	FailCount int         `json:"fail_count"`
}

// Event is the payload sent to webhook subscribers
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"event"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	TenantID  string                 `json:"tenant_id"`
	Data      map[string]interface{} `json:"data"`
}

// Registry stores webhook subscriptions and answers fan-out queries.
type Registry struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	logger *log.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		subs:   make(map[string]*Subscription),
		logger: log.New(log.Writer(), "[WEBHOOKS] ", log.LstdFlags),
	}
}

// Register validates and activates a subscription. Endpoints must be
// http(s) and every requested event must exist in the catalog.
func (r *Registry) Register(sub *Subscription) error {
	if sub.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	u, err := url.Parse(sub.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("webhook URL must be an absolute http(s) URL, got %q", sub.URL)
	}
	if len(sub.Events) == 0 {
		return fmt.Errorf("at least one event type is required")
	}
	for _, evt := range sub.Events {
		if !knownEvents[evt] {
			return fmt.Errorf("unknown event type %q", evt)
		}
	}

	if sub.ID == "" {
		sub.ID = "wh-" + uuid.NewString()[:8]
	}
	sub.Active = true
	sub.CreatedAt = time.Now().UTC()
	sub.FailCount = 0

	r.mu.Lock()
	r.subs[sub.ID] = sub
	r.mu.Unlock()

	r.logger.Printf("📡 Registered webhook %s → %s (events: %v)", sub.ID, sub.URL, sub.Events)
	return nil
}

// Unregister removes a webhook subscription
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[id]; !ok {
		return fmt.Errorf("webhook %s not found", id)
	}
	delete(r.subs, id)

	r.logger.Printf("🗑️  Unregistered webhook %s", id)
	return nil
}

// Subscribers returns the active subscriptions the event fans out to, in
// registration order. A subscription matches when it subscribes to the event
// type, its tenant scope covers the event's tenant, and, for events carrying
// a template, its template scope covers that template.
func (r *Registry) Subscribers(event *Event) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Subscription
	for _, sub := range r.subs {
		if sub.Active && r.matches(sub, event) {
			matched = append(matched, sub)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	return matched
}

func (r *Registry) matches(sub *Subscription, event *Event) bool {
	var subscribed bool
	for _, evt := range sub.Events {
		if evt == event.Type {
			subscribed = true
			break
		}
	}
	if !subscribed {
		return false
	}
	if sub.TenantID != "" && sub.TenantID != event.TenantID {
		return false
	}
	if sub.Template != "" {
		tmpl, _ := event.Data["template"].(string)
		if tmpl != "" && tmpl != sub.Template {
			return false
		}
	}
	return true
}

// ListAll returns all registered webhooks
func (r *Registry) ListAll() []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		result = append(result, sub)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// MarkFailed counts a failed delivery and disables the subscription once it
// crosses maxDeliveryFailures.
func (r *Registry) MarkFailed(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return
	}
	sub.FailCount++
	if sub.FailCount >= maxDeliveryFailures {
		sub.Active = false
		r.logger.Printf("⚠️  Webhook %s disabled after %d failures", id, sub.FailCount)
	}
}

// MarkDelivered resets the failure streak after a successful delivery, so
// only consecutive failures disable a subscription.
func (r *Registry) MarkDelivered(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sub, ok := r.subs[id]; ok && sub.Active {
		sub.FailCount = 0
	}
}

// SignPayload creates the HMAC-SHA256 hex signature receivers verify
// against the X-LoanServe-Signature header.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
