// Package notify delivers operator-facing notifications (email, SMS) from
// pipeline events. Senders are interfaces; production wires real gateways,
// dev and tests use the logging implementations.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/loanserve/backend/internal/worker"
)

// MailSender sends one email.
type MailSender interface {
	SendMail(ctx context.Context, to, subject, body string) error
}

// SmsSender sends one text message.
type SmsSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// LogMailSender writes emails to the process log. Local development.
type LogMailSender struct {
	logger *log.Logger
}

func NewLogMailSender() *LogMailSender {
	return &LogMailSender{logger: log.New(log.Writer(), "[MAIL] ", log.LstdFlags)}
}

func (s *LogMailSender) SendMail(_ context.Context, to, subject, _ string) error {
	s.logger.Printf("📧 → %s: %s", to, subject)
	return nil
}

// LogSmsSender writes SMS to the process log. Local development.
type LogSmsSender struct {
	logger *log.Logger
}

func NewLogSmsSender() *LogSmsSender {
	return &LogSmsSender{logger: log.New(log.Writer(), "[SMS] ", log.LstdFlags)}
}

func (s *LogSmsSender) SendSMS(_ context.Context, to, body string) error {
	s.logger.Printf("📱 → %s: %s", to, body)
	return nil
}

// Notification is the consumer payload.
type Notification struct {
	MessageID string `json:"messageId"`
	TenantID  string `json:"tenantId"`
	Channel   string `json:"channel"` // email or sms
	To        string `json:"to"`
	Subject   string `json:"subject,omitempty"`
	Body      string `json:"body"`
}

// NotificationWorker delivers notifications. It is idempotent on messageId:
// a redelivered broker message is acknowledged without a second send.
type NotificationWorker struct {
	mail   MailSender
	sms    SmsSender
	mu     sync.Mutex
	seen   map[string]bool
	logger *log.Logger
}

func NewNotificationWorker(mail MailSender, sms SmsSender) *NotificationWorker {
	return &NotificationWorker{
		mail:   mail,
		sms:    sms,
		seen:   make(map[string]bool),
		logger: log.New(log.Writer(), "[NOTIFY] ", log.LstdFlags),
	}
}

func (w *NotificationWorker) Name() string { return "notification" }

func (w *NotificationWorker) ExecuteWork(ctx context.Context, payload []byte, _ *worker.WorkItem, _ string) worker.WorkResult {
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return worker.WorkResult{Error: fmt.Sprintf("malformed notification: %v", err), ShouldRetry: false}
	}
	if n.MessageID == "" {
		return worker.WorkResult{Error: "notification missing messageId", ShouldRetry: false}
	}

	w.mu.Lock()
	if w.seen[n.MessageID] {
		w.mu.Unlock()
		return worker.WorkResult{Success: true, Result: map[string]any{"deduplicated": true}}
	}
	w.mu.Unlock()

	var err error
	switch n.Channel {
	case "email":
		err = w.mail.SendMail(ctx, n.To, n.Subject, n.Body)
	case "sms":
		err = w.sms.SendSMS(ctx, n.To, n.Body)
	default:
		return worker.WorkResult{Error: fmt.Sprintf("unknown channel %q", n.Channel), ShouldRetry: false}
	}
	if err != nil {
		return worker.WorkResult{Error: err.Error(), ShouldRetry: true}
	}

	w.mu.Lock()
	w.seen[n.MessageID] = true
	w.mu.Unlock()
	return worker.WorkResult{Success: true}
}

var _ worker.Worker = (*NotificationWorker)(nil)
