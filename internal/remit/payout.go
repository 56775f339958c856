package remit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/loanserve/backend/internal/core"
	"github.com/loanserve/backend/internal/webhooks"
)

// PayoutSender posts the signed payout notification to the investor's
// configured endpoint. Delivery failure is reported to the caller but never
// fails the payout itself.
type PayoutSender struct {
	url    string
	secret string
	client *http.Client
	logger *log.Logger
}

// NewPayoutSender builds a sender. timeout <= 0 falls back to 15 s.
func NewPayoutSender(url, secret string, timeout time.Duration) *PayoutSender {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PayoutSender{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: timeout},
		logger: log.New(log.Writer(), "[PAYOUT-HOOK] ", log.LstdFlags),
	}
}

// Send posts the remittance.payout.sent event.
func (s *PayoutSender) Send(ctx context.Context, payout *core.RemittancePayout) error {
	if s.url == "" {
		return nil
	}

	sentAt := time.Now().UTC()
	if payout.SentAt != nil {
		sentAt = *payout.SentAt
	}
	body := map[string]any{
		"event":       "remittance.payout.sent",
		"investor_id": payout.InvestorID,
		"payout_id":   payout.ID,
		"run_id":      payout.RunID,
		"amount":      payout.Amount,
		"currency":    payout.Currency,
		"method":      payout.Method,
		"reference":   payout.Reference,
		"sent_at":     sentAt.Format(time.RFC3339),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal payout webhook: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build payout webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "LoanServe-Remittance/1.0")
	req.Header.Set("X-LoanServe-Signature", webhooks.SignPayload(payload, s.secret))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("payout webhook delivery: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("payout webhook returned %d", resp.StatusCode)
	}
	s.logger.Printf("✅ Payout webhook delivered for %s", payout.ID)
	return nil
}
