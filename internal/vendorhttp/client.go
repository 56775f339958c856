// Package vendorhttp is the shared client for third-party verification
// services: UCDP/SSR, flood determination, title, and HOI. Every call runs
// the same four steps: cache key, cache lookup, network call with linear
// backoff, then cache write plus audit.
package vendorhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Cache stores vendor payloads keyed by "<KIND>:<identifier>".
type Cache interface {
	Get(ctx context.Context, tenantID, vendor, key string) ([]byte, bool, error)
	Put(ctx context.Context, tenantID, vendor, key string, payload []byte, ttlMinutes int) error
}

// AuditWriter records every vendor call, including failures.
type AuditWriter interface {
	InsertVendorAudit(ctx context.Context, tenantID, vendor, endpoint string, status int, request, response []byte, latency time.Duration) error
}

// Client is the retrying HTTP layer shared by all vendor adapters.
type Client struct {
	http    *http.Client
	retries int
	audit   AuditWriter
	logger  *log.Logger
	sleep   func(time.Duration)
}

// NewClient builds the shared client. retries is the number of additional
// attempts after the first.
func NewClient(retries int, audit AuditWriter) *Client {
	return &Client{
		http:    &http.Client{},
		retries: retries,
		audit:   audit,
		logger:  log.New(log.Writer(), "[VENDOR] ", log.LstdFlags),
		sleep:   time.Sleep,
	}
}

// Request is one outbound vendor call.
type Request struct {
	Vendor   string
	Method   string
	URL      string
	Headers  map[string]string
	Body     any
	Timeout  time.Duration
	TenantID string
}

// Call executes the request with retries+1 attempts and linear backoff
// 300*(n+1) ms. The response body is parsed as JSON, falling back to
// {"raw": <text>} for non-JSON bodies. Latency is audited even when every
// attempt fails.
func (c *Client) Call(ctx context.Context, req Request) (map[string]any, []byte, error) {
	var payload []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal request body: %w", err)
		}
		payload = b
	}

	start := time.Now()
	var lastErr error
	var lastStatus int
	var lastBody []byte

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(300*(attempt+1)) * time.Millisecond
			c.logger.Printf("⚠️  %s attempt %d failed, retrying in %s", req.Vendor, attempt, delay)
			c.sleep(delay)
		}

		status, body, err := c.once(ctx, req, payload)
		lastStatus, lastBody, lastErr = status, body, err
		if err == nil {
			break
		}
	}

	latency := time.Since(start)
	if c.audit != nil {
		if err := c.audit.InsertVendorAudit(ctx, req.TenantID, req.Vendor, req.URL, lastStatus, payload, lastBody, latency); err != nil {
			c.logger.Printf("❌ Vendor audit write failed: %v", err)
		}
	}

	if lastErr != nil {
		return nil, nil, lastErr
	}

	parsed := parseBody(lastBody)
	return parsed, lastBody, nil
}

func (c *Client) once(ctx context.Context, req Request, payload []byte) (int, []byte, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(cctx, req.Method, req.URL, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("%s call failed: %w", req.Vendor, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s response: %w", req.Vendor, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, body, fmt.Errorf("%s returned status %d", req.Vendor, resp.StatusCode)
	}
	return resp.StatusCode, body, nil
}

func parseBody(body []byte) map[string]any {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return map[string]any{"raw": string(body)}
	}
	return parsed
}
