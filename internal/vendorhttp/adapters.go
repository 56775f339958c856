package vendorhttp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// VendorSpec holds the per-vendor connection settings.
type VendorSpec struct {
	Name       string
	BaseURL    string
	APIKey     string
	AuthHeader string // "Authorization" with Bearer, or "X-API-KEY"
	Timeout    time.Duration
}

// Adapter composes the shared client with a cache for one vendor.
type Adapter struct {
	spec       VendorSpec
	client     *Client
	cache      Cache
	ttlMinutes int
}

func NewAdapter(spec VendorSpec, client *Client, cache Cache, ttlMinutes int) *Adapter {
	return &Adapter{spec: spec, client: client, cache: cache, ttlMinutes: ttlMinutes}
}

// Fetch runs the cached-call sequence for one identifier. kind is the cache
// key prefix ("SSR", "FLOOD", "TITLE", "HOI").
func (a *Adapter) Fetch(ctx context.Context, tenantID, kind, identifier, path string, body any) (map[string]any, error) {
	key := fmt.Sprintf("%s:%s", kind, identifier)

	if cached, ok, err := a.cache.Get(ctx, tenantID, a.spec.Name, key); err == nil && ok {
		var parsed map[string]any
		if err := json.Unmarshal(cached, &parsed); err == nil {
			return parsed, nil
		}
	}

	headers := map[string]string{}
	if a.spec.AuthHeader == "Authorization" {
		headers["Authorization"] = "Bearer " + a.spec.APIKey
	} else {
		headers[a.spec.AuthHeader] = a.spec.APIKey
	}

	method := "GET"
	if body != nil {
		method = "POST"
	}
	parsed, raw, err := a.client.Call(ctx, Request{
		Vendor:   a.spec.Name,
		Method:   method,
		URL:      a.spec.BaseURL + path,
		Headers:  headers,
		Body:     body,
		Timeout:  a.spec.Timeout,
		TenantID: tenantID,
	})
	if err != nil {
		return nil, err
	}

	if err := a.cache.Put(ctx, tenantID, a.spec.Name, key, raw, a.ttlMinutes); err != nil {
		// A cache miss next time is the only consequence.
		_ = err
	}
	return parsed, nil
}

// UCDP retrieves the Submission Summary Report for an appraisal.
type UCDP struct{ *Adapter }

func NewUCDP(spec VendorSpec, client *Client, cache Cache, ttlMinutes int) *UCDP {
	spec.Name = "ucdp"
	spec.AuthHeader = "Authorization"
	return &UCDP{NewAdapter(spec, client, cache, ttlMinutes)}
}

func (u *UCDP) SSR(ctx context.Context, tenantID, appraisalID string) (map[string]any, error) {
	return u.Fetch(ctx, tenantID, "SSR", appraisalID, "/ssr/"+appraisalID, nil)
}

// Flood runs flood zone determinations by property address.
type Flood struct{ *Adapter }

func NewFlood(spec VendorSpec, client *Client, cache Cache, ttlMinutes int) *Flood {
	spec.Name = "flood"
	spec.AuthHeader = "X-API-KEY"
	return &Flood{NewAdapter(spec, client, cache, ttlMinutes)}
}

func (f *Flood) Determine(ctx context.Context, tenantID, address string) (map[string]any, error) {
	return f.Fetch(ctx, tenantID, "FLOOD", AddressKey(address), "/determinations", map[string]string{"address": address})
}

// AddressKey is the stable short hash used to key flood lookups.
func AddressKey(address string) string {
	sum := sha256.Sum256([]byte(address))
	return hex.EncodeToString(sum[:])[:16]
}

// Title verifies title status for a loan.
type Title struct{ *Adapter }

func NewTitle(spec VendorSpec, client *Client, cache Cache, ttlMinutes int) *Title {
	spec.Name = "title"
	spec.AuthHeader = "X-API-KEY"
	return &Title{NewAdapter(spec, client, cache, ttlMinutes)}
}

func (t *Title) Verify(ctx context.Context, tenantID, orderNumber string) (map[string]any, error) {
	return t.Fetch(ctx, tenantID, "TITLE", orderNumber, "/orders/"+orderNumber, nil)
}

// HOI verifies hazard insurance policies.
type HOI struct{ *Adapter }

func NewHOI(spec VendorSpec, client *Client, cache Cache, ttlMinutes int) *HOI {
	spec.Name = "hoi"
	spec.AuthHeader = "X-API-KEY"
	return &HOI{NewAdapter(spec, client, cache, ttlMinutes)}
}

func (h *HOI) Verify(ctx context.Context, tenantID, policyNumber string) (map[string]any, error) {
	return h.Fetch(ctx, tenantID, "HOI", policyNumber, "/policies/"+policyNumber, nil)
}
