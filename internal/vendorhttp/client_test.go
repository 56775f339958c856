package vendorhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedAudit struct {
	vendor   string
	endpoint string
	status   int
	latency  time.Duration
}

type memAudit struct {
	mu      sync.Mutex
	entries []recordedAudit
}

func (a *memAudit) InsertVendorAudit(_ context.Context, _, vendor, endpoint string, status int, _, _ []byte, latency time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, recordedAudit{vendor: vendor, endpoint: endpoint, status: status, latency: latency})
	return nil
}

func clientWithCapturedSleep(retries int, audit AuditWriter) (*Client, *[]time.Duration) {
	c := NewClient(retries, audit)
	delays := &[]time.Duration{}
	c.sleep = func(d time.Duration) { *delays = append(*delays, d) }
	return c, delays
}

func TestCallRetriesWithLinearBackoff(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"status": "clear"}`))
	}))
	defer srv.Close()

	audit := &memAudit{}
	c, delays := clientWithCapturedSleep(3, audit)

	parsed, raw, err := c.Call(context.Background(), Request{
		Vendor: "flood", Method: "GET", URL: srv.URL, TenantID: "t1",
	})
	require.NoError(t, err)
	assert.Equal(t, "clear", parsed["status"])
	assert.JSONEq(t, `{"status": "clear"}`, string(raw))
	assert.Equal(t, 3, calls)

	// Backoff is 300*(attempt+1) ms for each retry.
	assert.Equal(t, []time.Duration{600 * time.Millisecond, 900 * time.Millisecond}, *delays)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, "flood", audit.entries[0].vendor)
	assert.Equal(t, http.StatusOK, audit.entries[0].status)
}

func TestCallAuditsTotalFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	audit := &memAudit{}
	c, delays := clientWithCapturedSleep(2, audit)

	_, _, err := c.Call(context.Background(), Request{
		Vendor: "title", Method: "GET", URL: srv.URL, TenantID: "t1",
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "status 503")
	assert.Len(t, *delays, 2)

	// Latency is audited even though every attempt failed.
	require.Len(t, audit.entries, 1)
	assert.Equal(t, http.StatusServiceUnavailable, audit.entries[0].status)
	assert.Greater(t, audit.entries[0].latency, time.Duration(0))
}

func TestCallNonJSONBodyFallsBackToRaw(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("OK: CLEAR"))
	}))
	defer srv.Close()

	c, _ := clientWithCapturedSleep(0, nil)
	parsed, _, err := c.Call(context.Background(), Request{
		Vendor: "hoi", Method: "GET", URL: srv.URL, TenantID: "t1",
	})
	require.NoError(t, err)
	assert.Equal(t, "OK: CLEAR", parsed["raw"])
}

func TestAdapterCachesResponses(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "test-key", r.Header.Get("X-API-KEY"))
		w.Write([]byte(`{"zone": "AE"}`))
	}))
	defer srv.Close()

	cache := NewMemCache()
	c, _ := clientWithCapturedSleep(0, nil)
	flood := NewFlood(VendorSpec{BaseURL: srv.URL, APIKey: "test-key"}, c, cache, 60)

	first, err := flood.Determine(context.Background(), "t1", "123 Main St")
	require.NoError(t, err)
	assert.Equal(t, "AE", first["zone"])
	assert.Equal(t, 1, calls)

	// Second lookup for the same address is served from cache.
	second, err := flood.Determine(context.Background(), "t1", "123 Main St")
	require.NoError(t, err)
	assert.Equal(t, "AE", second["zone"])
	assert.Equal(t, 1, calls)

	// A different tenant does not share the cache entry.
	_, err = flood.Determine(context.Background(), "t2", "123 Main St")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestUCDPUsesBearerAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ucdp-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/ssr/appr-1", r.URL.Path)
		w.Write([]byte(`{"score": "eligible"}`))
	}))
	defer srv.Close()

	c, _ := clientWithCapturedSleep(0, nil)
	ucdp := NewUCDP(VendorSpec{BaseURL: srv.URL, APIKey: "ucdp-key"}, c, NewMemCache(), 60)

	out, err := ucdp.SSR(context.Background(), "t1", "appr-1")
	require.NoError(t, err)
	assert.Equal(t, "eligible", out["score"])
}

func TestAddressKey(t *testing.T) {
	key := AddressKey("123 Main St")
	assert.Len(t, key, 16)
	assert.Equal(t, key, AddressKey("123 Main St"))
	assert.NotEqual(t, key, AddressKey("124 Main St"))
}
