package ops

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loanserve/backend/internal/webhooks"
	"github.com/loanserve/backend/internal/worker"
)

func testServer() *Server {
	return NewServer(worker.NewRegistry(), worker.NewMemDLQ(),
		webhooks.NewRegistry(), nil, nil, nil, nil, nil)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Tenant-ID", "t1")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := doJSON(t, testServer(), "GET", "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, true, out["healthy"])
}

func TestWebhookLifecycle(t *testing.T) {
	s := testServer()

	rec := doJSON(t, s, "POST", "/api/webhooks", map[string]any{
		"url":    "https://hooks.example.com/loans",
		"events": []string{"export.completed"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var sub webhooks.Subscription
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sub))
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, "t1", sub.TenantID)

	rec = doJSON(t, s, "GET", "/api/webhooks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []*webhooks.Subscription
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = doJSON(t, s, "DELETE", "/api/webhooks/"+sub.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, s, "DELETE", "/api/webhooks/wh-missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookRegisterRejectsEmptyURL(t *testing.T) {
	rec := doJSON(t, testServer(), "POST", "/api/webhooks", map[string]any{
		"events": []string{"export.completed"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDLQReplayUnknownWorker(t *testing.T) {
	rec := doJSON(t, testServer(), "POST", "/api/dlq/item-1/replay", map[string]any{
		"worker": "no-such-worker",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDLQListEmpty(t *testing.T) {
	rec := doJSON(t, testServer(), "GET", "/api/dlq", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var letters []worker.DeadLetter
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &letters))
	assert.Empty(t, letters)
}

func TestRemitRunRejectsBadDate(t *testing.T) {
	rec := doJSON(t, testServer(), "POST", "/api/remittances/run", map[string]any{
		"investor_id": "inv-1",
		"as_of":       "09/18/2025",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
