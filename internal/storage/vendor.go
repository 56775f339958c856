package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// VendorCacheGet returns the cached payload for (tenant, vendor, key) if it
// has not expired.
func (s *SQLStore) VendorCacheGet(ctx context.Context, tenantID, vendor, key string) ([]byte, bool, error) {
	var payload []byte
	err := s.db.GetContext(ctx, &payload, `
		SELECT payload FROM vendor_cache
		WHERE tenant_id = $1 AND vendor = $2 AND key = $3 AND expires_at > $4`,
		tenantID, vendor, key, time.Now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("vendor cache get: %w", err)
	}
	return payload, true, nil
}

// VendorCachePut upserts a cached payload with a TTL in minutes.
func (s *SQLStore) VendorCachePut(ctx context.Context, tenantID, vendor, key string, payload []byte, ttlMinutes int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vendor_cache (tenant_id, vendor, key, payload, expires_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (tenant_id, vendor, key) DO UPDATE SET
			payload = EXCLUDED.payload, expires_at = EXCLUDED.expires_at`,
		tenantID, vendor, key, payload, time.Now().UTC().Add(time.Duration(ttlMinutes)*time.Minute))
	if err != nil {
		return fmt.Errorf("vendor cache put: %w", err)
	}
	return nil
}

// InsertVendorAudit appends one vendor call record. Written on success and
// failure alike.
func (s *SQLStore) InsertVendorAudit(ctx context.Context, tenantID, vendor, endpoint string, status int, request, response []byte, latency time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vendor_audit (id, tenant_id, vendor, endpoint, status, request, response, latency_ms, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		uuid.NewString(), tenantID, vendor, endpoint, status, request, response,
		latency.Milliseconds(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert vendor audit: %w", err)
	}
	return nil
}
