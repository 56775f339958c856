package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Broker.Backend)
	assert.Equal(t, "loanserve-work", cfg.Broker.Topic)
	assert.Equal(t, 3, cfg.Worker.MaxRetries)
	assert.True(t, cfg.Worker.DLQEnabled)
	assert.Equal(t, "MONTHLY", cfg.Remittance.Cadence)
	assert.Equal(t, 2, cfg.Remittance.GraceDaysBusiness)
	assert.Equal(t, 50, cfg.Remittance.SvcFeeBps)
	assert.Equal(t, "1010", cfg.Remittance.GLCashAccount)
	assert.Equal(t, "2105", cfg.Remittance.GLPayableAccount)
	assert.Equal(t, 0.80, cfg.Confidence.AcceptThreshold)
	assert.Equal(t, 0.60, cfg.Confidence.HITLThreshold)
	assert.Equal(t, "configs/mappers", cfg.Exports.MapperConfigPath)
	assert.Equal(t, "filesystem", cfg.DocStore.Backend)
	assert.Equal(t, "data/objects", cfg.DocStore.Root)
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
postgres:
  url: postgres://localhost/loanserve_test
remittance:
  cadence: WEEKLY
  svc_fee_bps: 25
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "WEEKLY", cfg.Remittance.Cadence)
	assert.Equal(t, 25, cfg.Remittance.SvcFeeBps)
	// Untouched sections keep the defaults.
	assert.Equal(t, 2, cfg.Remittance.GraceDaysBusiness)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
postgres:
  url: postgres://localhost/loanserve_test
remitance:
  cadence: MONTHLY
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestEnvOverlay(t *testing.T) {
	t.Setenv("LOANSERVE_DB_URL", "postgres://env-host/loanserve")
	t.Setenv("GEMINI_API_KEY", "gem-key")
	t.Setenv("FLOOD_API_KEY", "flood-key")
	t.Setenv("LOANSERVE_WEBHOOK_SECRET", "hook-secret")

	path := writeConfig(t, "server:\n  env: production\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env-host/loanserve", cfg.Postgres.URL)
	assert.Equal(t, "gem-key", cfg.AI.APIKey)
	assert.Equal(t, "flood-key", cfg.Vendors.Flood.APIKey)
	assert.Equal(t, "hook-secret", cfg.Remittance.WebhookSecret)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := Default()
		cfg.Postgres.URL = "postgres://localhost/loanserve"
		return cfg
	}

	assert.NoError(t, base().Validate())

	cfg := base()
	cfg.Postgres.URL = ""
	assert.ErrorContains(t, cfg.Validate(), "postgres.url")

	cfg = base()
	cfg.Remittance.Cadence = "DAILY"
	assert.ErrorContains(t, cfg.Validate(), "cadence")

	cfg = base()
	cfg.Broker.Backend = "pubsub"
	assert.ErrorContains(t, cfg.Validate(), "project_id")
	cfg.Broker.ProjectID = "proj-1"
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Broker.Backend = "rabbitmq"
	assert.ErrorContains(t, cfg.Validate(), "broker.backend")

	cfg = base()
	cfg.DocStore.Root = ""
	assert.ErrorContains(t, cfg.Validate(), "docstore.root")

	cfg = base()
	cfg.DocStore.Backend = "s3"
	assert.ErrorContains(t, cfg.Validate(), "docstore.backend")

	cfg = base()
	cfg.Worker.CacheCapacity = 0
	assert.ErrorContains(t, cfg.Validate(), "worker config")

	cfg = base()
	cfg.Confidence.HITLThreshold = 0.9
	assert.ErrorContains(t, cfg.Validate(), "hitl_threshold")
}
