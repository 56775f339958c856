package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`
	Broker     BrokerConfig     `yaml:"broker"`
	DocStore   DocStoreConfig   `yaml:"docstore"`
	Worker     WorkerConfig     `yaml:"worker"`
	Vendors    VendorsConfig    `yaml:"vendors"`
	Remittance RemittanceConfig `yaml:"remittance"`
	Confidence ConfidenceConfig `yaml:"confidence"`
	Exports    ExportsConfig    `yaml:"exports"`
	AI         AIConfig         `yaml:"ai"`
	Webhooks   WebhooksConfig   `yaml:"webhooks"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Env  string `yaml:"env"`
}

type PostgresConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type BrokerConfig struct {
	Backend            string `yaml:"backend"` // "memory" or "pubsub"
	ProjectID          string `yaml:"project_id"`
	Topic              string `yaml:"topic"`
	SubscriptionPrefix string `yaml:"subscription_prefix"`
}

type DocStoreConfig struct {
	Backend string `yaml:"backend"` // "filesystem" or "memory"
	Root    string `yaml:"root"`    // filesystem backend only
}

type WorkerConfig struct {
	MaxRetries         int     `yaml:"max_retries"`
	RetryDelayMs       int     `yaml:"retry_delay_ms"`
	BackoffMultiplier  float64 `yaml:"backoff_multiplier"`
	MaxRetryDelayMs    int     `yaml:"max_retry_delay_ms"`
	TimeoutMs          int     `yaml:"timeout_ms"`
	DLQEnabled         bool    `yaml:"dlq_enabled"`
	IdempotencyEnabled bool    `yaml:"idempotency_enabled"`
	CacheCapacity      int     `yaml:"cache_capacity"`
	Concurrency        int     `yaml:"concurrency"`
}

type VendorsConfig struct {
	Retries         int          `yaml:"retries"`
	CacheTTLMinutes int          `yaml:"cache_ttl_minutes"`
	UCDP            VendorConfig `yaml:"ucdp"`
	Flood           VendorConfig `yaml:"flood"`
	Title           VendorConfig `yaml:"title"`
	HOI             VendorConfig `yaml:"hoi"`
}

type VendorConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type RemittanceConfig struct {
	Cadence           string `yaml:"cadence"` // MONTHLY or WEEKLY
	GraceDaysBusiness int    `yaml:"grace_days_business"`
	SvcFeeBps         int    `yaml:"svc_fee_bps"`
	StripBps          int    `yaml:"strip_bps"`
	PassEscrow        bool   `yaml:"pass_escrow"`
	BusinessTz        string `yaml:"business_tz"`
	GLCashAccount     string `yaml:"gl_cash_account"`
	GLPayableAccount  string `yaml:"gl_payable_account"`
	WebhookURL        string `yaml:"webhook_url"`
	WebhookSecret     string `yaml:"webhook_secret"`
	WebhookTimeoutMs  int    `yaml:"webhook_timeout_ms"`
}

type ConfidenceConfig struct {
	AcceptThreshold float64 `yaml:"accept_threshold"`
	HITLThreshold   float64 `yaml:"hitl_threshold"`
}

type ExportsConfig struct {
	MapperConfigPath string `yaml:"mapper_config_path"`
	MapperVersion    string `yaml:"mapper_version"`
}

type AIConfig struct {
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type WebhooksConfig struct {
	Backend    string `yaml:"backend"` // "memory" or "cloudtasks"
	ProjectID  string `yaml:"project_id"`
	LocationID string `yaml:"location_id"`
	QueueID    string `yaml:"queue_id"`
	Workers    int    `yaml:"workers"`
}

// Default returns the enumerated defaults. LoadConfig starts from these so a
// partial YAML file only needs to override what differs.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", Env: "development"},
		Postgres: PostgresConfig{
			MaxOpenConns: 20,
			MaxIdleConns: 5,
		},
		Redis:  RedisConfig{Addr: "localhost:6379"},
		Broker:   BrokerConfig{Backend: "memory", Topic: "loanserve-work"},
		DocStore: DocStoreConfig{Backend: "filesystem", Root: "data/objects"},
		Worker: WorkerConfig{
			MaxRetries:         3,
			RetryDelayMs:       1000,
			BackoffMultiplier:  2,
			MaxRetryDelayMs:    30_000,
			TimeoutMs:          60_000,
			DLQEnabled:         true,
			IdempotencyEnabled: true,
			CacheCapacity:      1000,
			Concurrency:        4,
		},
		Vendors: VendorsConfig{Retries: 2, CacheTTLMinutes: 60},
		Remittance: RemittanceConfig{
			Cadence:           "MONTHLY",
			GraceDaysBusiness: 2,
			SvcFeeBps:         50,
			StripBps:          0,
			PassEscrow:        false,
			BusinessTz:        "America/New_York",
			GLCashAccount:     "1010",
			GLPayableAccount:  "2105",
			WebhookTimeoutMs:  15_000,
		},
		Confidence: ConfidenceConfig{AcceptThreshold: 0.80, HITLThreshold: 0.60},
		Exports:    ExportsConfig{MapperConfigPath: "configs/mappers", MapperVersion: "v1"},
		AI:         AIConfig{Model: "gemini-2.0-flash", TimeoutMs: 30_000},
		Webhooks:   WebhooksConfig{Backend: "memory", Workers: 4},
	}
}

// LoadConfig reads YAML from path on top of the defaults. Unknown keys are a
// fatal startup error (strict decode).
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := Default()
	decoder := yaml.NewDecoder(f)
	decoder.SetStrict(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays secrets from the environment so they never have to live
// in the YAML file.
func (c *Config) applyEnv() {
	if v := os.Getenv("LOANSERVE_DB_URL"); v != "" {
		c.Postgres.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.AI.APIKey = v
	}
	if v := os.Getenv("UCDP_API_KEY"); v != "" {
		c.Vendors.UCDP.APIKey = v
	}
	if v := os.Getenv("FLOOD_API_KEY"); v != "" {
		c.Vendors.Flood.APIKey = v
	}
	if v := os.Getenv("TITLE_API_KEY"); v != "" {
		c.Vendors.Title.APIKey = v
	}
	if v := os.Getenv("HOI_API_KEY"); v != "" {
		c.Vendors.HOI.APIKey = v
	}
	if v := os.Getenv("LOANSERVE_WEBHOOK_SECRET"); v != "" {
		c.Remittance.WebhookSecret = v
	}
}

// Validate rejects configurations the process cannot start with.
func (c *Config) Validate() error {
	if c.Postgres.URL == "" {
		return fmt.Errorf("postgres.url is required (or LOANSERVE_DB_URL)")
	}
	switch c.Remittance.Cadence {
	case "MONTHLY", "WEEKLY":
	default:
		return fmt.Errorf("remittance.cadence must be MONTHLY or WEEKLY, got %q", c.Remittance.Cadence)
	}
	switch c.Broker.Backend {
	case "memory":
	case "pubsub":
		if c.Broker.ProjectID == "" {
			return fmt.Errorf("broker.project_id is required for the pubsub backend")
		}
	default:
		return fmt.Errorf("broker.backend must be memory or pubsub, got %q", c.Broker.Backend)
	}
	switch c.DocStore.Backend {
	case "memory":
	case "filesystem":
		if c.DocStore.Root == "" {
			return fmt.Errorf("docstore.root is required for the filesystem backend")
		}
	default:
		return fmt.Errorf("docstore.backend must be filesystem or memory, got %q", c.DocStore.Backend)
	}
	if c.Worker.MaxRetries < 0 || c.Worker.CacheCapacity <= 0 {
		return fmt.Errorf("worker config out of range: max_retries=%d cache_capacity=%d",
			c.Worker.MaxRetries, c.Worker.CacheCapacity)
	}
	if c.Confidence.HITLThreshold > c.Confidence.AcceptThreshold {
		return fmt.Errorf("confidence.hitl_threshold must not exceed accept_threshold")
	}
	return nil
}
