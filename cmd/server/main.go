package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/loanserve/backend/internal/ai"
	"github.com/loanserve/backend/internal/audit"
	"github.com/loanserve/backend/internal/authority"
	"github.com/loanserve/backend/internal/config"
	"github.com/loanserve/backend/internal/export"
	"github.com/loanserve/backend/internal/extract"
	"github.com/loanserve/backend/internal/intake"
	"github.com/loanserve/backend/internal/notify"
	"github.com/loanserve/backend/internal/ops"
	"github.com/loanserve/backend/internal/outbox"
	"github.com/loanserve/backend/internal/remit"
	"github.com/loanserve/backend/internal/storage"
	"github.com/loanserve/backend/internal/vendorhttp"
	"github.com/loanserve/backend/internal/webhooks"
	"github.com/loanserve/backend/internal/worker"
)

func main() {
	log.Println("🔥 Starting LoanServe back office...")

	_ = godotenv.Load()

	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Printf("❌ Config load failed: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	store, err := storage.OpenSQLStore(ctx, cfg.Postgres.URL, cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns)
	if err != nil {
		log.Printf("❌ Database unreachable: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	// Object store
	var docs storage.DocStore
	switch cfg.DocStore.Backend {
	case "memory":
		docs = storage.NewMemDocStore()
	default:
		fs, err := storage.NewFSDocStore(cfg.DocStore.Root)
		if err != nil {
			log.Printf("❌ Object store init failed: %v", err)
			os.Exit(1)
		}
		docs = fs
	}
	sink := audit.NewSink(audit.NewPostgresStore(store.DB()), 1000)

	// Broker
	var broker storage.QueueBroker
	switch cfg.Broker.Backend {
	case "pubsub":
		pb, err := storage.NewPubSubBroker(ctx, cfg.Broker.ProjectID)
		if err != nil {
			log.Printf("❌ Pub/Sub init failed: %v", err)
			os.Exit(1)
		}
		broker = pb
	default:
		broker = storage.NewMemBroker()
	}
	defer broker.Close()

	// Webhooks
	hookRegistry := webhooks.NewRegistry()
	var emitter webhooks.Emitter
	if cfg.Webhooks.Backend == "cloudtasks" {
		cd, err := webhooks.NewCloudDispatcher(hookRegistry, cfg.Webhooks.ProjectID, cfg.Webhooks.LocationID, cfg.Webhooks.QueueID, cfg.Webhooks.Workers)
		if err != nil {
			log.Printf("⚠️  Cloud Tasks unavailable, using in-memory dispatcher: %v", err)
			emitter = webhooks.NewDispatcher(hookRegistry, cfg.Webhooks.Workers)
		} else {
			emitter = cd
		}
	} else {
		emitter = webhooks.NewDispatcher(hookRegistry, cfg.Webhooks.Workers)
	}
	defer emitter.Shutdown()

	// Vendor layer
	var vendorCache vendorhttp.Cache
	if rc, err := vendorhttp.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err == nil {
		vendorCache = rc
	} else {
		log.Printf("⚠️  Redis unavailable, vendor cache falls back to SQL: %v", err)
		vendorCache = vendorhttp.SQLCache{Store: store}
	}
	vendorClient := vendorhttp.NewClient(cfg.Vendors.Retries, store)
	ttl := cfg.Vendors.CacheTTLMinutes
	verifier := vendorhttp.NewVerifier(
		vendorhttp.NewUCDP(vendorSpec(cfg.Vendors.UCDP), vendorClient, vendorCache, ttl),
		vendorhttp.NewFlood(vendorSpec(cfg.Vendors.Flood), vendorClient, vendorCache, ttl),
		vendorhttp.NewTitle(vendorSpec(cfg.Vendors.Title), vendorClient, vendorCache, ttl),
		vendorhttp.NewHOI(vendorSpec(cfg.Vendors.HOI), vendorClient, vendorCache, ttl),
	)

	// AI extractor (optional)
	var aiExtractor *ai.Extractor
	if cfg.AI.APIKey != "" {
		llm, err := ai.NewGeminiClient(ctx, cfg.AI.APIKey, cfg.AI.Model)
		if err != nil {
			log.Printf("⚠️  AI extractor disabled: %v", err)
		} else {
			defer llm.Close()
			aiExtractor = ai.NewExtractor(llm)
		}
	}

	// Worker runtime
	workerCfg := worker.Config{
		MaxRetries:         cfg.Worker.MaxRetries,
		RetryDelay:         time.Duration(cfg.Worker.RetryDelayMs) * time.Millisecond,
		BackoffMultiplier:  cfg.Worker.BackoffMultiplier,
		MaxRetryDelay:      time.Duration(cfg.Worker.MaxRetryDelayMs) * time.Millisecond,
		Timeout:            time.Duration(cfg.Worker.TimeoutMs) * time.Millisecond,
		DLQEnabled:         cfg.Worker.DLQEnabled,
		IdempotencyEnabled: cfg.Worker.IdempotencyEnabled,
		CacheCapacity:      cfg.Worker.CacheCapacity,
	}
	metrics := worker.NewMetrics()
	dlq := worker.NewMemDLQ()
	registry := worker.NewRegistry()

	// Intake pipeline
	texts := storage.TextLoader{Store: docs}
	extractor := extract.NewExtractor(texts)
	matrix := authority.NewMatrix(sink)
	thresholds := authority.Thresholds{
		Accept: cfg.Confidence.AcceptThreshold,
		HITL:   cfg.Confidence.HITLThreshold,
	}
	intakeWorker := intake.NewIntakeWorker(store, docs, texts, extractor, aiExtractor, matrix, thresholds)
	intakeRuntime := worker.NewRuntime(intakeWorker, workerCfg, dlq, sink, metrics)
	registry.Register(intakeRuntime)

	intakeStop, err := subscribeIntake(ctx, broker, cfg, intakeRuntime)
	if err != nil {
		log.Printf("❌ Intake subscription failed: %v", err)
		os.Exit(1)
	}
	defer intakeStop()

	// Notification consumer
	notifyWorker := notify.NewNotificationWorker(notify.NewLogMailSender(), notify.NewLogSmsSender())
	notifyRuntime := worker.NewRuntime(notifyWorker, workerCfg, dlq, sink, metrics)
	registry.Register(notifyRuntime)
	notifyStop, err := notify.NewConsumer(notifyRuntime).Start(ctx, broker, cfg.Broker.Topic, cfg.Broker.SubscriptionPrefix+"-notify")
	if err != nil {
		log.Printf("❌ Notification subscription failed: %v", err)
		os.Exit(1)
	}
	defer notifyStop()

	// Outbox dispatcher
	go outbox.NewDispatcher(store, broker, cfg.Broker.Topic, 50, 500*time.Millisecond, 10).Run(ctx)

	// Remittance & export engines
	payer := remit.NewPayoutSender(cfg.Remittance.WebhookURL, cfg.Remittance.WebhookSecret,
		time.Duration(cfg.Remittance.WebhookTimeoutMs)*time.Millisecond)
	remitEngine := remit.NewEngine(store, docs, sink, payer, cfg.Remittance)
	mapper := export.NewMapper(cfg.Exports.MapperConfigPath, cfg.Exports.MapperVersion)
	exportEngine := export.NewEngine(store, docs, mapper, emitter, sink)

	// Ops server
	server := ops.NewServer(registry, dlq, hookRegistry, remitEngine, exportEngine, verifier, intakeWorker, store)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(cfg.Server.Port) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		log.Printf("❌ Ops server failed: %v", err)
		os.Exit(1)
	case sig := <-sigCh:
		log.Printf("🔌 Received %s, shutting down", sig)
		cancel()
	}
}

func vendorSpec(vc config.VendorConfig) vendorhttp.VendorSpec {
	return vendorhttp.VendorSpec{
		BaseURL: vc.BaseURL,
		APIKey:  vc.APIKey,
		Timeout: time.Duration(vc.TimeoutMs) * time.Millisecond,
	}
}

// subscribeIntake routes document.received messages into the intake runtime.
func subscribeIntake(ctx context.Context, broker storage.QueueBroker, cfg *config.Config, rt *worker.Runtime) (func(), error) {
	return broker.Subscribe(ctx, cfg.Broker.Topic, cfg.Broker.SubscriptionPrefix+"-intake",
		func(ctx context.Context, msg *storage.Message) error {
			if msg.Type != "document.received" {
				return nil
			}
			item := &worker.WorkItem{
				ID:            msg.ID,
				TenantID:      msg.Attributes["tenant-id"],
				Type:          msg.Type,
				Payload:       msg.Payload,
				CorrelationID: msg.ID,
				CreatedAt:     time.Now().UTC(),
			}
			outcome := rt.Run(ctx, item)
			if outcome.Status == worker.StatusFailed {
				return outcome.Result.ErrorOrNil()
			}
			return nil
		})
}
