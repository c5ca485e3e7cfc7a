package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"

	"github.com/entrenia/booking-engine/cmd/mainconfig"
	"github.com/entrenia/booking-engine/internal/ai"
	"github.com/entrenia/booking-engine/internal/api/router"
	appconfig "github.com/entrenia/booking-engine/internal/config"
	"github.com/entrenia/booking-engine/internal/engine"
	"github.com/entrenia/booking-engine/internal/observability/metrics"
	"github.com/entrenia/booking-engine/internal/store"
	"github.com/entrenia/booking-engine/internal/wa"
	"github.com/entrenia/booking-engine/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking engine",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	convDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open conversation db", "error", err)
		os.Exit(1)
	}
	defer func() { _ = convDB.Close() }()

	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()

	messenger, err := wa.New(wa.Config{
		BaseURL:       cfg.WhatsAppBaseURL,
		AccessToken:   cfg.WhatsAppToken,
		PhoneNumberID: cfg.WhatsAppPhoneID,
		MaxRetries:    cfg.SendRetryMax,
		Backoff:       cfg.SendRetryBackoff,
		Logger:        logger.Logger,
	})
	if err != nil {
		logger.Error("failed to create whatsapp client", "error", err)
		os.Exit(1)
	}

	engineMetrics := metrics.NewEngineMetrics(prometheus.DefaultRegisterer)

	deps := engine.Deps{
		Trainers:      store.NewTrainerRepo(pool),
		Clients:       store.NewClientRepo(pool),
		Conversations: store.NewConversationStore(convDB),
		Catalog:       store.NewCatalogRepo(pool),
		Schedule:      store.NewScheduleRepo(pool),
		Bookings:      store.NewAppointmentRepo(pool),
		Orders:        store.NewOrderRepo(pool),
		AISettings:    store.NewAISettingsRepo(pool),
		Messenger:     messenger,
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	if fallback := buildFallback(ctx, cfg, awsCfg, redisClient, logger); fallback != nil {
		deps.Fallback = fallback
	}

	eng := engine.New(deps, logger,
		engine.WithHorizonDays(cfg.SlotHorizonDays),
		engine.WithMetrics(engineMetrics),
	)

	var (
		queue   engine.Queue
		jobs    *engine.JobStore
		updater engine.JobUpdater
	)
	if cfg.UseMemoryQueue {
		logger.Info("using in-memory inbound queue")
		queue = engine.NewMemoryQueue(0)
	} else {
		if cfg.InboundQueueURL == "" {
			logger.Error("INBOUND_QUEUE_URL is required when USE_MEMORY_QUEUE is false")
			os.Exit(1)
		}
		sqsClient := sqs.NewFromConfig(awsCfg)
		queue = engine.NewSQSQueue(sqsClient, cfg.InboundQueueURL)
		dynamoClient := dynamodb.NewFromConfig(awsCfg)
		jobs = engine.NewJobStore(dynamoClient, cfg.JobsTable, logger)
		updater = jobs
	}

	var recorder engine.JobRecorder
	if jobs != nil {
		recorder = jobs
	}
	publisher := engine.NewPublisher(queue, recorder, logger)

	worker := engine.NewWorker(eng, queue, updater, logger,
		engine.WithWorkerCount(cfg.WorkerCount),
	)
	worker.Start(ctx)

	webhook := wa.NewWebhookHandler(wa.WebhookConfig{
		Publisher:   publisher,
		Dedup:       wa.NewDeduper(redisClient, cfg.DedupTTL),
		VerifyToken: cfg.WhatsAppVerifyToken,
		Logger:      logger,
	})

	r := router.New(&router.Config{
		Webhook:        webhook,
		MetricsHandler: promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	cancel()
	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("worker stopped")
	case <-shutdownCtx.Done():
		logger.Error("worker shutdown timed out", "error", shutdownCtx.Err())
	}
}

// buildFallback wires the configured LLM provider, or returns nil when no
// provider is configured so the engine answers with the greeting instead.
func buildFallback(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, redisClient *redis.Client, logger *logging.Logger) engine.Fallback {
	var (
		llm   ai.LLMClient
		model string
	)

	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Warn("LLM_PROVIDER=openai but OPENAI_API_KEY is empty, fallback disabled")
			return nil
		}
		llm = ai.NewOpenAILLMClient(openai.NewClient(cfg.OpenAIAPIKey))
		model = cfg.OpenAIModel
	case "bedrock":
		if cfg.BedrockModelID == "" {
			logger.Warn("LLM_PROVIDER=bedrock but BEDROCK_MODEL_ID is empty, fallback disabled")
			return nil
		}
		llm = ai.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
		model = cfg.BedrockModelID
	case "gemini":
		client, err := ai.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Warn("gemini client unavailable, fallback disabled", "error", err)
			return nil
		}
		llm = client
	default:
		logger.Warn("unknown LLM provider, fallback disabled", "provider", cfg.LLMProvider)
		return nil
	}

	return ai.NewAdapter(llm, redisClient, model, logger, ai.WithTimeout(cfg.LLMTimeout))
}
