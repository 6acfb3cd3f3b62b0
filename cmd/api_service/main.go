package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docstack/internal/api"
	"docstack/internal/chat"
	"docstack/internal/collection"
	"docstack/internal/config"
	"docstack/internal/database/kafka"
	"docstack/internal/database/milvus"
	"docstack/internal/database/mysql"
	"docstack/internal/database/redis"
	"docstack/internal/embedding"
	"docstack/internal/indexing"
	"docstack/internal/llm"
	"docstack/internal/models"
	"docstack/internal/storage"
	"docstack/internal/tenancy"
	"docstack/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	appLogger := logger.New("api_service", "", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Relational store
	db, err := mysql.New(&cfg.Databases.MySQL)
	if err != nil {
		appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("failed to connect to MySQL")
	}
	defer mysql.Close(db)
	if err := mysql.Migrate(db); err != nil {
		appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("failed to migrate schema")
	}
	appLogger.Info("database ready")

	// Vector index
	milvusClient, err := milvus.New(ctx, &cfg.Databases.Milvus)
	if err != nil {
		appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("failed to connect to Milvus")
	}
	defer milvusClient.Close()

	// Membership cache. Optional: the tenancy service runs uncached when
	// Redis is down, it does not take the API down with it.
	cache, err := redis.New(ctx, &cfg.Databases.Redis)
	if err != nil {
		appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("redis unavailable, membership cache disabled")
		cache = nil
	}

	// Object storage
	objects, err := newObjectStore(ctx, cfg)
	if err != nil {
		appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("failed to initialize object storage")
	}

	// Queue
	if err := kafka.EnsureTopics(&cfg.Databases.Kafka, cfg.Databases.Kafka.Topic, cfg.Databases.Kafka.DeadLetterTopic); err != nil {
		appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("failed to ensure Kafka topics")
	}
	publisher := indexing.NewPublisher(
		kafka.NewWriter(&cfg.Databases.Kafka, cfg.Databases.Kafka.Topic),
		kafka.NewWriter(&cfg.Databases.Kafka, cfg.Databases.Kafka.DeadLetterTopic),
	)
	defer publisher.Close()

	// Model providers
	embedder, err := newEmbedder(cfg)
	if err != nil {
		appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("failed to initialize embedding model")
	}
	completion, err := newLLM(cfg)
	if err != nil {
		appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("failed to initialize completion model")
	}

	// Stores -> services -> handler
	tenancyStore := tenancy.NewStore(db)
	collectionStore := collection.NewStore(db)
	documentStore := indexing.NewStore(db)
	chatStore := chat.NewStore(db)

	tenancyService := tenancy.NewService(tenancyStore, chatStore, collectionStore, cache, appLogger)
	collectionService := collection.NewService(collectionStore, milvusClient, tenancyService, appLogger)
	indexingService := indexing.NewService(documentStore, objects, publisher, collectionStore, tenancyService, appLogger)
	chatService := chat.NewService(chatStore, milvusClient, embedder, completion, collectionStore, tenancyService, cfg.Indexing.TopK, appLogger)

	handler := api.NewHandler(tenancyService, collectionService, indexingService, chatService, map[string]api.HealthChecker{
		"mysql":  func(ctx context.Context) error { return mysql.HealthCheck(ctx, db) },
		"milvus": milvusClient.HealthCheck,
		"kafka":  func(ctx context.Context) error { return kafka.HealthCheck(ctx, &cfg.Databases.Kafka) },
	})
	router, err := api.SetupRouter(handler, cfg)
	if err != nil {
		appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("failed to set up router")
	}

	srv := &http.Server{
		Addr:    cfg.App.ServerAddress,
		Handler: router,
	}
	go func() {
		appLogger.Info("starting HTTP server on " + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("forced shutdown")
	}
}

func newObjectStore(ctx context.Context, cfg *config.AppConfig) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "minio", "":
		return storage.NewMinIO(ctx, &cfg.Storage.MinIO)
	case "local":
		return storage.NewLocal(cfg.Storage.Local.Root)
	default:
		return nil, fmt.Errorf("unknown storage backend '%s'", cfg.Storage.Backend)
	}
}

func newEmbedder(cfg *config.AppConfig) (embedding.Embedding, error) {
	switch cfg.Embedding.Provider {
	case "openai", "":
		return embedding.NewOpenAIModel(cfg.Embedding.OpenAI.APIKey, cfg.Embedding.OpenAI.BaseURL, cfg.Embedding.Model)
	default:
		return nil, fmt.Errorf("unknown embedding provider '%s'", cfg.Embedding.Provider)
	}
}

func newLLM(cfg *config.AppConfig) (llm.LLM, error) {
	switch cfg.LLM.Provider {
	case "openai", "":
		return llm.NewOpenAI(cfg.LLM.OpenAI.APIKey, cfg.LLM.OpenAI.BaseURL, cfg.LLM.Model)
	default:
		return nil, fmt.Errorf("unknown llm provider '%s'", cfg.LLM.Provider)
	}
}
