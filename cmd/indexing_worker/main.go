package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"docstack/internal/chunking"
	"docstack/internal/collection"
	"docstack/internal/config"
	"docstack/internal/database/kafka"
	"docstack/internal/database/milvus"
	"docstack/internal/database/mysql"
	"docstack/internal/embedding"
	"docstack/internal/indexing"
	"docstack/internal/models"
	"docstack/internal/storage"
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
	workerLogger := logger.New("indexing_worker", "", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := mysql.New(&cfg.Databases.MySQL)
	if err != nil {
		workerLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("failed to connect to MySQL")
	}
	defer mysql.Close(db)
	if err := mysql.Migrate(db); err != nil {
		workerLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("failed to migrate schema")
	}

	milvusClient, err := milvus.New(ctx, &cfg.Databases.Milvus)
	if err != nil {
		workerLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("failed to connect to Milvus")
	}
	defer milvusClient.Close()

	objects, err := newObjectStore(ctx, cfg)
	if err != nil {
		workerLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("failed to initialize object storage")
	}

	if err := kafka.EnsureTopics(&cfg.Databases.Kafka, cfg.Databases.Kafka.Topic, cfg.Databases.Kafka.DeadLetterTopic); err != nil {
		workerLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("failed to ensure Kafka topics")
	}
	reader := kafka.NewReader(&cfg.Databases.Kafka)
	defer reader.Close()
	publisher := indexing.NewPublisher(
		kafka.NewWriter(&cfg.Databases.Kafka, cfg.Databases.Kafka.Topic),
		kafka.NewWriter(&cfg.Databases.Kafka, cfg.Databases.Kafka.DeadLetterTopic),
	)
	defer publisher.Close()

	chunker, err := chunking.NewTokenSplitter(cfg.Indexing.ChunkSize, cfg.Indexing.ChunkOverlap)
	if err != nil {
		workerLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("failed to initialize chunker")
	}
	embedder, err := embedding.NewOpenAIModel(cfg.Embedding.OpenAI.APIKey, cfg.Embedding.OpenAI.BaseURL, cfg.Embedding.Model)
	if err != nil {
		workerLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("failed to initialize embedding model")
	}

	documentStore := indexing.NewStore(db)
	collectionStore := collection.NewStore(db)
	processor := indexing.NewProcessor(documentStore, objects, chunker, embedder, milvusClient, collectionStore, workerLogger)
	consumer := indexing.NewConsumer(reader, processor, publisher, documentStore, cfg.Indexing.MaxAttempts, workerLogger)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		workerLogger.Info("shutting down")
		cancel()
	}()

	if err := consumer.Run(ctx); err != nil {
		workerLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("consumer stopped with error")
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
