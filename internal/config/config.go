package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MySQLConfig holds the relational store connection settings.
type MySQLConfig struct {
	Address         string `yaml:"address"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	MaxOpenConns    int    `yaml:"maxOpenConns"`
	MaxIdleConns    int    `yaml:"maxIdleConns"`
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // seconds
}

// MilvusConfig holds the vector index connection settings. Collections are
// created per document collection at runtime; only the embedding dimension
// and index parameters are fixed by deployment.
type MilvusConfig struct {
	Address    string `yaml:"address"`
	VectorDim  int    `yaml:"vectorDim"`
	MetricType string `yaml:"metricType"` // e.g. "COSINE", "L2"
}

// MinIOConfig holds the object storage connection settings.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Secure    bool   `yaml:"secure"`
}

// StorageConfig selects the object storage backend.
type StorageConfig struct {
	// Backend is "minio" or "local".
	Backend string      `yaml:"backend"`
	Local   LocalConfig `yaml:"local"`
	MinIO   MinIOConfig `yaml:"minio"`
}

// LocalConfig holds the local-disk storage backend settings.
type LocalConfig struct {
	Root string `yaml:"root"`
}

// RedisConfig holds the cache connection settings.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// KafkaConfig holds the message queue connection settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	// Topic carries indexing jobs; DeadLetterTopic receives messages that
	// exhaust their redelivery budget.
	Topic           string `yaml:"topic"`
	DeadLetterTopic string `yaml:"deadLetterTopic"`
	GroupID         string `yaml:"groupID"`
}

// IndexingConfig tunes the pipeline.
type IndexingConfig struct {
	// MaxAttempts bounds redelivery of a message that keeps failing
	// transiently before it is dead-lettered.
	MaxAttempts  int `yaml:"maxAttempts"`
	ChunkSize    int `yaml:"chunkSize"`    // tokens per chunk
	ChunkOverlap int `yaml:"chunkOverlap"` // tokens of overlap
	TopK         int `yaml:"topK"`         // passages retrieved per query
}

// AuthConfig configures bearer-token verification. Token issuance happens
// outside this service.
type AuthConfig struct {
	JwtSecret string `yaml:"jwtSecret"`
}

// OpenAIConfig holds credentials for the embedding/completion provider.
type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
}

// EmbeddingConfig selects the embedding model.
type EmbeddingConfig struct {
	Provider string       `yaml:"provider"`
	Model    string       `yaml:"model"`
	OpenAI   OpenAIConfig `yaml:"openai"`
}

// LLMConfig selects the completion model.
type LLMConfig struct {
	Provider string       `yaml:"provider"`
	Model    string       `yaml:"model"`
	OpenAI   OpenAIConfig `yaml:"openai"`
}

// LoggerConfig sets the log level.
type LoggerConfig struct {
	Level string `yaml:"level"`
}

// AppInfo holds basic application metadata.
type AppInfo struct {
	Name          string `yaml:"name"`
	Version       string `yaml:"version"`
	Environment   string `yaml:"environment"`
	ServerAddress string `yaml:"serverAddress"`
}

// MiddlewareConfig holds HTTP middleware settings.
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// RateLimiterConfig configures request rate limiting.
type RateLimiterConfig struct {
	Enabled bool `yaml:"enabled"`
	// Algorithm is one of "fixedWindow", "tokenBucket", "leakyBucket",
	// "slidingWindowLog", "slidingWindowCounter".
	Algorithm   string            `yaml:"algorithm"`
	FixedWindow FixedWindowConfig `yaml:"fixedWindow"`
	TokenBucket TokenBucketConfig `yaml:"tokenBucket"`
}

// FixedWindowConfig configures the window-based algorithms (fixed window,
// sliding window log, sliding window counter).
type FixedWindowConfig struct {
	Limit      int    `yaml:"limit"`
	Window     string `yaml:"window"` // e.g. "1m", "30s"
	NumBuckets int    `yaml:"numBuckets"`
}

// TokenBucketConfig configures the token bucket algorithm.
type TokenBucketConfig struct {
	Rate     float64 `yaml:"rate"` // tokens per second
	Capacity int     `yaml:"capacity"`
}

// CircuitBreakerConfig configures the circuit breaker middleware.
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // e.g. "30s"
}

// DatabaseConfigs groups all backing store configurations.
type DatabaseConfigs struct {
	MySQL  MySQLConfig  `yaml:"mysql"`
	Milvus MilvusConfig `yaml:"milvus"`
	Redis  RedisConfig  `yaml:"redis"`
	Kafka  KafkaConfig  `yaml:"kafka"`
}

// AppConfig is the root of the YAML configuration file.
type AppConfig struct {
	App        AppInfo          `yaml:"app"`
	Auth       AuthConfig       `yaml:"auth"`
	Logger     LoggerConfig     `yaml:"logger"`
	Databases  DatabaseConfigs  `yaml:"databases"`
	Storage    StorageConfig    `yaml:"storage"`
	Indexing   IndexingConfig   `yaml:"indexing"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	LLM        LLMConfig        `yaml:"llm"`
	Middleware MiddlewareConfig `yaml:"middleware"`
}

// LoadConfig reads and parses the YAML configuration file at path.
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read config file '%s': %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(yamlFile, &cfg); err != nil {
		return nil, fmt.Errorf("unable to parse config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Indexing.MaxAttempts <= 0 {
		c.Indexing.MaxAttempts = 5
	}
	if c.Indexing.ChunkSize <= 0 {
		c.Indexing.ChunkSize = 1024
	}
	if c.Indexing.ChunkOverlap < 0 || c.Indexing.ChunkOverlap >= c.Indexing.ChunkSize {
		c.Indexing.ChunkOverlap = 256
	}
	if c.Indexing.TopK <= 0 {
		c.Indexing.TopK = 10
	}
	if c.Databases.Kafka.GroupID == "" {
		c.Databases.Kafka.GroupID = "indexing-workers"
	}
	if c.App.ServerAddress == "" {
		c.App.ServerAddress = ":8080"
	}
	if c.Databases.Milvus.MetricType == "" {
		c.Databases.Milvus.MetricType = "COSINE"
	}
}
