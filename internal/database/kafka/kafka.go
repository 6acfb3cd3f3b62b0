package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"docstack/internal/config"
)

// EnsureTopics connects to the first broker and creates any of the given
// topics that do not exist yet. Safe to call from every service at startup.
func EnsureTopics(cfg *config.KafkaConfig, topics ...string) error {
	if len(cfg.Brokers) == 0 {
		return fmt.Errorf("no Kafka brokers configured")
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("unable to dial Kafka: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("unable to read Kafka partitions: %w", err)
	}
	existing := make(map[string]struct{})
	for _, p := range partitions {
		existing[p.Topic] = struct{}{}
	}

	var toCreate []kafka.TopicConfig
	for _, topic := range topics {
		if _, ok := existing[topic]; !ok {
			toCreate = append(toCreate, kafka.TopicConfig{
				Topic:             topic,
				NumPartitions:     1,
				ReplicationFactor: 1,
			})
		}
	}
	if len(toCreate) > 0 {
		if err := conn.CreateTopics(toCreate...); err != nil {
			return fmt.Errorf("unable to create Kafka topics: %w", err)
		}
	}
	return nil
}

// NewWriter builds a writer for the given topic.
func NewWriter(cfg *config.KafkaConfig, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}
}

// NewReader builds a consumer-group reader for the indexing topic. Offsets
// are committed manually by the consumer, never on fetch.
func NewReader(cfg *config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		Dialer: &kafka.Dialer{
			Timeout: 10 * time.Second,
		},
	})
}

// HealthCheck verifies broker connectivity.
func HealthCheck(ctx context.Context, cfg *config.KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return fmt.Errorf("no Kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("kafka health check failed: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Controller(); err != nil {
		return fmt.Errorf("kafka health check failed: %w", err)
	}
	return nil
}
