package indexing

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// Publisher writes indexing messages to the work topic and, for messages that
// exhausted their attempts, to the dead-letter topic. Messages are keyed by
// document id so redeliveries of one document stay on one partition.
type Publisher struct {
	writer     *kafka.Writer
	deadLetter *kafka.Writer
}

// NewPublisher wraps the two topic writers.
func NewPublisher(writer, deadLetter *kafka.Writer) *Publisher {
	return &Publisher{writer: writer, deadLetter: deadLetter}
}

// Publish enqueues a message on the work topic.
func (p *Publisher) Publish(ctx context.Context, msg IndexingMessage) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.DocumentID),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("unable to enqueue indexing message for document '%s': %w", msg.DocumentID, err)
	}
	return nil
}

// PublishDeadLetter parks a message on the dead-letter topic with the final
// failure reason attached as a header.
func (p *Publisher) PublishDeadLetter(ctx context.Context, msg IndexingMessage, reason string) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	err = p.deadLetter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.DocumentID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "reason", Value: []byte(reason)},
		},
	})
	if err != nil {
		return fmt.Errorf("unable to dead-letter message for document '%s': %w", msg.DocumentID, err)
	}
	return nil
}

// Close flushes and closes both writers.
func (p *Publisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return err
	}
	return p.deadLetter.Close()
}
