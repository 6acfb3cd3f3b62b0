package indexing

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"docstack/internal/models"
	"docstack/pkg/logger"
)

// MessageSource is the consumer's view of the queue: fetch without
// auto-commit, commit explicitly. *kafka.Reader satisfies it.
type MessageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// MessageProcessor handles one decoded message; *Processor satisfies it.
type MessageProcessor interface {
	Process(ctx context.Context, msg IndexingMessage) error
}

// Consumer drives the at-least-once indexing loop. An offset is committed
// only after the message's end state is durable: either the processor
// finished (INDEXED, FAILED, or stale drop), or the message was republished
// with an incremented attempt, or it was dead-lettered. If the process dies
// between any of those and the commit, redelivery repeats idempotent work.
type Consumer struct {
	source      MessageSource
	processor   MessageProcessor
	publisher   MessagePublisher
	store       DocumentStore
	maxAttempts int
	retryDelay  time.Duration
	log         *logger.Logger
}

// NewConsumer creates a consumer.
func NewConsumer(source MessageSource, processor MessageProcessor, publisher MessagePublisher, store DocumentStore, maxAttempts int, log *logger.Logger) *Consumer {
	return &Consumer{
		source:      source,
		processor:   processor,
		publisher:   publisher,
		store:       store,
		maxAttempts: maxAttempts,
		retryDelay:  2 * time.Second,
		log:         log,
	}
}

// Run fetches and handles messages until ctx is cancelled. The group offset
// is a single per-partition watermark, so committing a later message would
// implicitly acknowledge every earlier one: the loop never fetches past a
// message whose terminal action (republish, dead-letter, or commit) has not
// succeeded, and retries it with a delay instead.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("indexing consumer started")
	for {
		m, err := c.source.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				c.log.Info("indexing consumer stopped")
				return nil
			}
			c.log.WithError(models.ErrorInfo{Message: err.Error()}).Error("failed to fetch message")
			if !c.pause(ctx) {
				c.log.Info("indexing consumer stopped")
				return nil
			}
			continue
		}
		for {
			err := c.Handle(ctx, m)
			if err == nil {
				break
			}
			c.log.WithError(models.ErrorInfo{Message: err.Error()}).Error("message handling failed, retrying")
			if !c.pause(ctx) {
				c.log.Info("indexing consumer stopped")
				return nil
			}
		}
	}
}

// pause waits out the retry delay; false means ctx was cancelled.
func (c *Consumer) pause(ctx context.Context) bool {
	timer := time.NewTimer(c.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Handle processes one raw queue message and commits its offset once the
// outcome is durable.
func (c *Consumer) Handle(ctx context.Context, raw kafka.Message) error {
	msg, err := DecodeMessage(raw.Value)
	if err != nil {
		// Poison payload: there is nothing to retry and nothing to mark.
		c.log.WithError(models.ErrorInfo{Message: err.Error()}).Error("dropping undecodable indexing message")
		return c.source.CommitMessages(ctx, raw)
	}

	log := c.log.WithPayload(map[string]interface{}{
		"document_id":   string(msg.DocumentID),
		"collection_id": string(msg.CollectionID),
		"attempt":       msg.Attempt,
	})

	procErr := c.processor.Process(ctx, msg)
	if procErr == nil || IsPermanentError(procErr) {
		if procErr != nil {
			log.WithError(models.ErrorInfo{Message: procErr.Error()}).Warn("document failed permanently")
		}
		return c.source.CommitMessages(ctx, raw)
	}

	// Transient failure. kafka-go will not redeliver an uncommitted offset to
	// a live group member, so bounded retry is republish-with-attempt+1.
	if msg.Attempt >= c.maxAttempts {
		log.WithError(models.ErrorInfo{Message: procErr.Error()}).Error("attempts exhausted, dead-lettering")
		if err := c.publisher.PublishDeadLetter(ctx, msg, procErr.Error()); err != nil {
			return err
		}
		if err := c.store.UpdateIndexingStatus(ctx, msg.DocumentID, msg.CollectionID, models.StatusFailed); err != nil &&
			!errors.Is(err, models.ErrNotFound) && !errors.Is(err, models.ErrInvalidArgument) {
			return err
		}
		return c.source.CommitMessages(ctx, raw)
	}

	retry := msg
	retry.Attempt++
	log.WithError(models.ErrorInfo{Message: procErr.Error()}).Warn("transient failure, republishing")
	if err := c.publisher.Publish(ctx, retry); err != nil {
		return err
	}
	return c.source.CommitMessages(ctx, raw)
}
