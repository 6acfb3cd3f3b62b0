package indexing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"docstack/internal/chunking"
	"docstack/internal/identity"
	"docstack/internal/models"
	"docstack/pkg/logger"
)

type fakeSource struct {
	committed []kafka.Message
}

func (f *fakeSource) FetchMessage(_ context.Context) (kafka.Message, error) {
	return kafka.Message{}, context.Canceled
}

func (f *fakeSource) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.committed = append(f.committed, msgs...)
	return nil
}

type fakePublisher struct {
	published  []IndexingMessage
	deadLetter []IndexingMessage
	reasons    []string
}

func (f *fakePublisher) Publish(_ context.Context, msg IndexingMessage) error {
	f.published = append(f.published, msg)
	return nil
}

func (f *fakePublisher) PublishDeadLetter(_ context.Context, msg IndexingMessage, reason string) error {
	f.deadLetter = append(f.deadLetter, msg)
	f.reasons = append(f.reasons, reason)
	return nil
}

type stubProcessor struct {
	err error
}

func (s *stubProcessor) Process(_ context.Context, _ IndexingMessage) error {
	return s.err
}

func newConsumerFixture(procErr error) (*Consumer, *fakeSource, *fakePublisher, *fakeDocumentStore, kafka.Message, IndexingMessage) {
	source := &fakeSource{}
	publisher := &fakePublisher{}
	store := newFakeDocumentStore()

	msg := IndexingMessage{
		DocumentID:   identity.New[identity.DocumentID](),
		CollectionID: identity.New[identity.CollectionID](),
		MimeType:     "text/plain",
		ObjectKey:    "org/o/collection/c/d",
		Attempt:      1,
	}
	store.CreateDocument(context.Background(), &models.Document{ID: msg.DocumentID})
	store.CreateLink(context.Background(), &models.DocumentToCollection{
		DocumentID:     msg.DocumentID,
		CollectionID:   msg.CollectionID,
		IndexingStatus: models.StatusNotIndexed,
	})

	raw, _ := msg.Encode()
	consumer := NewConsumer(source, &stubProcessor{err: procErr}, publisher, store, 3, logger.New("consumer-test", "", ""))
	return consumer, source, publisher, store, kafka.Message{Value: raw}, msg
}

func TestHandleCommitsOnSuccess(t *testing.T) {
	consumer, source, publisher, _, raw, _ := newConsumerFixture(nil)

	if err := consumer.Handle(context.Background(), raw); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(source.committed) != 1 {
		t.Errorf("committed %d messages, want 1", len(source.committed))
	}
	if len(publisher.published) != 0 || len(publisher.deadLetter) != 0 {
		t.Error("successful message was republished or dead-lettered")
	}
}

func TestHandleCommitsPermanentFailureWithoutRetry(t *testing.T) {
	consumer, source, publisher, _, raw, _ := newConsumerFixture(fmt.Errorf("no loader: %w", chunking.ErrUnsupportedMime))

	if err := consumer.Handle(context.Background(), raw); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(source.committed) != 1 {
		t.Errorf("committed %d messages, want 1", len(source.committed))
	}
	if len(publisher.published) != 0 {
		t.Error("permanent failure was republished")
	}
}

func TestHandleRepublishesTransientFailureWithIncrementedAttempt(t *testing.T) {
	consumer, source, publisher, _, raw, msg := newConsumerFixture(errors.New("broker hiccup"))

	if err := consumer.Handle(context.Background(), raw); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(publisher.published) != 1 {
		t.Fatalf("republished %d messages, want 1", len(publisher.published))
	}
	if got := publisher.published[0].Attempt; got != msg.Attempt+1 {
		t.Errorf("republished attempt = %d, want %d", got, msg.Attempt+1)
	}
	if len(source.committed) != 1 {
		t.Errorf("committed %d messages, want 1", len(source.committed))
	}
}

func TestHandleDeadLettersWhenAttemptsExhausted(t *testing.T) {
	consumer, source, publisher, store, _, msg := newConsumerFixture(errors.New("broker hiccup"))

	exhausted := msg
	exhausted.Attempt = 3
	raw, _ := exhausted.Encode()

	if err := consumer.Handle(context.Background(), kafka.Message{Value: raw}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(publisher.deadLetter) != 1 {
		t.Fatalf("dead-lettered %d messages, want 1", len(publisher.deadLetter))
	}
	if len(publisher.published) != 0 {
		t.Error("exhausted message was also republished")
	}
	link, err := store.GetLink(context.Background(), msg.DocumentID, msg.CollectionID)
	if err != nil {
		t.Fatalf("GetLink() error = %v", err)
	}
	if link.IndexingStatus != models.StatusFailed {
		t.Errorf("status = %s, want FAILED", link.IndexingStatus)
	}
	if len(source.committed) != 1 {
		t.Errorf("committed %d messages, want 1", len(source.committed))
	}
}

// queueSource serves a fixed sequence of messages and fails the test if the
// consumer fetches past a message whose offset it has not committed.
type queueSource struct {
	t         *testing.T
	queue     []kafka.Message
	next      int
	committed []kafka.Message
	pending   *kafka.Message
	cancel    context.CancelFunc
}

func (q *queueSource) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if q.pending != nil {
		q.t.Fatal("fetched past an uncommitted message")
	}
	if q.next >= len(q.queue) {
		q.cancel()
		return kafka.Message{}, context.Canceled
	}
	m := q.queue[q.next]
	q.next++
	q.pending = &m
	return m, nil
}

func (q *queueSource) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	q.committed = append(q.committed, msgs...)
	q.pending = nil
	return nil
}

// flakyPublisher fails the first failures Publish calls, then delegates.
type flakyPublisher struct {
	fakePublisher
	failures int
}

func (f *flakyPublisher) Publish(ctx context.Context, msg IndexingMessage) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("broker unavailable")
	}
	return f.fakePublisher.Publish(ctx, msg)
}

func TestRunRetriesMessageUntilTerminalActionSucceeds(t *testing.T) {
	store := newFakeDocumentStore()
	first := IndexingMessage{
		DocumentID:   identity.New[identity.DocumentID](),
		CollectionID: identity.New[identity.CollectionID](),
		MimeType:     "text/plain",
		ObjectKey:    "org/o/collection/c/d1",
		Attempt:      1,
	}
	second := first
	second.DocumentID = identity.New[identity.DocumentID]()
	second.ObjectKey = "org/o/collection/c/d2"
	for _, m := range []IndexingMessage{first, second} {
		store.CreateDocument(context.Background(), &models.Document{ID: m.DocumentID})
		store.CreateLink(context.Background(), &models.DocumentToCollection{
			DocumentID:     m.DocumentID,
			CollectionID:   m.CollectionID,
			IndexingStatus: models.StatusNotIndexed,
		})
	}

	rawFirst, _ := first.Encode()
	rawSecond, _ := second.Encode()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := &queueSource{
		t:      t,
		queue:  []kafka.Message{{Offset: 10, Value: rawFirst}, {Offset: 11, Value: rawSecond}},
		cancel: cancel,
	}
	publisher := &flakyPublisher{failures: 1}

	consumer := NewConsumer(source, &stubProcessor{err: errors.New("broker hiccup")}, publisher, store, 3, logger.New("consumer-test", "", ""))
	consumer.retryDelay = time.Millisecond

	if err := consumer.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(source.committed) != 2 {
		t.Fatalf("committed %d messages, want 2", len(source.committed))
	}
	if got := source.committed[0].Offset; got != 10 {
		t.Errorf("first committed offset = %d, want 10", got)
	}
	// Both transient failures must end up republished, the first one after a
	// retry of the failed publish.
	if len(publisher.published) != 2 {
		t.Fatalf("republished %d messages, want 2", len(publisher.published))
	}
	if got := publisher.published[0].Attempt; got != first.Attempt+1 {
		t.Errorf("republished attempt = %d, want %d", got, first.Attempt+1)
	}
}

type failingSource struct {
	fetches int
}

func (f *failingSource) FetchMessage(_ context.Context) (kafka.Message, error) {
	f.fetches++
	return kafka.Message{}, errors.New("connection refused")
}

func (f *failingSource) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	return nil
}

func TestRunPacesFetchErrorsAndStopsOnCancel(t *testing.T) {
	source := &failingSource{}
	consumer := NewConsumer(source, &stubProcessor{}, &fakePublisher{}, newFakeDocumentStore(), 3, logger.New("consumer-test", "", ""))
	consumer.retryDelay = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := consumer.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if source.fetches == 0 {
		t.Fatal("no fetch attempted")
	}
	if source.fetches > 20 {
		t.Errorf("fetch retried %d times in 50ms, loop is not pacing", source.fetches)
	}
}

func TestHandleCommitsPoisonPayload(t *testing.T) {
	consumer, source, publisher, _, _, _ := newConsumerFixture(nil)

	if err := consumer.Handle(context.Background(), kafka.Message{Value: []byte("not json")}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(source.committed) != 1 {
		t.Errorf("committed %d messages, want 1", len(source.committed))
	}
	if len(publisher.published) != 0 || len(publisher.deadLetter) != 0 {
		t.Error("poison payload reached a publisher")
	}
}
