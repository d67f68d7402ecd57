package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/RosanaConstantin/cna-introspect/order-service/domain"
	"github.com/RosanaConstantin/cna-introspect/order-service/storage"
)

type fakeQueue struct {
	mu       sync.Mutex
	batches  [][]*azqueue.DequeuedMessage
	err      error
	deleted  []string
	lastOpts *azqueue.DequeueMessagesOptions
}

func (f *fakeQueue) DequeueMessages(ctx context.Context, o *azqueue.DequeueMessagesOptions) (azqueue.DequeueMessagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastOpts = o
	if f.err != nil {
		return azqueue.DequeueMessagesResponse{}, f.err
	}
	if len(f.batches) == 0 {
		return azqueue.DequeueMessagesResponse{}, nil
	}
	var resp azqueue.DequeueMessagesResponse
	resp.Messages = f.batches[0]
	f.batches = f.batches[1:]
	return resp, nil
}

func (f *fakeQueue) DeleteMessage(ctx context.Context, messageID string, popReceipt string, o *azqueue.DeleteMessageOptions) (azqueue.DeleteMessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return azqueue.DeleteMessageResponse{}, nil
}

func (f *fakeQueue) deletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func message(id, text string, dequeueCount int64) *azqueue.DequeuedMessage {
	receipt := "receipt-" + id
	return &azqueue.DequeuedMessage{
		MessageID:    &id,
		PopReceipt:   &receipt,
		MessageText:  &text,
		DequeueCount: &dequeueCount,
	}
}

const validEnvelope = `{"id":"e1","topic":"product-events","pubsubname":"pubsub","correlationid":"abc","data":{"productId":"p1","name":"Widget","price":9.99,"timestamp":"2024-01-01T00:00:00.000Z","correlationId":"abc"}}`

type stubHandler struct {
	err   error
	calls []string
}

func (s *stubHandler) Handle(ctx context.Context, env domain.Envelope, fallbackID string) (domain.Result, error) {
	s.calls = append(s.calls, fallbackID)
	return domain.Result{CorrelationID: fallbackID}, s.err
}

func TestPollDeletesProcessedAndInvalidMessages(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := storage.NewMemoryStore()
	proc := domain.NewProcessor(store, storage.NewMemoryLedger(0), domain.ProcessorConfig{}, logger, nil)
	q := &fakeQueue{batches: [][]*azqueue.DequeuedMessage{{
		message("m1", validEnvelope, 1),
		message("m2", `{"data":{"productId":"p2"}}`, 1),
		message("m3", `not json`, 1),
	}}}
	p := newPoller(q, proc, Config{BatchSize: 16, VisibilityTimeout: 30 * time.Second}, logger)

	n, err := p.poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 messages, got %d", n)
	}
	if got := q.deletedIDs(); len(got) != 3 {
		t.Fatalf("expected all three messages deleted, got %v", got)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one order from the valid message, got %d", store.Len())
	}
	if *q.lastOpts.NumberOfMessages != 16 || *q.lastOpts.VisibilityTimeout != 30 {
		t.Fatalf("unexpected dequeue options %+v", q.lastOpts)
	}
}

func TestPollKeepsFailedMessages(t *testing.T) {
	logger, hook := test.NewNullLogger()
	h := &stubHandler{err: &domain.ProcessingError{Stage: "store", Err: errors.New("boom")}}
	q := &fakeQueue{batches: [][]*azqueue.DequeuedMessage{{message("m1", validEnvelope, 1)}}}
	p := newPoller(q, h, Config{MaxDequeueCount: 5}, logger)

	if _, err := p.poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(q.deletedIDs()) != 0 {
		t.Fatal("failed messages must stay on the queue")
	}
	if len(h.calls) != 1 || h.calls[0] != "abc" {
		t.Fatalf("expected envelope correlation id as fallback, got %v", h.calls)
	}
	if last := hook.LastEntry(); last == nil || last.Message != "Processing failed, message will be redelivered" {
		t.Fatalf("unexpected last log %#v", last)
	}
}

func TestPollDropsMessagesPastMaxDequeueCount(t *testing.T) {
	logger, _ := test.NewNullLogger()
	h := &stubHandler{}
	q := &fakeQueue{batches: [][]*azqueue.DequeuedMessage{{message("m1", validEnvelope, 6)}}}
	p := newPoller(q, h, Config{MaxDequeueCount: 5}, logger)

	if _, err := p.poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if got := q.deletedIDs(); len(got) != 1 || got[0] != "m1" {
		t.Fatalf("expected m1 to be dropped, got %v", got)
	}
	if len(h.calls) != 0 {
		t.Fatal("dropped messages must not be processed")
	}
}

func TestPollGeneratesCorrelationIDWhenAbsent(t *testing.T) {
	logger, _ := test.NewNullLogger()
	h := &stubHandler{}
	q := &fakeQueue{batches: [][]*azqueue.DequeuedMessage{{message("m1", `{"data":{"productId":"p1","name":"W","price":1}}`, 1)}}}
	p := newPoller(q, h, Config{}, logger)

	if _, err := p.poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(h.calls) != 1 || h.calls[0] == "" {
		t.Fatalf("expected a generated fallback id, got %v", h.calls)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	logger, _ := test.NewNullLogger()
	q := &fakeQueue{err: errors.New("unreachable")}
	p := newPoller(q, &stubHandler{}, Config{PollInterval: 10 * time.Millisecond}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}
