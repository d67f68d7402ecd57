package publish

import (
	"context"
	"errors"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
)

type fakeQueue struct {
	messages []string
	err      error
}

func (f *fakeQueue) EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	if f.err != nil {
		return azqueue.EnqueueMessagesResponse{}, f.err
	}
	f.messages = append(f.messages, content)
	return azqueue.EnqueueMessagesResponse{}, nil
}

func TestQueueClientPublishesEnvelope(t *testing.T) {
	q := &fakeQueue{}
	client := newQueueClient(q, "pubsub", "product-service")
	client.newID = func() string { return "env-1" }

	if err := client.Publish(context.Background(), "product-events", sampleEvent, "abc"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(q.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(q.messages))
	}
	var env Envelope
	if err := sonic.UnmarshalString(q.messages[0], &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.ID != "env-1" || env.Topic != "product-events" || env.PubSubName != "pubsub" || env.Source != "product-service" {
		t.Fatalf("unexpected envelope %#v", env)
	}
	if env.CorrelationID != "abc" {
		t.Fatalf("unexpected envelope correlation id %q", env.CorrelationID)
	}
	if env.Data != sampleEvent {
		t.Fatalf("unexpected envelope data %#v", env.Data)
	}
}

func TestQueueClientWrapsEnqueueError(t *testing.T) {
	cause := errors.New("queue unavailable")
	client := newQueueClient(&fakeQueue{err: cause}, "pubsub", "product-service")

	err := client.Publish(context.Background(), "product-events", sampleEvent, "abc")
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}
