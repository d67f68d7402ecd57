package publish

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/RosanaConstantin/cna-introspect/product-service/domain"
)

// Envelope mirrors the CloudEvents wrapper the sidecar pushes to subscribers,
// so both delivery paths hand the consumer the same shape.
type Envelope struct {
	ID              string              `json:"id"`
	Source          string              `json:"source"`
	Type            string              `json:"type"`
	SpecVersion     string              `json:"specversion"`
	DataContentType string              `json:"datacontenttype"`
	Topic           string              `json:"topic"`
	PubSubName      string              `json:"pubsubname"`
	CorrelationID   string              `json:"correlationid,omitempty"`
	Data            domain.ProductEvent `json:"data"`
}

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// QueueClient publishes envelopes to an Azure Storage queue.
type QueueClient struct {
	queue      queueClient
	pubsubName string
	source     string
	newID      func() string
}

// NewQueueClient connects to queueName. SDK retries are disabled because the
// Publisher already bounds and spaces the attempts.
func NewQueueClient(connStr, queueName, pubsubName, source string) (*QueueClient, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, err
	}
	return newQueueClient(q, pubsubName, source), nil
}

func newQueueClient(q queueClient, pubsubName, source string) *QueueClient {
	return &QueueClient{queue: q, pubsubName: pubsubName, source: source, newID: uuid.NewString}
}

// Publish enqueues ev wrapped in an Envelope.
func (q *QueueClient) Publish(ctx context.Context, topic string, ev domain.ProductEvent, correlationID string) error {
	env := Envelope{
		ID:              q.newID(),
		Source:          q.source,
		Type:            "com.dapr.event.sent",
		SpecVersion:     "1.0",
		DataContentType: "application/json",
		Topic:           topic,
		PubSubName:      q.pubsubName,
		CorrelationID:   correlationID,
		Data:            ev,
	}
	payload, err := sonic.MarshalString(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if _, err := q.queue.EnqueueMessage(ctx, payload, nil); err != nil {
		return fmt.Errorf("enqueue to %s: %w", topic, err)
	}
	return nil
}
