// Package queue pulls product events from an Azure Storage queue and feeds
// them to the order processor.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/RosanaConstantin/cna-introspect/internal/correlation"
	"github.com/RosanaConstantin/cna-introspect/internal/logging"
	"github.com/RosanaConstantin/cna-introspect/order-service/domain"
)

type queueClient interface {
	DequeueMessages(ctx context.Context, o *azqueue.DequeueMessagesOptions) (azqueue.DequeueMessagesResponse, error)
	DeleteMessage(ctx context.Context, messageID string, popReceipt string, o *azqueue.DeleteMessageOptions) (azqueue.DeleteMessageResponse, error)
}

// EventHandler is the part of domain.Processor the poller depends on.
type EventHandler interface {
	Handle(ctx context.Context, env domain.Envelope, fallbackID string) (domain.Result, error)
}

// Config tunes the poller.
type Config struct {
	PollInterval      time.Duration
	VisibilityTimeout time.Duration
	BatchSize         int32
	MaxDequeueCount   int64
}

// Poller drains the events queue. A message is deleted once it produced an
// order, failed validation, or exceeded MaxDequeueCount; otherwise it becomes
// visible again after the visibility timeout and is redelivered.
type Poller struct {
	queue   queueClient
	handler EventHandler
	cfg     Config
	logger  *log.Logger
}

// NewPoller connects to queueName.
func NewPoller(connStr, queueName string, h EventHandler, cfg Config, logger *log.Logger) (*Poller, error) {
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, nil)
	if err != nil {
		return nil, err
	}
	return newPoller(q, h, cfg, logger), nil
}

func newPoller(q queueClient, h EventHandler, cfg Config, logger *log.Logger) *Poller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	return &Poller{queue: q, handler: h, cfg: cfg, logger: logger}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("Queue poller started")
	for {
		n, err := p.poll(ctx)
		if ctx.Err() != nil {
			p.logger.Info("Queue poller stopped")
			return nil
		}
		if err != nil {
			p.logger.WithError(err).Error("receive failed")
		}
		if n > 0 && err == nil {
			continue
		}
		t := time.NewTimer(p.cfg.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			p.logger.Info("Queue poller stopped")
			return nil
		case <-t.C:
		}
	}
}

// poll handles one batch and returns the number of messages received.
func (p *Poller) poll(ctx context.Context) (int, error) {
	opts := &azqueue.DequeueMessagesOptions{NumberOfMessages: &p.cfg.BatchSize}
	if p.cfg.VisibilityTimeout > 0 {
		vt := int32(p.cfg.VisibilityTimeout / time.Second)
		opts.VisibilityTimeout = &vt
	}
	resp, err := p.queue.DequeueMessages(ctx, opts)
	if err != nil {
		return 0, err
	}
	for _, msg := range resp.Messages {
		if msg == nil || msg.MessageID == nil || msg.PopReceipt == nil {
			continue
		}
		p.handle(ctx, msg)
	}
	return len(resp.Messages), nil
}

func (p *Poller) handle(ctx context.Context, msg *azqueue.DequeuedMessage) {
	var text string
	if msg.MessageText != nil {
		text = *msg.MessageText
	}
	var env domain.Envelope
	if err := sonic.UnmarshalString(text, &env); err != nil {
		p.logger.WithFields(log.Fields{
			logging.FieldError: err.Error(),
			"messageId":        *msg.MessageID,
		}).Error("Dropping undecodable message")
		p.delete(ctx, msg)
		return
	}
	fallback := correlation.Resolve(env.CorrelationID, correlation.NewID())
	entry := p.logger.WithFields(log.Fields{
		logging.FieldCorrelationID: correlation.Resolve(env.EmbeddedCorrelationID(), fallback),
		"messageId":                *msg.MessageID,
	})

	if msg.DequeueCount != nil && p.cfg.MaxDequeueCount > 0 && *msg.DequeueCount > p.cfg.MaxDequeueCount {
		entry.WithField("dequeueCount", *msg.DequeueCount).Error("Dropping message after too many deliveries")
		p.delete(ctx, msg)
		return
	}

	_, err := p.handler.Handle(correlation.WithID(ctx, fallback), env, fallback)
	var ve *domain.ValidationError
	switch {
	case err == nil:
		p.delete(ctx, msg)
	case errors.As(err, &ve):
		// Invalid events are never redelivered.
		p.delete(ctx, msg)
	default:
		entry.WithError(err).Warn("Processing failed, message will be redelivered")
	}
}

func (p *Poller) delete(ctx context.Context, msg *azqueue.DequeuedMessage) {
	if _, err := p.queue.DeleteMessage(ctx, *msg.MessageID, *msg.PopReceipt, nil); err != nil {
		p.logger.WithFields(log.Fields{
			logging.FieldError: err.Error(),
			"messageId":        *msg.MessageID,
		}).Error("delete message failed")
	}
}
