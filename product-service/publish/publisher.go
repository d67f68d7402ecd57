// Package publish delivers product events to the pub/sub substrate with a
// bounded, exponentially spaced retry.
package publish

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/RosanaConstantin/cna-introspect/internal/logging"
	"github.com/RosanaConstantin/cna-introspect/product-service/domain"
)

const tracerName = "product-service/publish"

// Substrate is the publish entry point of the delivery substrate.
type Substrate interface {
	Publish(ctx context.Context, topic string, ev domain.ProductEvent, correlationID string) error
}

// Ack reports a publish that the substrate accepted.
type Ack struct {
	Attempts int
}

// Publisher wraps a Substrate with retry, tracing and metrics.
type Publisher struct {
	substrate Substrate
	topic     string
	retry     RetryConfig
	logger    *log.Logger
	attempts  *prometheus.CounterVec
	sleep     sleeper
}

// NewPublisher builds a Publisher for topic. reg may be nil to skip metrics.
func NewPublisher(substrate Substrate, topic string, retry RetryConfig, logger *log.Logger, reg prometheus.Registerer) *Publisher {
	if substrate == nil {
		panic("publish.NewPublisher: substrate is required")
	}
	if logger == nil {
		panic("publish.NewPublisher: logger is required")
	}
	p := &Publisher{
		substrate: substrate,
		topic:     topic,
		retry:     retry,
		logger:    logger,
		sleep:     sleepContext,
	}
	if reg != nil {
		p.attempts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "product_publish_attempts_total",
			Help: "Publish attempts made against the delivery substrate, by outcome.",
		}, []string{"outcome"})
		reg.MustRegister(p.attempts)
	}
	return p
}

// Topic returns the topic events are published to.
func (p *Publisher) Topic() string { return p.topic }

// Publish delivers ev, retrying failed attempts. On failure the error of the
// final attempt is returned unchanged; Ack.Attempts is set either way.
func (p *Publisher) Publish(ctx context.Context, ev domain.ProductEvent, correlationID string) (Ack, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "product.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", p.topic),
			attribute.String("correlation.id", correlationID),
			attribute.String("product.id", ev.ProductID),
		),
	)
	defer span.End()

	attempts, err := retryWithBackoff(ctx, p.retry, p.sleep, func(ctx context.Context, attempt int) error {
		start := time.Now()
		err := p.substrate.Publish(ctx, p.topic, ev, correlationID)
		if err == nil {
			p.observe("success")
			return nil
		}
		p.observe("failure")
		span.AddEvent("publish.attempt_failed", trace.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.String("error", err.Error()),
		))
		entry := p.logger.WithFields(log.Fields{
			logging.FieldCorrelationID: correlationID,
			logging.FieldError:         err.Error(),
			"attempt":                  attempt,
			"maxAttempts":              p.retry.MaxAttempts,
			"attempt_ms":               time.Since(start).Milliseconds(),
		})
		if attempt < p.retry.MaxAttempts {
			entry.WithField("retryIn", exponentialBackoff(attempt+1, p.retry.BaseDelay).String()).Warn("Publish attempt failed, retrying")
		} else {
			entry.Warn("Publish attempt failed")
		}
		return err
	})
	span.SetAttributes(attribute.Int("publish.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Ack{Attempts: attempts}, err
	}
	span.SetStatus(codes.Ok, "")
	return Ack{Attempts: attempts}, nil
}

func (p *Publisher) observe(outcome string) {
	if p.attempts == nil {
		return
	}
	p.attempts.WithLabelValues(outcome).Inc()
}
