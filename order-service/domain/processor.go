package domain

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/RosanaConstantin/cna-introspect/internal/correlation"
	"github.com/RosanaConstantin/cna-introspect/internal/logging"
)

const tracerName = "order-service/domain"

// OrderStore persists created orders.
type OrderStore interface {
	Save(ctx context.Context, o Order) error
	Get(ctx context.Context, orderID string) (Order, error)
}

// Ledger records which order was created for an idempotency key.
type Ledger interface {
	// Claim records orderID as the owner of key unless the key is already
	// owned, in which case the existing owner is returned with claimed=false.
	Claim(ctx context.Context, key, orderID string) (owner string, claimed bool, err error)
	// Release drops the claim so a redelivery can process the event again.
	Release(ctx context.Context, key, orderID string) error
}

// ProcessorConfig tunes event processing.
type ProcessorConfig struct {
	// Delay is the simulated commit work performed before an order is stored.
	Delay time.Duration
}

// Result describes a handled event.
type Result struct {
	Order         Order
	CorrelationID string
	Duplicate     bool
}

// Processor validates delivered events and turns them into orders.
type Processor struct {
	store     OrderStore
	ledger    Ledger
	cfg       ProcessorConfig
	logger    *log.Logger
	processed *prometheus.CounterVec
	now       func() time.Time
	newID     func(time.Time) string
}

// NewProcessor builds a Processor. reg may be nil to skip metrics.
func NewProcessor(store OrderStore, ledger Ledger, cfg ProcessorConfig, logger *log.Logger, reg prometheus.Registerer) *Processor {
	if store == nil || ledger == nil {
		panic("domain.NewProcessor: store and ledger are required")
	}
	if logger == nil {
		panic("domain.NewProcessor: logger is required")
	}
	p := &Processor{
		store:  store,
		ledger: ledger,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		newID:  NewOrderID,
	}
	if reg != nil {
		p.processed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_events_processed_total",
			Help: "Product events handled by the order processor, by outcome.",
		}, []string{"outcome"})
		reg.MustRegister(p.processed)
	}
	return p
}

// Handle resolves the correlation id of env, validates its payload and
// processes it. fallbackID is used when the payload carries no id of its own.
// A *ValidationError means the event must not be redelivered; any other error
// is a *ProcessingError.
func (p *Processor) Handle(ctx context.Context, env Envelope, fallbackID string) (Result, error) {
	id := correlation.Resolve(env.EmbeddedCorrelationID(), fallbackID)
	p.logger.WithFields(log.Fields{
		logging.FieldCorrelationID: id,
		"productId":                env.ProductID(),
	}).Info("Received product event")

	ev, err := ValidateEvent(env)
	if err != nil {
		p.observe("invalid")
		var ve *ValidationError
		if errors.As(err, &ve) {
			p.logger.WithFields(log.Fields{
				logging.FieldCorrelationID: id,
				"errors":                   ve.Details,
			}).Warn("Invalid product event data")
		}
		return Result{CorrelationID: id}, err
	}
	return p.Process(ctx, ev, id)
}

// Process creates the order for a validated event. Redeliveries of an event
// that already produced an order return that order with Duplicate set.
func (p *Processor) Process(ctx context.Context, ev ProductEvent, correlationID string) (res Result, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "order.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("correlation.id", correlationID),
			attribute.String("product.id", ev.ProductID),
		),
	)
	defer span.End()

	res.CorrelationID = correlationID
	key := IdempotencyKey(ev, correlationID)
	now := p.now()
	order := NewOrder(p.newID(now), ev, correlationID, now)

	claimed := false
	defer func() {
		if r := recover(); r != nil {
			err = &ProcessingError{Stage: "panic", Err: fmt.Errorf("panic: %v", r), Stack: debug.Stack()}
		}
		if err != nil {
			if claimed {
				p.release(ctx, key, order.OrderID, correlationID)
			}
			p.fail(span, correlationID, err)
			res = Result{CorrelationID: correlationID}
		}
	}()

	owner, ok, claimErr := p.ledger.Claim(ctx, key, order.OrderID)
	if claimErr != nil {
		return res, &ProcessingError{Stage: "claim", Err: claimErr}
	}
	if !ok {
		return p.duplicate(ctx, span, owner, correlationID)
	}
	claimed = true

	if err := p.commit(ctx); err != nil {
		return res, &ProcessingError{Stage: "commit", Err: err}
	}
	if err := p.store.Save(ctx, order); err != nil {
		return res, &ProcessingError{Stage: "store", Err: err}
	}

	p.observe("created")
	span.SetAttributes(attribute.String("order.id", order.OrderID))
	span.SetStatus(codes.Ok, "")
	p.logger.WithFields(log.Fields{
		logging.FieldCorrelationID: correlationID,
		"orderId":                  order.OrderID,
		"productId":                order.ProductID,
		"total":                    order.Total,
	}).Info("Order created successfully")
	res.Order = order
	return res, nil
}

func (p *Processor) duplicate(ctx context.Context, span trace.Span, owner, correlationID string) (Result, error) {
	existing, err := p.store.Get(ctx, owner)
	if errors.Is(err, ErrOrderNotFound) {
		return Result{CorrelationID: correlationID}, &ProcessingError{Stage: "duplicate", Err: ErrClaimInFlight}
	}
	if err != nil {
		return Result{CorrelationID: correlationID}, &ProcessingError{Stage: "duplicate", Err: err}
	}
	p.observe("duplicate")
	span.SetAttributes(
		attribute.String("order.id", existing.OrderID),
		attribute.Bool("order.duplicate", true),
	)
	span.SetStatus(codes.Ok, "")
	p.logger.WithFields(log.Fields{
		logging.FieldCorrelationID: correlationID,
		"orderId":                  existing.OrderID,
		"productId":                existing.ProductID,
	}).Info("Duplicate product event, returning existing order")
	return Result{Order: existing, CorrelationID: correlationID, Duplicate: true}, nil
}

func (p *Processor) commit(ctx context.Context) error {
	if p.cfg.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.cfg.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *Processor) release(ctx context.Context, key, orderID, correlationID string) {
	if err := p.ledger.Release(context.WithoutCancel(ctx), key, orderID); err != nil {
		p.logger.WithFields(log.Fields{
			logging.FieldCorrelationID: correlationID,
			logging.FieldError:         err.Error(),
			"orderId":                  orderID,
		}).Error("Failed to release idempotency claim")
	}
}

func (p *Processor) fail(span trace.Span, correlationID string, err error) {
	p.observe("failed")
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	fields := log.Fields{
		logging.FieldCorrelationID: correlationID,
		logging.FieldError:         err.Error(),
	}
	var pe *ProcessingError
	if errors.As(err, &pe) && len(pe.Stack) > 0 {
		fields[logging.FieldStack] = string(pe.Stack)
	}
	p.logger.WithFields(fields).Error("Failed to process product event")
}

func (p *Processor) observe(outcome string) {
	if p.processed == nil {
		return
	}
	p.processed.WithLabelValues(outcome).Inc()
}
