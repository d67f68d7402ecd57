package publish

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/RosanaConstantin/cna-introspect/product-service/domain"
)

type fakeSubstrate struct {
	mu     sync.Mutex
	errs   []error
	calls  int
	topics []string
	events []domain.ProductEvent
	ids    []string
}

func (f *fakeSubstrate) Publish(ctx context.Context, topic string, ev domain.ProductEvent, correlationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	f.topics = append(f.topics, topic)
	f.events = append(f.events, ev)
	f.ids = append(f.ids, correlationID)
	if idx < len(f.errs) {
		return f.errs[idx]
	}
	return nil
}

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown tracer provider: %v", err)
		}
		otel.SetTracerProvider(prev)
	})
	return exporter
}

func newTestPublisher(t *testing.T, sub Substrate, reg prometheus.Registerer) (*Publisher, *sleepRecorder) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	p := NewPublisher(sub, "product-events", DefaultRetry(), logger, reg)
	rec := &sleepRecorder{}
	p.sleep = rec.sleep
	return p, rec
}

var sampleEvent = domain.ProductEvent{
	ProductID:     "p1",
	Name:          "Widget",
	Price:         9.99,
	Timestamp:     "2024-01-01T00:00:00.000Z",
	CorrelationID: "abc",
}

func TestPublisherSendsSameEventOnEveryAttempt(t *testing.T) {
	sub := &fakeSubstrate{errs: []error{errors.New("a"), errors.New("b")}}
	reg := prometheus.NewRegistry()
	p, rec := newTestPublisher(t, sub, reg)

	ack, err := p.Publish(context.Background(), sampleEvent, "abc")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if ack.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", ack.Attempts)
	}
	for i, ev := range sub.events {
		if ev != sampleEvent {
			t.Fatalf("attempt %d sent a different event: %#v", i+1, ev)
		}
		if sub.topics[i] != "product-events" || sub.ids[i] != "abc" {
			t.Fatalf("attempt %d: unexpected topic/id %s/%s", i+1, sub.topics[i], sub.ids[i])
		}
	}
	if len(rec.delays) != 2 || rec.delays[0] != time.Second || rec.delays[1] != 2*time.Second {
		t.Fatalf("unexpected delays %v", rec.delays)
	}
	if got := testutil.ToFloat64(p.attempts.WithLabelValues("failure")); got != 2 {
		t.Fatalf("expected 2 failed attempts counted, got %v", got)
	}
	if got := testutil.ToFloat64(p.attempts.WithLabelValues("success")); got != 1 {
		t.Fatalf("expected 1 successful attempt counted, got %v", got)
	}
}

func TestPublisherPropagatesFinalError(t *testing.T) {
	final := &StatusError{StatusCode: 500, Body: "boom"}
	sub := &fakeSubstrate{errs: []error{errors.New("a"), errors.New("b"), final}}
	p, _ := newTestPublisher(t, sub, nil)

	ack, err := p.Publish(context.Background(), sampleEvent, "abc")
	if err != error(final) {
		t.Fatalf("expected final error to be returned unchanged, got %v", err)
	}
	if ack.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", ack.Attempts)
	}
}

func TestPublisherRecordsSpan(t *testing.T) {
	exporter := setupTestTracer(t)
	sub := &fakeSubstrate{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	p, _ := newTestPublisher(t, sub, nil)

	if _, err := p.Publish(context.Background(), sampleEvent, "abc"); err == nil {
		t.Fatal("expected error")
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "product.publish" {
		t.Fatalf("unexpected span name %q", span.Name)
	}
	if span.Status.Code != codes.Error {
		t.Fatalf("expected error status, got %v", span.Status.Code)
	}
	failed := 0
	for _, ev := range span.Events {
		if ev.Name == "publish.attempt_failed" {
			failed++
		}
	}
	if failed != 3 {
		t.Fatalf("expected 3 failed-attempt events, got %d", failed)
	}
}

func TestNewPublisherRequiresSubstrate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	logger, _ := test.NewNullLogger()
	NewPublisher(nil, "t", DefaultRetry(), logger, nil)
}
