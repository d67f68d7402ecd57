package publish

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/otel/propagation"

	"github.com/RosanaConstantin/cna-introspect/internal/correlation"
	"github.com/RosanaConstantin/cna-introspect/product-service/domain"
)

const maxErrorBody = 4 * 1024

// DaprClient publishes through the sidecar's HTTP publish API.
type DaprClient struct {
	baseURL    string
	pubsubName string
	http       *http.Client
}

// NewDaprClient targets the sidecar listening on baseURL (for example
// http://localhost:3500). timeout is a transport-level ceiling on each call.
func NewDaprClient(baseURL, pubsubName string, timeout time.Duration) *DaprClient {
	return &DaprClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		pubsubName: pubsubName,
		http:       &http.Client{Timeout: timeout},
	}
}

// Publish posts ev to topic. Transport errors are wrapped so the underlying
// syscall error (e.g. ECONNREFUSED) stays inspectable with errors.Is.
func (d *DaprClient) Publish(ctx context.Context, topic string, ev domain.ProductEvent, correlationID string) error {
	body, err := sonic.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	target := fmt.Sprintf("%s/v1.0/publish/%s/%s", d.baseURL, url.PathEscape(d.pubsubName), url.PathEscape(topic))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	correlation.SetHeader(req.Header, correlationID)
	propagation.TraceContext{}.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", d.pubsubName, topic, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
