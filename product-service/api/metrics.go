package api

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/RosanaConstantin/cna-introspect/internal/logging"
)

type productRequestMetrics struct {
	logger          *log.Logger
	start           time.Time
	correlationID   string
	decodeDuration  time.Duration
	publishDuration time.Duration
	attempts        int
	errorStage      string
}

func newProductRequestMetrics(logger *log.Logger, correlationID string) *productRequestMetrics {
	return &productRequestMetrics{
		logger:        logger,
		start:         time.Now(),
		correlationID: correlationID,
	}
}

func (m *productRequestMetrics) ObserveDecode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.decodeDuration = duration
}

func (m *productRequestMetrics) ObservePublish(duration time.Duration, attempts int) {
	if duration > 0 {
		m.publishDuration = duration
	}
	if attempts > 0 {
		m.attempts = attempts
	}
}

func (m *productRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *productRequestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	fields := log.Fields{
		logging.FieldCorrelationID: m.correlationID,
		"route":                    productsRoute,
		"status":                   status,
		"total_ms":                 durationToMillis(time.Since(m.start)),
		"attempts":                 m.attempts,
	}
	if m.decodeDuration > 0 {
		fields["decode_ms"] = durationToMillis(m.decodeDuration)
	}
	if m.publishDuration > 0 {
		fields["publish_ms"] = durationToMillis(m.publishDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields[logging.FieldError] = err.Error()
	}

	m.logger.WithFields(fields).Info("products.request.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
