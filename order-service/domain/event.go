// Package domain turns delivered product events into orders.
package domain

// Envelope is the delivery wrapper around a product event. Only Data is
// required; the metadata fields are informational.
type Envelope struct {
	ID              string `json:"id,omitempty"`
	Source          string `json:"source,omitempty"`
	Type            string `json:"type,omitempty"`
	SpecVersion     string `json:"specversion,omitempty"`
	DataContentType string `json:"datacontenttype,omitempty"`
	Topic           string `json:"topic,omitempty"`
	PubSubName      string `json:"pubsubname,omitempty"`
	CorrelationID   string `json:"correlationid,omitempty"`
	// Data stays untyped until validated so that a field of the wrong JSON
	// type is reported as a violation instead of failing the decode.
	Data any `json:"data"`
}

// ProductEvent is a validated product announcement.
type ProductEvent struct {
	ProductID     string
	Name          string
	Price         float64
	Timestamp     string
	CorrelationID string
}

// EmbeddedCorrelationID returns the correlation id carried inside the event
// payload, or "" when there is none.
func (e Envelope) EmbeddedCorrelationID() string {
	return stringField(e.Data, "correlationId")
}

// ProductID returns the raw product id for logging, or "" when absent.
func (e Envelope) ProductID() string {
	return stringField(e.Data, "productId")
}

func stringField(data any, key string) string {
	m, ok := data.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
