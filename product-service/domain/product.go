package domain

import "time"

// TimestampLayout matches the millisecond ISO-8601 form consumers expect.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Product is the validated result of a creation request.
type Product struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// ProductEvent is published once per created product. It is built before the
// first publish attempt and every retry sends the same value.
type ProductEvent struct {
	ProductID     string  `json:"productId"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Timestamp     string  `json:"timestamp"`
	CorrelationID string  `json:"correlationId"`
}

// NewProductEvent announces p on behalf of the operation identified by correlationID.
func NewProductEvent(p Product, correlationID string, now time.Time) ProductEvent {
	return ProductEvent{
		ProductID:     p.ID,
		Name:          p.Name,
		Price:         p.Price,
		Timestamp:     now.UTC().Format(TimestampLayout),
		CorrelationID: correlationID,
	}
}
