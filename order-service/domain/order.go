package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// TimestampLayout matches the millisecond ISO-8601 form used on the wire.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Order is derived from exactly one valid product event.
type Order struct {
	OrderID       string  `json:"orderId"`
	ProductID     string  `json:"productId"`
	ProductName   string  `json:"productName"`
	Price         float64 `json:"price"`
	Quantity      int     `json:"quantity"`
	Total         float64 `json:"total"`
	Timestamp     string  `json:"timestamp"`
	CorrelationID string  `json:"correlationId"`
}

// NewOrder builds the single-unit order for ev.
func NewOrder(orderID string, ev ProductEvent, correlationID string, now time.Time) Order {
	const quantity = 1
	return Order{
		OrderID:       orderID,
		ProductID:     ev.ProductID,
		ProductName:   ev.Name,
		Price:         ev.Price,
		Quantity:      quantity,
		Total:         ev.Price * quantity,
		Timestamp:     now.UTC().Format(TimestampLayout),
		CorrelationID: correlationID,
	}
}

// NewOrderID returns "order-<unix millis>-<8 hex chars>".
func NewOrderID(now time.Time) string {
	id, err := newOrderID(now, rand.Reader)
	if err != nil {
		// crypto/rand does not fail on supported platforms.
		panic(err)
	}
	return id
}

func newOrderID(now time.Time, r io.Reader) (string, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return "", fmt.Errorf("order id entropy: %w", err)
	}
	return "order-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + hex.EncodeToString(b[:]), nil
}

// IdempotencyKey identifies a delivery of ev regardless of how many times the
// substrate redelivers it.
func IdempotencyKey(ev ProductEvent, correlationID string) string {
	d := xxhash.New()
	for _, part := range []string{
		ev.ProductID,
		ev.Name,
		strconv.FormatFloat(ev.Price, 'g', -1, 64),
		ev.Timestamp,
		correlationID,
	} {
		_, _ = d.WriteString(part)
		_, _ = d.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", d.Sum64())
}
