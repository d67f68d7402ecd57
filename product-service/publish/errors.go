package publish

import (
	"context"
	"errors"
	"fmt"
	"syscall"
)

// Outcome classifies a failed publish for the HTTP layer.
type Outcome int

const (
	// DeliveryFailed covers every failure that is not a refused connection.
	DeliveryFailed Outcome = iota
	// SubstrateUnavailable means the sidecar or broker refused the connection.
	SubstrateUnavailable
	// Cancelled means the caller went away before delivery finished.
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case SubstrateUnavailable:
		return "substrate_unavailable"
	case Cancelled:
		return "cancelled"
	default:
		return "delivery_failed"
	}
}

// Classify maps a publish error to its outcome.
func Classify(err error) Outcome {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return SubstrateUnavailable
	case errors.Is(err, context.Canceled):
		return Cancelled
	default:
		return DeliveryFailed
	}
}

// StatusError is returned when the substrate answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("publish rejected with status %d", e.StatusCode)
	}
	return fmt.Sprintf("publish rejected with status %d: %s", e.StatusCode, e.Body)
}
