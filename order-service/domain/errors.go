package domain

import (
	"errors"
	"fmt"
)

// ErrOrderNotFound is returned by stores when no order has the requested id.
var ErrOrderNotFound = errors.New("order not found")

// ErrClaimInFlight means an identical event is being processed by another
// delivery that has not stored its order yet.
var ErrClaimInFlight = errors.New("identical event is still being processed")

// ProcessingError reports a failure after the event passed validation. The
// delivery should be retried.
type ProcessingError struct {
	Stage string
	Err   error
	Stack []byte
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("process event (%s): %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }
