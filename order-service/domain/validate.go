package domain

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	msgEventData    = "Event data is required"
	msgProductID    = "Product ID is required and must be a string"
	msgProductName  = "Product name is required and must be a string"
	msgProductPrice = "Product price is required and must be a positive number"
)

// ValidationError lists every violation found in an event.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return "invalid event: " + strings.Join(e.Details, "; ")
}

type rawEvent struct {
	ProductID any
	Name      any
	Price     any
}

// ValidateEvent checks the payload of env without trusting the publisher.
// Strings are taken as delivered; only emptiness is rejected.
func ValidateEvent(env Envelope) (ProductEvent, error) {
	if isAbsent(env.Data) {
		return ProductEvent{}, &ValidationError{Details: []string{msgEventData}}
	}
	fields, _ := env.Data.(map[string]any)
	raw := rawEvent{
		ProductID: fields["productId"],
		Name:      fields["name"],
		Price:     fields["price"],
	}
	err := validation.ValidateStruct(&raw,
		validation.Field(&raw.ProductID, validation.Required.Error(msgProductID), validation.By(isString(msgProductID))),
		validation.Field(&raw.Name, validation.Required.Error(msgProductName), validation.By(isString(msgProductName))),
		validation.Field(&raw.Price, validation.By(positiveNumber(msgProductPrice))),
	)
	if err != nil {
		return ProductEvent{}, toValidationError(err, "ProductID", "Name", "Price")
	}
	ts, _ := fields["timestamp"].(string)
	corr, _ := fields["correlationId"].(string)
	return ProductEvent{
		ProductID:     raw.ProductID.(string),
		Name:          raw.Name.(string),
		Price:         raw.Price.(float64),
		Timestamp:     ts,
		CorrelationID: corr,
	}, nil
}

// isAbsent reports the payloads that carry no event at all.
func isAbsent(data any) bool {
	switch v := data.(type) {
	case nil:
		return true
	case bool:
		return !v
	case string:
		return v == ""
	case float64:
		return v == 0
	}
	return false
}

func isString(msg string) validation.RuleFunc {
	return func(value any) error {
		if s, ok := value.(string); !ok || s == "" {
			return errors.New(msg)
		}
		return nil
	}
}

func positiveNumber(msg string) validation.RuleFunc {
	return func(value any) error {
		f, ok := value.(float64)
		if !ok || f <= 0 {
			return errors.New(msg)
		}
		return nil
	}
}

func toValidationError(err error, order ...string) error {
	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	details := make([]string, 0, len(fieldErrs))
	for _, field := range order {
		if fe, ok := fieldErrs[field]; ok && fe != nil {
			details = append(details, fe.Error())
		}
	}
	return &ValidationError{Details: details}
}
