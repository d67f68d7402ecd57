package domain

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	msgProductID    = "Product ID is required and must be a non-empty string"
	msgProductName  = "Product name is required and must be a non-empty string"
	msgProductPrice = "Product price is required and must be a positive number"
)

// CreateProductRequest is the loosely typed body of POST /api/products. Fields
// are decoded as any so that a value of the wrong JSON type is reported as a
// violation rather than failing the decode.
type CreateProductRequest struct {
	ID        any `json:"id"`
	SubjectID any `json:"subjectId,omitempty"`
	Name      any `json:"name"`
	Price     any `json:"price"`
}

// ValidationError lists every violation found in a payload.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Details, "; ")
}

// ValidateCreateProduct checks every field of req and either returns the
// normalized product or a *ValidationError carrying one message per bad field.
func ValidateCreateProduct(req CreateProductRequest) (Product, error) {
	if req.ID == nil {
		req.ID = req.SubjectID
	}
	err := validation.ValidateStruct(&req,
		validation.Field(&req.ID, validation.Required.Error(msgProductID), validation.By(nonBlankString(msgProductID))),
		validation.Field(&req.Name, validation.Required.Error(msgProductName), validation.By(nonBlankString(msgProductName))),
		validation.Field(&req.Price, validation.Required.Error(msgProductPrice), validation.By(positiveNumber(msgProductPrice))),
	)
	if err != nil {
		return Product{}, toValidationError(err, "id", "name", "price")
	}
	return Product{
		ID:    strings.TrimSpace(req.ID.(string)),
		Name:  strings.TrimSpace(req.Name.(string)),
		Price: req.Price.(float64),
	}, nil
}

func nonBlankString(msg string) validation.RuleFunc {
	return func(value any) error {
		s, ok := value.(string)
		if !ok || strings.TrimSpace(s) == "" {
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

// toValidationError flattens ozzo's field map in a stable field order.
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
