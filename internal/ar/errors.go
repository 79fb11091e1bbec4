package ar

import (
	"fmt"

	"github.com/odyssey-erp/billdesk/internal/platform/httpx"
)

// ErrInvoiceNotFound indicates the invoice is not in the working set.
var ErrInvoiceNotFound = fmt.Errorf("ar: invoice %w", httpx.ErrNotFound)

// ErrValidation is matched by every ValidationError.
var ErrValidation = httpx.ErrValidation

// ValidationError reports invalid input; nothing was changed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "ar: " + e.Message
	}
	return fmt.Sprintf("ar: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
