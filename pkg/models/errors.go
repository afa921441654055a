package models

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError is a structural problem with one input field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is every violation found in one input
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for i := range e {
		msgs = append(msgs, e[i].Error())
	}
	return fmt.Sprintf("%d validation error(s): %s", len(e), strings.Join(msgs, "; "))
}

// AmbiguousDuplicateError marks a duplicate group that cannot be merged automatically
type AmbiguousDuplicateError struct {
	Kind   EntityKind
	Name   string
	Reason string
}

func (e *AmbiguousDuplicateError) Error() string {
	return fmt.Sprintf("ambiguous %s duplicates for %q: %s", e.Kind, e.Name, e.Reason)
}

// ExternalServiceError is a failed or throttled identity lookup
type ExternalServiceError struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *ExternalServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s returned status %d: %v", e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// TransactionError is a write or merge transaction that was rolled back
type TransactionError struct {
	Operation string
	Unit      string
	Err       error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s failed for %s: %v", e.Operation, e.Unit, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err carries validation violations
func IsValidationError(err error) bool {
	var ve *ValidationError
	var ves ValidationErrors
	return errors.As(err, &ve) || errors.As(err, &ves)
}

// IsTransactionError reports whether err is a rolled back transaction
func IsTransactionError(err error) bool {
	var te *TransactionError
	return errors.As(err, &te)
}
