package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrorEntry is one collected failure scoped to a record or duplicate
type ErrorEntry struct {
	Scope   string    `json:"scope"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
	err     error
}

// Err returns the original error when the entry was collected from one
func (e ErrorEntry) Err() error {
	return e.err
}

// Collector accumulates errors and warnings for one operation.
// It is owned by a single run and returned with its result.
type Collector struct {
	Errors   []ErrorEntry `json:"errors"`
	Warnings []string     `json:"warnings"`
	now      func() time.Time
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{
		Errors:   []ErrorEntry{},
		Warnings: []string{},
		now:      time.Now,
	}
}

// AddError records err against scope
func (c *Collector) AddError(scope string, err error) {
	now := c.now
	if now == nil {
		now = time.Now
	}
	c.Errors = append(c.Errors, ErrorEntry{
		Scope:   scope,
		Kind:    errorKind(err),
		Message: err.Error(),
		At:      now().UTC(),
		err:     err,
	})
}

// Warnf records a non-fatal condition
func (c *Collector) Warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors reports whether anything failed
func (c *Collector) HasErrors() bool {
	return len(c.Errors) > 0
}

// HasKind reports whether an error of the given taxonomy kind was collected
func (c *Collector) HasKind(kind string) bool {
	for _, e := range c.Errors {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

const (
	ErrorKindValidation  = "validation"
	ErrorKindAmbiguous   = "ambiguous_duplicate"
	ErrorKindExternal    = "external_service"
	ErrorKindTransaction = "transaction"
	ErrorKindOther       = "other"
)

func errorKind(err error) string {
	var amb *AmbiguousDuplicateError
	var ext *ExternalServiceError
	switch {
	case IsValidationError(err):
		return ErrorKindValidation
	case errors.As(err, &amb):
		return ErrorKindAmbiguous
	case errors.As(err, &ext):
		return ErrorKindExternal
	case IsTransactionError(err):
		return ErrorKindTransaction
	}
	return ErrorKindOther
}
