package domain

import (
	"errors"
	"sort"
	"strings"
)

// Sentinel errors shared across the pipeline. Infrastructure errors are
// wrapped with %w so handlers can classify them with errors.Is.
var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrStoreUnavailable    = errors.New("transaction store unavailable")
	ErrQueueUnavailable    = errors.New("work queue unavailable")
	ErrProcessingTimeout   = errors.New("processing timed out")
	ErrProcessingFailed    = errors.New("processing failed")
	ErrProcessorNotFound   = errors.New("processor not found")
)

// ValidationError reports a malformed webhook payload, keyed by field name.
type ValidationError struct {
	Fields map[string]string
}

// Add records a problem for field. The first message per field wins.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

// HasErrors reports whether any field failed validation.
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// IsValidationError reports whether err carries a *ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
