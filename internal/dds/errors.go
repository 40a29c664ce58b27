package dds

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnsupportedAlgorithm marks a fingerprint algorithm outside the
// supported set. Callers that backfill fingerprints treat it as a silent
// skip, not a failure.
var ErrUnsupportedAlgorithm = errors.New("unsupported fingerprint algorithm")

// ErrNotFound marks a lookup for a record that does not exist.
var ErrNotFound = errors.New("record not found")

// ValidationError rejects a save with field-scoped messages. It never
// indicates a fault in the process; the caller fixes the input and retries.
type ValidationError struct {
	Fields map[string][]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string][]string)}
}

// Add appends a message for a field.
func (e *ValidationError) Add(field, message string) {
	e.Fields[field] = append(e.Fields[field], message)
}

// Any reports whether any field message has been recorded.
func (e *ValidationError) Any() bool { return len(e.Fields) > 0 }

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("validation failed:")
	for _, f := range fields {
		for _, m := range e.Fields[f] {
			fmt.Fprintf(&b, " %s: %s;", f, m)
		}
	}
	return strings.TrimSuffix(b.String(), ";")
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StorageUnavailableError signals that a storage backend itself is
// unreachable. It maps to a service-unavailable response at the API layer
// and is never confused with an upload-level validation failure. Retry
// policy belongs to the caller.
type StorageUnavailableError struct {
	Provider string // Provider name, when known
	Err      error
}

func (e *StorageUnavailableError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("storage provider unavailable: %v", e.Err)
	}
	return fmt.Sprintf("storage provider %s unavailable: %v", e.Provider, e.Err)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Err }

// IsStorageUnavailable reports whether err is (or wraps) a
// StorageUnavailableError.
func IsStorageUnavailable(err error) bool {
	var se *StorageUnavailableError
	return errors.As(err, &se)
}
