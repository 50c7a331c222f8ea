package reconcile

import (
	"errors"
	"fmt"
)

// ValidationError rejects one row. It is recorded in the report and never
// aborts the batch.
type ValidationError struct {
	Row    int
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
	}
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Reason)
}

// ParseError is returned when the payload cannot be decoded into rows.
type ParseError struct {
	Err error
}

func (e ParseError) Error() string { return "parse payload: " + e.Err.Error() }

func (e ParseError) Unwrap() error { return e.Err }

// PersistenceError is returned when the batch write was rejected after
// classification succeeded.
type PersistenceError struct {
	BatchID string
	Err     error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("persist batch %s: %v", e.BatchID, e.Err)
}

func (e PersistenceError) Unwrap() error { return e.Err }

// IsPersistenceError reports whether err carries a PersistenceError.
func IsPersistenceError(err error) bool {
	var pe PersistenceError
	return errors.As(err, &pe)
}
