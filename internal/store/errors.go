package store

import (
	"errors"
	"fmt"

	"github.com/dvloznov/pocketbook/internal/domain"
)

var (
	// ErrUnknownField is returned for field names outside the canonical set.
	ErrUnknownField = domain.ErrUnknownField

	// ErrInvalidValue is returned when a value does not decode into its field.
	ErrInvalidValue = domain.ErrInvalidValue

	// ErrReservedField is returned when a generic setter targets the
	// transactions field, which only the transaction operations may change.
	ErrReservedField = errors.New("field is managed by the transaction operations")

	// ErrDuplicateID is returned when an inserted transaction reuses an id.
	ErrDuplicateID = errors.New("transaction id already exists")
)

// LocalIOError reports a failed read or write against the durable local
// store. It never blocks an in-memory mutation.
type LocalIOError struct {
	Op  string
	Key string
	Err error
}

func (e *LocalIOError) Error() string {
	return fmt.Sprintf("local store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *LocalIOError) Unwrap() error {
	return e.Err
}
