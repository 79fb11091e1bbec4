package store

import (
	"errors"
	"fmt"
)

// Kind classifies a store failure.
type Kind int

const (
	// KindOther covers network, constraint and any unclassified failure.
	KindOther Kind = iota
	// KindSchemaMissing means the entity's table does not exist.
	KindSchemaMissing
	// KindColumnMissing means a referenced field has no backing column.
	KindColumnMissing
)

func (k Kind) String() string {
	switch k {
	case KindSchemaMissing:
		return "schema_missing"
	case KindColumnMissing:
		return "column_missing"
	default:
		return "other"
	}
}

var (
	// ErrSchemaMissing matches any *Error of KindSchemaMissing.
	ErrSchemaMissing = errors.New("store: schema missing")
	// ErrColumnMissing matches any *Error of KindColumnMissing.
	ErrColumnMissing = errors.New("store: column missing")
	// ErrNotFound indicates the addressed record does not exist.
	ErrNotFound = errors.New("store: record not found")
)

// Error is the tagged failure produced by every backend.
type Error struct {
	Kind   Kind
	Entity Entity
	Op     string
	// Field is the domain field name for KindColumnMissing, when known.
	Field string
	Err   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("store: %s %s: %s", e.Op, e.Entity, e.Kind)
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrSchemaMissing:
		return e.Kind == KindSchemaMissing
	case ErrColumnMissing:
		return e.Kind == KindColumnMissing
	}
	return false
}

// KindOf reports the classification of err, KindOther when err is not a store error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindOther
}

// SchemaMissing builds a KindSchemaMissing error.
func SchemaMissing(op string, entity Entity, err error) error {
	return &Error{Kind: KindSchemaMissing, Entity: entity, Op: op, Err: err}
}

// ColumnMissing builds a KindColumnMissing error.
func ColumnMissing(op string, entity Entity, field string, err error) error {
	return &Error{Kind: KindColumnMissing, Entity: entity, Op: op, Field: field, Err: err}
}

// Other wraps an unclassified failure.
func Other(op string, entity Entity, err error) error {
	return &Error{Kind: KindOther, Entity: entity, Op: op, Err: err}
}
