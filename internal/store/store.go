// Package store defines the record store contract shared by every backend.
//
// Records are keyed by domain field names (camelCase). Backends translate them to
// snake_case columns at their own boundary and report failures as *Error values so
// callers never need to inspect driver error text.
package store

import (
	"context"
	"sort"
)

// Entity names a table-backed collection.
type Entity string

const (
	EntityProduct  Entity = "products"
	EntityInvoice  Entity = "invoices"
	EntityUser     Entity = "users"
	EntityCustomer Entity = "customers"
	EntityJob      Entity = "jobs"
	EntityQuote    Entity = "quotes"
)

// Entities lists every entity the adapter serves.
var Entities = []Entity{EntityProduct, EntityInvoice, EntityUser, EntityCustomer, EntityJob, EntityQuote}

// Table returns the backing table name.
func (e Entity) Table() string {
	return string(e)
}

// Valid reports whether e is a known entity.
func (e Entity) Valid() bool {
	for _, known := range Entities {
		if e == known {
			return true
		}
	}
	return false
}

// Record is one row expressed with domain field names.
type Record map[string]any

// ID returns the record's "id" field as a string.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Fields returns the record keys in sorted order.
func (r Record) Fields() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Store is the generic persistence port.
//
// Get fails with ErrSchemaMissing when the entity's table is absent. Update applies
// a partial field update and fails with ErrColumnMissing when a field has no column.
type Store interface {
	Get(ctx context.Context, entity Entity) ([]Record, error)
	Insert(ctx context.Context, entity Entity, record Record) error
	Update(ctx context.Context, entity Entity, id string, fields Record) error
	Delete(ctx context.Context, entity Entity, id string) error
}
