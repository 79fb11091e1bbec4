// Package memory provides an in-process record store used for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/odyssey-erp/billdesk/internal/store"
)

// Op names a store operation for failure injection.
type Op string

const (
	OpGet    Op = "get"
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

type failKey struct {
	op     Op
	entity store.Entity
}

// Store keeps records per entity in insertion order.
type Store struct {
	mu             sync.Mutex
	tables         map[store.Entity][]store.Record
	missingTables  map[store.Entity]bool
	missingColumns map[store.Entity]map[string]bool
	failures       map[failKey][]error
	updates        int
}

// New returns an empty store with every entity table present.
func New() *Store {
	return &Store{
		tables:         make(map[store.Entity][]store.Record),
		missingTables:  make(map[store.Entity]bool),
		missingColumns: make(map[store.Entity]map[string]bool),
		failures:       make(map[failKey][]error),
	}
}

var _ store.Store = (*Store)(nil)

// Seed appends records without going through Insert.
func (s *Store) Seed(entity store.Entity, records ...store.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.tables[entity] = append(s.tables[entity], r.Clone())
	}
}

// DropTable makes every operation on entity report a missing schema.
func (s *Store) DropTable(entity store.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missingTables[entity] = true
}

// DropColumn makes writes touching field report a missing column.
func (s *Store) DropColumn(entity store.Entity, field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cols, ok := s.missingColumns[entity]
	if !ok {
		cols = make(map[string]bool)
		s.missingColumns[entity] = cols
	}
	cols[field] = true
	for _, r := range s.tables[entity] {
		delete(r, field)
	}
}

// FailNext queues err as the result of the next op on entity.
func (s *Store) FailNext(op Op, entity store.Entity, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := failKey{op: op, entity: entity}
	s.failures[k] = append(s.failures[k], err)
}

// Updates reports how many Update calls reached the store.
func (s *Store) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

// Get returns copies of every record of entity.
func (s *Store) Get(_ context.Context, entity store.Entity) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpGet, entity, nil); err != nil {
		return nil, err
	}
	rows := s.tables[entity]
	out := make([]store.Record, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out, nil
}

// Insert appends a copy of record.
func (s *Store) Insert(_ context.Context, entity store.Entity, record store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpInsert, entity, record); err != nil {
		return err
	}
	if id := record.ID(); id != "" && s.index(entity, id) >= 0 {
		return store.Other(string(OpInsert), entity, fmt.Errorf("duplicate id %q", id))
	}
	s.tables[entity] = append(s.tables[entity], record.Clone())
	return nil
}

// Update merges fields into the record identified by id.
func (s *Store) Update(_ context.Context, entity store.Entity, id string, fields store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	if err := s.check(OpUpdate, entity, fields); err != nil {
		return err
	}
	idx := s.index(entity, id)
	if idx < 0 {
		return store.Other(string(OpUpdate), entity, store.ErrNotFound)
	}
	row := s.tables[entity][idx]
	for k, v := range fields {
		if k == "id" {
			continue
		}
		row[k] = v
	}
	return nil
}

// Delete removes the record identified by id.
func (s *Store) Delete(_ context.Context, entity store.Entity, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpDelete, entity, nil); err != nil {
		return err
	}
	idx := s.index(entity, id)
	if idx < 0 {
		return store.Other(string(OpDelete), entity, store.ErrNotFound)
	}
	rows := s.tables[entity]
	s.tables[entity] = append(rows[:idx:idx], rows[idx+1:]...)
	return nil
}

func (s *Store) check(op Op, entity store.Entity, fields store.Record) error {
	if !entity.Valid() {
		return store.Other(string(op), entity, fmt.Errorf("unknown entity %q", entity))
	}
	k := failKey{op: op, entity: entity}
	if queued := s.failures[k]; len(queued) > 0 {
		err := queued[0]
		s.failures[k] = queued[1:]
		return err
	}
	if s.missingTables[entity] {
		return store.SchemaMissing(string(op), entity, fmt.Errorf("relation %q does not exist", entity.Table()))
	}
	for _, f := range fields.Fields() {
		if s.missingColumns[entity][f] {
			return store.ColumnMissing(string(op), entity, f, fmt.Errorf("column %q does not exist", store.Column(f)))
		}
	}
	return nil
}

func (s *Store) index(entity store.Entity, id string) int {
	for i, r := range s.tables[entity] {
		if r.ID() == id {
			return i
		}
	}
	return -1
}
