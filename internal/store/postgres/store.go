// Package postgres implements the record store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/billdesk/internal/store"
)

const (
	codeUndefinedTable  = "42P01"
	codeUndefinedColumn = "42703"
)

// Querier is the subset of pgxpool.Pool used by the store.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store persists records into one table per entity.
type Store struct {
	db Querier
}

// New constructs a Postgres-backed store.
func New(db Querier) *Store {
	return &Store{db: db}
}

var _ store.Store = (*Store)(nil)

// Get returns every row of the entity's table.
func (s *Store) Get(ctx context.Context, entity store.Entity) ([]store.Record, error) {
	if !entity.Valid() {
		return nil, store.Other("get", entity, fmt.Errorf("unknown entity %q", entity))
	}
	rows, err := s.db.Query(ctx, "SELECT * FROM "+table(entity))
	if err != nil {
		return nil, classify("get", entity, nil, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []store.Record
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, classify("get", entity, nil, err)
		}
		rec := make(store.Record, len(fields))
		for i, fd := range fields {
			rec[store.Field(fd.Name)] = normalize(values[i])
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("get", entity, nil, err)
	}
	return out, nil
}

// Insert writes one record.
func (s *Store) Insert(ctx context.Context, entity store.Entity, record store.Record) error {
	if !entity.Valid() {
		return store.Other("insert", entity, fmt.Errorf("unknown entity %q", entity))
	}
	if len(record) == 0 {
		return store.Other("insert", entity, errors.New("empty record"))
	}
	keys := record.Fields()
	cols := make([]string, len(keys))
	params := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		cols[i] = ident(store.Column(k))
		params[i] = fmt.Sprintf("$%d", i+1)
		args[i] = record[k]
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table(entity), strings.Join(cols, ", "), strings.Join(params, ", "))
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return classify("insert", entity, keys, err)
	}
	return nil
}

// Update applies a partial update to the row identified by id.
func (s *Store) Update(ctx context.Context, entity store.Entity, id string, fields store.Record) error {
	if !entity.Valid() {
		return store.Other("update", entity, fmt.Errorf("unknown entity %q", entity))
	}
	if len(fields) == 0 {
		return nil
	}
	keys := fields.Fields()
	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		if k == "id" {
			continue
		}
		args = append(args, fields[k])
		sets = append(sets, fmt.Sprintf("%s = $%d", ident(store.Column(k)), len(args)))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table(entity), strings.Join(sets, ", "), len(args))
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return classify("update", entity, keys, err)
	}
	if tag.RowsAffected() == 0 {
		return store.Other("update", entity, store.ErrNotFound)
	}
	return nil
}

// Delete removes the row identified by id.
func (s *Store) Delete(ctx context.Context, entity store.Entity, id string) error {
	if !entity.Valid() {
		return store.Other("delete", entity, fmt.Errorf("unknown entity %q", entity))
	}
	tag, err := s.db.Exec(ctx, "DELETE FROM "+table(entity)+" WHERE id = $1", id)
	if err != nil {
		return classify("delete", entity, nil, err)
	}
	if tag.RowsAffected() == 0 {
		return store.Other("delete", entity, store.ErrNotFound)
	}
	return nil
}

func table(entity store.Entity) string {
	return ident(entity.Table())
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// classify converts driver failures into tagged store errors using the SQLSTATE code.
func classify(op string, entity store.Entity, fields []string, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return store.Other(op, entity, err)
	}
	switch pgErr.Code {
	case codeUndefinedTable:
		return store.SchemaMissing(op, entity, err)
	case codeUndefinedColumn:
		return store.ColumnMissing(op, entity, missingField(pgErr, fields), err)
	default:
		return store.Other(op, entity, err)
	}
}

func missingField(pgErr *pgconn.PgError, fields []string) string {
	if pgErr.ColumnName != "" {
		return store.Field(pgErr.ColumnName)
	}
	for _, f := range fields {
		if strings.Contains(pgErr.Message, `"`+store.Column(f)+`"`) {
			return f
		}
	}
	if len(fields) == 1 {
		return fields[0]
	}
	return ""
}

// normalize converts pgx wire types into plain Go values the domain decoders expect.
func normalize(v any) any {
	switch val := v.(type) {
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		raw, err := val.Value()
		if err != nil {
			return nil
		}
		s, ok := raw.(string)
		if !ok {
			return nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil
		}
		return d
	case [16]byte:
		return uuid.UUID(val).String()
	default:
		return v
	}
}
