package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestColumnFieldMapping(t *testing.T) {
	cases := map[string]string{
		"id":               "id",
		"invoiceNumber":    "invoice_number",
		"lastReminderSent": "last_reminder_sent",
		"customerEmail":    "customer_email",
		"taxRate":          "tax_rate",
	}
	for field, column := range cases {
		require.Equal(t, column, Column(field))
		require.Equal(t, field, Field(column))
	}
}

func TestRecordTranslationRoundTrip(t *testing.T) {
	rec := Record{"id": "a", "amountPaid": 12.5, "dueDate": "2024-05-01"}
	cols := ToColumns(rec)
	require.Equal(t, map[string]any{"id": "a", "amount_paid": 12.5, "due_date": "2024-05-01"}, cols)
	require.Equal(t, rec, FromColumns(cols))
	require.Equal(t, []string{"amountPaid", "dueDate", "id"}, rec.Fields())
	require.Equal(t, "a", rec.ID())
}

func TestErrorKinds(t *testing.T) {
	schema := SchemaMissing("get", EntityInvoice, errors.New("relation does not exist"))
	column := ColumnMissing("update", EntityInvoice, "lastReminderSent", nil)
	other := Other("delete", EntityInvoice, ErrNotFound)

	require.ErrorIs(t, schema, ErrSchemaMissing)
	require.NotErrorIs(t, schema, ErrColumnMissing)
	require.ErrorIs(t, fmt.Errorf("wrapped: %w", column), ErrColumnMissing)
	require.ErrorIs(t, other, ErrNotFound)
	require.NotErrorIs(t, other, ErrSchemaMissing)

	require.Equal(t, KindSchemaMissing, KindOf(schema))
	require.Equal(t, KindColumnMissing, KindOf(column))
	require.Equal(t, KindOther, KindOf(errors.New("boom")))
	require.Contains(t, column.Error(), "lastReminderSent")
}

func TestEntityValid(t *testing.T) {
	require.True(t, EntityInvoice.Valid())
	require.False(t, Entity("ledgers").Valid())
	require.Equal(t, "customers", EntityCustomer.Table())
}
