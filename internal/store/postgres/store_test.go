package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/billdesk/internal/store"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestGetTranslatesColumns(t *testing.T) {
	mock := newMock(t)
	rows := pgxmock.NewRows([]string{"id", "invoice_number", "last_reminder_sent"}).
		AddRow("inv-1", "INV-1000", nil)
	mock.ExpectQuery(`SELECT * FROM "invoices"`).WillReturnRows(rows)

	recs, err := New(mock).Get(context.Background(), store.EntityInvoice)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "INV-1000", recs[0]["invoiceNumber"])
	require.Contains(t, recs[0], "lastReminderSent")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingTable(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`SELECT * FROM "quotes"`).
		WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "quotes" does not exist`})

	_, err := New(mock).Get(context.Background(), store.EntityQuote)
	require.ErrorIs(t, err, store.ErrSchemaMissing)
}

func TestUpdateBuildsPartialSet(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`UPDATE "invoices" SET "amount_paid" = $1, "status" = $2 WHERE id = $3`).
		WithArgs(40.0, "PARTIALLY_PAID", "inv-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := New(mock).Update(context.Background(), store.EntityInvoice, "inv-1", store.Record{
		"status":     "PARTIALLY_PAID",
		"amountPaid": 40.0,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMissingColumn(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`UPDATE "invoices" SET "last_reminder_sent" = $1 WHERE id = $2`).
		WithArgs("2024-05-01", "inv-1").
		WillReturnError(&pgconn.PgError{
			Code:    "42703",
			Message: `column "last_reminder_sent" of relation "invoices" does not exist`,
		})

	err := New(mock).Update(context.Background(), store.EntityInvoice, "inv-1", store.Record{"lastReminderSent": "2024-05-01"})
	require.ErrorIs(t, err, store.ErrColumnMissing)

	var se *store.Error
	require.True(t, errors.As(err, &se))
	require.Equal(t, "lastReminderSent", se.Field)
}

func TestUpdateNoRows(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`UPDATE "customers" SET "name" = $1 WHERE id = $2`).
		WithArgs("Ana", "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := New(mock).Update(context.Background(), store.EntityCustomer, "missing", store.Record{"name": "Ana"})
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Equal(t, store.KindOther, store.KindOf(err))
}

func TestInsertOrdersColumns(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`INSERT INTO "customers" ("email", "id", "name") VALUES ($1, $2, $3)`).
		WithArgs("ana@example.com", "c-1", "Ana").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := New(mock).Insert(context.Background(), store.EntityCustomer, store.Record{
		"id": "c-1", "name": "Ana", "email": "ana@example.com",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteGenericFailure(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`DELETE FROM "invoices" WHERE id = $1`).
		WithArgs("inv-1").
		WillReturnError(&pgconn.PgError{Code: "23503", Message: "violates foreign key constraint"})

	err := New(mock).Delete(context.Background(), store.EntityInvoice, "inv-1")
	require.Error(t, err)
	require.Equal(t, store.KindOther, store.KindOf(err))
}

func TestUnknownEntity(t *testing.T) {
	_, err := New(newMock(t)).Get(context.Background(), store.Entity("ledgers"))
	require.Error(t, err)
}
