package ar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/billdesk/internal/store"
)

func TestEncodeOmitsNilReminderDate(t *testing.T) {
	inv := testInvoice("a", "INV-1000", Day(testNow), "10")
	rec, err := EncodeInvoice(inv)
	require.NoError(t, err)
	require.NotContains(t, rec, FieldLastReminderSent)

	sent := Day(testNow)
	inv.LastReminderSent = &sent
	rec, err = EncodeInvoice(inv)
	require.NoError(t, err)
	require.Equal(t, "2024-05-10", rec[FieldLastReminderSent])
}

func TestDecodeRecomputesDerivedFields(t *testing.T) {
	rec := store.Record{
		FieldID:         "x",
		FieldNumber:     "INV-1010",
		FieldItems:      `[{"description":"Panel","quantity":"2.5","unitPrice":"4"}]`,
		FieldTaxRate:    float64(23),
		FieldTotal:      "999",
		FieldAmountPaid: "5",
		FieldDueDate:    time.Date(2024, 5, 12, 0, 0, 0, 0, time.UTC),
		FieldDateIssued: "2024-04-12T00:00:00Z",
	}
	inv, err := DecodeInvoice(rec, time.UTC)
	require.NoError(t, err)
	requireAmount(t, "10.00", inv.Subtotal)
	requireAmount(t, "2.30", inv.TaxAmount)
	requireAmount(t, "12.30", inv.Total)
	requireAmount(t, "7.30", inv.BalanceDue)
	require.Equal(t, StatusPartiallyPaid, inv.Status)
	require.Equal(t, "2024-04-12", FormatDate(inv.DateIssued))
	require.Nil(t, inv.LastReminderSent)
}

func TestDecodeLegacyRowWithoutItems(t *testing.T) {
	rec := store.Record{
		FieldID:         "legacy",
		FieldTotal:      dec("80"),
		FieldSubtotal:   dec("80"),
		FieldAmountPaid: dec("120"),
		FieldDueDate:    "2024-01-01",
	}
	inv, err := DecodeInvoice(rec, time.UTC)
	require.NoError(t, err)
	requireAmount(t, "80.00", inv.AmountPaid)
	require.Equal(t, StatusPaid, inv.Status)
}

func TestDecodeRejectsBadRecords(t *testing.T) {
	_, err := DecodeInvoice(store.Record{FieldNumber: "INV-1"}, time.UTC)
	require.Error(t, err)

	_, err = DecodeInvoice(store.Record{FieldID: "a", FieldDueDate: "soon"}, time.UTC)
	require.Error(t, err)
}
