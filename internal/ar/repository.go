package ar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/billdesk/internal/store"
)

// Field names used when persisting invoices.
const (
	FieldID               = "id"
	FieldNumber           = "invoiceNumber"
	FieldCustomerID       = "customerId"
	FieldCustomerName     = "customerName"
	FieldCustomerEmail    = "customerEmail"
	FieldCustomerPhone    = "customerPhone"
	FieldCustomerAddress  = "customerAddress"
	FieldItems            = "items"
	FieldTaxRate          = "taxRate"
	FieldSubtotal         = "subtotal"
	FieldTaxAmount        = "taxAmount"
	FieldTotal            = "total"
	FieldAmountPaid       = "amountPaid"
	FieldBalanceDue       = "balanceDue"
	FieldStatus           = "status"
	FieldDateIssued       = "dateIssued"
	FieldDueDate          = "dueDate"
	FieldLastReminderSent = "lastReminderSent"
	FieldNotes            = "notes"
)

// Repository maps invoices onto the record store.
type Repository struct {
	store store.Store
	loc   *time.Location
}

// NewRepository constructs a repository; dates are interpreted in loc.
func NewRepository(st store.Store, loc *time.Location) *Repository {
	if loc == nil {
		loc = time.UTC
	}
	return &Repository{store: st, loc: loc}
}

// List loads every decodable invoice. Records that fail to decode are returned in skipped.
func (r *Repository) List(ctx context.Context) (invoices []Invoice, skipped []error, err error) {
	recs, err := r.store.Get(ctx, store.EntityInvoice)
	if err != nil {
		return nil, nil, err
	}
	invoices = make([]Invoice, 0, len(recs))
	for _, rec := range recs {
		inv, err := DecodeInvoice(rec, r.loc)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		invoices = append(invoices, inv)
	}
	return invoices, skipped, nil
}

// Insert persists a new invoice.
func (r *Repository) Insert(ctx context.Context, inv Invoice) error {
	rec, err := EncodeInvoice(inv)
	if err != nil {
		return err
	}
	return r.store.Insert(ctx, store.EntityInvoice, rec)
}

// Update applies a partial update.
func (r *Repository) Update(ctx context.Context, id string, fields store.Record) error {
	return r.store.Update(ctx, store.EntityInvoice, id, fields)
}

// Delete removes an invoice.
func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, store.EntityInvoice, id)
}

// EncodeInvoice converts an invoice into a store record. A nil lastReminderSent is omitted
// so inserts succeed against schemas that lack the column.
func EncodeInvoice(inv Invoice) (store.Record, error) {
	items, err := json.Marshal(inv.Items)
	if err != nil {
		return nil, fmt.Errorf("ar: encode items: %w", err)
	}
	rec := store.Record{
		FieldID:              inv.ID,
		FieldNumber:          inv.Number,
		FieldCustomerID:      inv.CustomerID,
		FieldCustomerName:    inv.Customer.Name,
		FieldCustomerEmail:   inv.Customer.Email,
		FieldCustomerPhone:   inv.Customer.Phone,
		FieldCustomerAddress: inv.Customer.Address,
		FieldItems:           json.RawMessage(items),
		FieldTaxRate:         inv.TaxRate,
		FieldSubtotal:        inv.Subtotal,
		FieldTaxAmount:       inv.TaxAmount,
		FieldTotal:           inv.Total,
		FieldAmountPaid:      inv.AmountPaid,
		FieldBalanceDue:      inv.BalanceDue,
		FieldStatus:          string(inv.Status),
		FieldDateIssued:      FormatDate(inv.DateIssued),
		FieldDueDate:         FormatDate(inv.DueDate),
		FieldNotes:           inv.Notes,
	}
	if inv.LastReminderSent != nil {
		rec[FieldLastReminderSent] = FormatDate(*inv.LastReminderSent)
	}
	return rec, nil
}

// DecodeInvoice builds an invoice from a store record. Derived amounts are recomputed
// from the items whenever items are present.
func DecodeInvoice(rec store.Record, loc *time.Location) (Invoice, error) {
	var inv Invoice
	inv.ID = asString(rec[FieldID])
	if inv.ID == "" {
		return inv, errors.New("ar: decode invoice: missing id")
	}
	wrap := func(field string, err error) error {
		return fmt.Errorf("ar: decode invoice %s: %s: %w", inv.ID, field, err)
	}
	inv.Number = asString(rec[FieldNumber])
	inv.CustomerID = asString(rec[FieldCustomerID])
	inv.Customer = CustomerSnapshot{
		Name:    asString(rec[FieldCustomerName]),
		Email:   asString(rec[FieldCustomerEmail]),
		Phone:   asString(rec[FieldCustomerPhone]),
		Address: asString(rec[FieldCustomerAddress]),
	}
	inv.Notes = asString(rec[FieldNotes])

	var err error
	if inv.Items, err = decodeItems(rec[FieldItems]); err != nil {
		return inv, wrap(FieldItems, err)
	}
	if inv.TaxRate, err = asDecimal(rec[FieldTaxRate]); err != nil {
		return inv, wrap(FieldTaxRate, err)
	}
	if inv.AmountPaid, err = asDecimal(rec[FieldAmountPaid]); err != nil {
		return inv, wrap(FieldAmountPaid, err)
	}
	if inv.DateIssued, err = asDate(rec[FieldDateIssued], loc); err != nil {
		return inv, wrap(FieldDateIssued, err)
	}
	if inv.DueDate, err = asDate(rec[FieldDueDate], loc); err != nil {
		return inv, wrap(FieldDueDate, err)
	}
	if raw := rec[FieldLastReminderSent]; raw != nil {
		d, err := asDate(raw, loc)
		if err != nil {
			return inv, wrap(FieldLastReminderSent, err)
		}
		if !d.IsZero() {
			inv.LastReminderSent = &d
		}
	}

	if len(inv.Items) > 0 {
		inv.Recalculate()
		return inv, nil
	}
	// Legacy rows without items keep their stored amounts.
	if inv.Subtotal, err = asDecimal(rec[FieldSubtotal]); err != nil {
		return inv, wrap(FieldSubtotal, err)
	}
	if inv.TaxAmount, err = asDecimal(rec[FieldTaxAmount]); err != nil {
		return inv, wrap(FieldTaxAmount, err)
	}
	if inv.Total, err = asDecimal(rec[FieldTotal]); err != nil {
		return inv, wrap(FieldTotal, err)
	}
	inv.settle()
	return inv, nil
}

func decodeItems(v any) ([]LineItem, error) {
	var raw []byte
	switch val := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		raw = val
	case []byte:
		raw = val
	case string:
		raw = []byte(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var items []LineItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func asString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func asDecimal(v any) (decimal.Decimal, error) {
	switch val := v.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return val, nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return decimal.Zero, fmt.Errorf("not a finite number: %v", val)
		}
		return decimal.NewFromFloat(val), nil
	case float32:
		return decimal.NewFromFloat32(val), nil
	case int:
		return decimal.NewFromInt(int64(val)), nil
	case int32:
		return decimal.NewFromInt32(val), nil
	case int64:
		return decimal.NewFromInt(val), nil
	case json.Number:
		return decimal.NewFromString(val.String())
	case string:
		if strings.TrimSpace(val) == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(val)
	default:
		return decimal.Zero, fmt.Errorf("unsupported numeric type %T", v)
	}
}

func asDate(v any, loc *time.Location) (time.Time, error) {
	switch val := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		if val.IsZero() {
			return val, nil
		}
		y, m, d := val.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	case string:
		if val == "" {
			return time.Time{}, nil
		}
		if len(val) > len(DateLayout) {
			val = val[:len(DateLayout)]
		}
		return time.ParseInLocation(DateLayout, val, loc)
	default:
		return time.Time{}, fmt.Errorf("unsupported date type %T", v)
	}
}
