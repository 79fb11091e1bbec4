package ar

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates invoice payment states.
type Status string

const (
	StatusUnpaid        Status = "UNPAID"
	StatusPartiallyPaid Status = "PARTIALLY_PAID"
	StatusPaid          Status = "PAID"
)

// DateLayout is the calendar-date form used for storage and comparisons.
const DateLayout = "2006-01-02"

// DefaultPaymentTermsDays is the calendar-day term applied when an invoice is created without a due date.
const DefaultPaymentTermsDays = 30

var (
	// PaidTolerance is the largest balance still considered settled.
	PaidTolerance = decimal.RequireFromString("0.05")
	hundred       = decimal.NewFromInt(100)
)

// CustomerSnapshot is the contact data copied onto an invoice when it is issued.
type CustomerSnapshot struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// LineItem is one billed product line.
type LineItem struct {
	ProductID   string          `json:"productId,omitempty"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

// Invoice is a finalized billing document.
type Invoice struct {
	ID               string           `json:"id"`
	Number           string           `json:"invoiceNumber"`
	CustomerID       string           `json:"customerId,omitempty"`
	Customer         CustomerSnapshot `json:"customer"`
	Items            []LineItem       `json:"items"`
	TaxRate          decimal.Decimal  `json:"taxRate"`
	Subtotal         decimal.Decimal  `json:"subtotal"`
	TaxAmount        decimal.Decimal  `json:"taxAmount"`
	Total            decimal.Decimal  `json:"total"`
	AmountPaid       decimal.Decimal  `json:"amountPaid"`
	BalanceDue       decimal.Decimal  `json:"balanceDue"`
	Status           Status           `json:"status"`
	DateIssued       time.Time        `json:"dateIssued"`
	DueDate          time.Time        `json:"dueDate"`
	LastReminderSent *time.Time       `json:"lastReminderSent,omitempty"`
	Notes            string           `json:"notes,omitempty"`
}

// Recalculate derives line totals, subtotal, tax and total from the items, then
// settles the payment fields.
func (inv *Invoice) Recalculate() {
	subtotal := decimal.Zero
	for i := range inv.Items {
		item := &inv.Items[i]
		item.LineTotal = item.Quantity.Mul(item.UnitPrice).Round(2)
		subtotal = subtotal.Add(item.LineTotal)
	}
	inv.Subtotal = subtotal
	inv.TaxAmount = subtotal.Mul(inv.TaxRate).Div(hundred).Round(2)
	inv.Total = inv.Subtotal.Add(inv.TaxAmount)
	inv.settle()
}

// settle clamps amountPaid into [0, total] and derives balance and status.
func (inv *Invoice) settle() {
	if inv.AmountPaid.IsNegative() {
		inv.AmountPaid = decimal.Zero
	}
	if inv.AmountPaid.GreaterThan(inv.Total) {
		inv.AmountPaid = inv.Total
	}
	inv.BalanceDue = decimal.Max(decimal.Zero, inv.Total.Sub(inv.AmountPaid))
	inv.Status = statusFor(inv.AmountPaid, inv.BalanceDue)
}

func statusFor(paid, balance decimal.Decimal) Status {
	switch {
	case balance.LessThanOrEqual(PaidTolerance):
		return StatusPaid
	case paid.IsPositive():
		return StatusPartiallyPaid
	default:
		return StatusUnpaid
	}
}

// Clone returns a deep copy.
func (inv Invoice) Clone() Invoice {
	out := inv
	out.Items = append([]LineItem(nil), inv.Items...)
	if inv.LastReminderSent != nil {
		d := *inv.LastReminderSent
		out.LastReminderSent = &d
	}
	return out
}

// DaysUntilDue returns the whole days between today and the due date; negative when overdue.
func (inv Invoice) DaysUntilDue(today time.Time) int {
	return DaysBetween(today, inv.DueDate)
}

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// FormatDate renders t as a calendar date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// SameDay compares calendar dates as strings, ignoring time of day.
func SameDay(a, b time.Time) bool {
	return FormatDate(a) == FormatDate(b)
}

// DaysBetween counts calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad).Hours() / 24)
}
