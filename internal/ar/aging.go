package ar

import (
	"time"

	"github.com/shopspring/decimal"
)

// AgingBucket totals outstanding balances by days past due.
type AgingBucket struct {
	Current  decimal.Decimal `json:"current"`
	Days30   decimal.Decimal `json:"days1To30"`
	Days60   decimal.Decimal `json:"days31To60"`
	Days90   decimal.Decimal `json:"days61To90"`
	Over90   decimal.Decimal `json:"over90"`
	Total    decimal.Decimal `json:"total"`
	Invoices int             `json:"invoices"`
}

// AgingReport is the aging summary as of a given day.
type AgingReport struct {
	AsOf    string      `json:"asOf"`
	Buckets AgingBucket `json:"buckets"`
}

// CalculateAging groups the balance due of unpaid invoices by due date buckets.
func CalculateAging(invoices []Invoice, asOf time.Time) AgingReport {
	var b AgingBucket
	for _, inv := range invoices {
		if inv.Status == StatusPaid {
			continue
		}
		overdue := DaysBetween(inv.DueDate, asOf)
		switch {
		case overdue <= 0:
			b.Current = b.Current.Add(inv.BalanceDue)
		case overdue <= 30:
			b.Days30 = b.Days30.Add(inv.BalanceDue)
		case overdue <= 60:
			b.Days60 = b.Days60.Add(inv.BalanceDue)
		case overdue <= 90:
			b.Days90 = b.Days90.Add(inv.BalanceDue)
		default:
			b.Over90 = b.Over90.Add(inv.BalanceDue)
		}
		b.Total = b.Total.Add(inv.BalanceDue)
		b.Invoices++
	}
	return AgingReport{AsOf: FormatDate(asOf), Buckets: b}
}
