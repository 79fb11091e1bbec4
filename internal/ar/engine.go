package ar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/billdesk/internal/store"
)

// CustomerLookup resolves the contact snapshot for a customer id.
type CustomerLookup interface {
	Snapshot(ctx context.Context, id string) (CustomerSnapshot, error)
}

// OverpaymentHook observes the excess dropped when a payment is capped at the invoice total.
type OverpaymentHook func(ctx context.Context, inv Invoice, excess decimal.Decimal)

// ReportCache caches derived reports and is invalidated after every mutation.
type ReportCache interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Bump(ctx context.Context) error
}

// ReminderDates supplies reminder dates tracked outside the store. local is false while
// the stored dates are authoritative.
type ReminderDates interface {
	LocalReminder(id string) (day time.Time, sent, local bool)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithStoreTimeout bounds every store call made by the engine.
func WithStoreTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithCustomerLookup enables creating invoices from a customer id alone.
func WithCustomerLookup(l CustomerLookup) Option {
	return func(e *Engine) { e.customers = l }
}

// WithOverpaymentHook registers a hook called when a payment exceeds the balance.
func WithOverpaymentHook(h OverpaymentHook) Option {
	return func(e *Engine) { e.onOverpayment = h }
}

// WithReportCache caches aging reports.
func WithReportCache(c ReportCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithDefaultTaxRate sets the tax rate used when a new invoice omits one.
func WithDefaultTaxRate(rate decimal.Decimal) Option {
	return func(e *Engine) { e.defaultTaxRate = rate }
}

// WithReminderDates overlays locally tracked reminder dates on every invoice read.
func WithReminderDates(d ReminderDates) Option {
	return func(e *Engine) { e.reminderDates = d }
}

// Engine owns the working set of invoices and governs their lifecycle.
//
// Readers always observe a complete list: mutations swap entries under mu. Writers are
// serialized by writeMu so each payment is computed from the latest confirmed state.
type Engine struct {
	repo           *Repository
	logger         *slog.Logger
	validate       *validator.Validate
	clock          func() time.Time
	timeout        time.Duration
	customers      CustomerLookup
	onOverpayment  OverpaymentHook
	cache          ReportCache
	defaultTaxRate decimal.Decimal
	reminderDates  ReminderDates

	writeMu     sync.Mutex
	mu          sync.RWMutex
	invoices    []Invoice
	unavailable bool
}

// NewEngine builds an engine over repo.
func NewEngine(repo *Repository, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		repo:           repo,
		logger:         logger,
		validate:       validator.New(),
		clock:          time.Now,
		defaultTaxRate: decimal.NewFromInt(23),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Today returns the current calendar day in the repository location.
func (e *Engine) Today() time.Time {
	return Day(e.clock().In(e.repo.loc))
}

// Location returns the location calendar dates are interpreted in.
func (e *Engine) Location() *time.Location {
	return e.repo.loc
}

// Refresh reloads the working set from the store. A missing invoice table yields an
// empty set and marks the data source unavailable instead of failing.
func (e *Engine) Refresh(ctx context.Context) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	invoices, skipped, err := e.repo.List(sctx)
	if errors.Is(err, store.ErrSchemaMissing) {
		e.logger.Warn("invoice table missing; serving empty list", slog.Any("error", err))
		e.mu.Lock()
		e.invoices = nil
		e.unavailable = true
		e.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("ar: refresh: %w", err)
	}
	for _, s := range skipped {
		e.logger.Warn("skipping undecodable invoice", slog.Any("error", s))
	}
	e.mu.Lock()
	e.invoices = invoices
	e.unavailable = false
	e.mu.Unlock()
	return nil
}

// DataSourceUnavailable reports whether the last refresh found no invoice table.
func (e *Engine) DataSourceUnavailable() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.unavailable
}

// Invoices returns a snapshot of the working set.
func (e *Engine) Invoices() []Invoice {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Invoice, len(e.invoices))
	for i, inv := range e.invoices {
		out[i] = e.withReminderDate(inv.Clone())
	}
	return out
}

// Get returns one invoice from the working set.
func (e *Engine) Get(id string) (Invoice, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx := e.indexLocked(id)
	if idx < 0 {
		return Invoice{}, ErrInvoiceNotFound
	}
	return e.withReminderDate(e.invoices[idx].Clone()), nil
}

func (e *Engine) withReminderDate(inv Invoice) Invoice {
	if e.reminderDates == nil {
		return inv
	}
	day, sent, local := e.reminderDates.LocalReminder(inv.ID)
	if !local {
		return inv
	}
	inv.LastReminderSent = nil
	if sent {
		inv.LastReminderSent = &day
	}
	return inv
}

// LineItemInput is one requested invoice line.
type LineItemInput struct {
	ProductID   string          `json:"productId"`
	Description string          `json:"description" validate:"required,max=500"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// CreateInvoiceInput is the payload for finalizing an invoice.
type CreateInvoiceInput struct {
	CustomerID string           `json:"customerId"`
	Customer   CustomerSnapshot `json:"customer"`
	Items      []LineItemInput  `json:"items" validate:"required,min=1,dive"`
	TaxRate    *decimal.Decimal `json:"taxRate"`
	DateIssued string           `json:"dateIssued"`
	DueDate    string           `json:"dueDate"`
	Notes      string           `json:"notes" validate:"max=2000"`
}

// CreateInvoice validates input, freezes the customer snapshot and items, and persists
// a new UNPAID invoice.
func (e *Engine) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (Invoice, error) {
	if err := e.validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return Invoice{}, invalid(verrs[0].Field(), verrs[0].Tag())
		}
		return Invoice{}, invalid("", err.Error())
	}

	snapshot := input.Customer
	if input.CustomerID != "" && e.customers != nil {
		found, err := e.customers.Snapshot(ctx, input.CustomerID)
		if err != nil {
			return Invoice{}, fmt.Errorf("ar: customer snapshot: %w", err)
		}
		snapshot = mergeSnapshot(found, input.Customer)
	}
	if snapshot.Name == "" {
		return Invoice{}, invalid("customer.name", "required")
	}
	if snapshot.Email != "" {
		if err := e.validate.Var(snapshot.Email, "email"); err != nil {
			return Invoice{}, invalid("customer.email", "invalid email")
		}
	}

	inv := Invoice{
		ID:         uuid.NewString(),
		CustomerID: input.CustomerID,
		Customer:   snapshot,
		TaxRate:    e.defaultTaxRate,
		Notes:      input.Notes,
	}
	if input.TaxRate != nil {
		inv.TaxRate = *input.TaxRate
	}
	if inv.TaxRate.IsNegative() || inv.TaxRate.GreaterThan(hundred) {
		return Invoice{}, invalid("taxRate", "must be between 0 and 100")
	}
	for i, item := range input.Items {
		if !item.Quantity.IsPositive() {
			return Invoice{}, invalid(fmt.Sprintf("items[%d].quantity", i), "must be positive")
		}
		if item.UnitPrice.IsNegative() {
			return Invoice{}, invalid(fmt.Sprintf("items[%d].unitPrice", i), "must not be negative")
		}
		inv.Items = append(inv.Items, LineItem{
			ProductID:   item.ProductID,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}

	var err error
	inv.DateIssued = e.Today()
	if input.DateIssued != "" {
		if inv.DateIssued, err = time.ParseInLocation(DateLayout, input.DateIssued, e.repo.loc); err != nil {
			return Invoice{}, invalid("dateIssued", "expected YYYY-MM-DD")
		}
	}
	inv.DueDate = inv.DateIssued.AddDate(0, 0, DefaultPaymentTermsDays)
	if input.DueDate != "" {
		if inv.DueDate, err = time.ParseInLocation(DateLayout, input.DueDate, e.repo.loc); err != nil {
			return Invoice{}, invalid("dueDate", "expected YYYY-MM-DD")
		}
	}
	if inv.DueDate.Before(inv.DateIssued) {
		return Invoice{}, invalid("dueDate", "must not precede dateIssued")
	}
	inv.DueDate = Day(inv.DueDate)

	inv.Recalculate()
	if !inv.Total.IsPositive() {
		return Invoice{}, invalid("total", "must be positive")
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	inv.Number = NextNumber(e.Invoices())

	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	if err := e.repo.Insert(sctx, inv); err != nil {
		return Invoice{}, fmt.Errorf("ar: create invoice: %w", err)
	}
	e.mu.Lock()
	e.invoices = append(e.invoices, inv)
	e.mu.Unlock()
	e.changed(ctx)
	return inv.Clone(), nil
}

// ApplyPayment returns the invoice after adding amount, capped at the total, together
// with the capped excess.
func ApplyPayment(inv Invoice, amount decimal.Decimal) (Invoice, decimal.Decimal) {
	out := inv.Clone()
	paid := inv.AmountPaid.Add(amount)
	excess := decimal.Zero
	if paid.GreaterThan(inv.Total) {
		excess = paid.Sub(inv.Total)
		paid = inv.Total
	}
	out.AmountPaid = paid
	out.BalanceDue = decimal.Max(decimal.Zero, inv.Total.Sub(paid))
	if out.BalanceDue.LessThanOrEqual(PaidTolerance) {
		out.Status = StatusPaid
	} else {
		out.Status = StatusPartiallyPaid
	}
	return out, excess
}

// RecordPayment adds a payment to an invoice. The working set changes only after the
// store confirms the update.
func (e *Engine) RecordPayment(ctx context.Context, id string, amount float64) (Invoice, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return Invoice{}, invalid("amount", "must be a positive finite number")
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	current, err := e.Get(id)
	if err != nil {
		return Invoice{}, err
	}
	next, excess := ApplyPayment(current, decimal.NewFromFloat(amount))

	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	err = e.repo.Update(sctx, id, store.Record{
		FieldAmountPaid: next.AmountPaid,
		FieldBalanceDue: next.BalanceDue,
		FieldStatus:     string(next.Status),
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("ar: record payment: %w", err)
	}

	e.mu.Lock()
	if idx := e.indexLocked(id); idx >= 0 {
		e.invoices[idx].AmountPaid = next.AmountPaid
		e.invoices[idx].BalanceDue = next.BalanceDue
		e.invoices[idx].Status = next.Status
		next = e.withReminderDate(e.invoices[idx].Clone())
	}
	e.mu.Unlock()

	if excess.IsPositive() {
		e.logger.Info("overpayment capped",
			slog.String("invoice_id", id),
			slog.String("invoice_number", next.Number),
			slog.String("excess", excess.StringFixed(2)))
		if e.onOverpayment != nil {
			e.onOverpayment(ctx, next, excess)
		}
	}
	e.changed(ctx)
	return next, nil
}

// Delete removes the invoice from the working set immediately, then from the store.
// If the store rejects the delete the invoice is restored at its original position.
func (e *Engine) Delete(ctx context.Context, id string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if _, err := e.Get(id); err != nil {
		return err
	}
	sctx, cancel := e.storeContext(ctx)
	defer cancel()

	err := optimistic(
		func() func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			idx := e.indexLocked(id)
			if idx < 0 {
				return nil
			}
			removed := e.invoices[idx]
			e.invoices = append(e.invoices[:idx:idx], e.invoices[idx+1:]...)
			return func() {
				e.mu.Lock()
				defer e.mu.Unlock()
				at := min(idx, len(e.invoices))
				e.invoices = append(e.invoices[:at:at], append([]Invoice{removed}, e.invoices[at:]...)...)
			}
		},
		func() error { return e.repo.Delete(sctx, id) },
	)
	if err != nil {
		e.logger.Warn("invoice delete rolled back", slog.String("invoice_id", id), slog.Any("error", err))
		return fmt.Errorf("ar: delete invoice: %w", err)
	}
	e.changed(ctx)
	return nil
}

// SetLastReminderSent persists the reminder date for an invoice. Store errors are
// returned unchanged in kind so callers can detect a missing column.
func (e *Engine) SetLastReminderSent(ctx context.Context, id string, day time.Time) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if _, err := e.Get(id); err != nil {
		return err
	}
	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	if err := e.repo.Update(sctx, id, store.Record{FieldLastReminderSent: FormatDate(day)}); err != nil {
		return fmt.Errorf("ar: set last reminder: %w", err)
	}
	e.mu.Lock()
	if idx := e.indexLocked(id); idx >= 0 {
		d := Day(day)
		e.invoices[idx].LastReminderSent = &d
	}
	e.mu.Unlock()
	return nil
}

// Aging reports outstanding balances by age, served from the report cache when configured.
func (e *Engine) Aging(ctx context.Context) (AgingReport, error) {
	asOf := e.Today()
	build := func(context.Context) (any, error) {
		return CalculateAging(e.Invoices(), asOf), nil
	}
	if e.cache == nil {
		return CalculateAging(e.Invoices(), asOf), nil
	}
	key, err := e.cache.BuildKey(ctx, "ar", "aging", FormatDate(asOf))
	if err != nil {
		e.logger.Warn("aging cache unavailable", slog.Any("error", err))
		return CalculateAging(e.Invoices(), asOf), nil
	}
	var report AgingReport
	if err := e.cache.FetchJSON(ctx, key, &report, build); err != nil {
		e.logger.Warn("aging cache fetch failed", slog.Any("error", err))
		return CalculateAging(e.Invoices(), asOf), nil
	}
	return report, nil
}

func (e *Engine) changed(ctx context.Context) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Bump(ctx); err != nil {
		e.logger.Warn("report cache bump failed", slog.Any("error", err))
	}
}

func (e *Engine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

func (e *Engine) indexLocked(id string) int {
	for i := range e.invoices {
		if e.invoices[i].ID == id {
			return i
		}
	}
	return -1
}

func mergeSnapshot(base, override CustomerSnapshot) CustomerSnapshot {
	if override.Name != "" {
		base.Name = override.Name
	}
	if override.Email != "" {
		base.Email = override.Email
	}
	if override.Phone != "" {
		base.Phone = override.Phone
	}
	if override.Address != "" {
		base.Address = override.Address
	}
	return base
}
