// Package reminders decides which invoices need a payment reminder and records that one
// was sent, falling back to in-memory tracking when the store cannot hold the date.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/billdesk/internal/ar"
)

const (
	// DaysBeforeDue is when the single pre-due automatic reminder goes out.
	DaysBeforeDue = 2
	// DefaultLookaheadDays bounds the candidate list shown to operators.
	DefaultLookaheadDays = 3
)

// Mode tells automatic and operator-triggered reminders apart.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// Source is the invoice working set the scheduler reads and annotates.
type Source interface {
	Persister
	Refresh(ctx context.Context) error
	Invoices() []ar.Invoice
	Get(id string) (ar.Invoice, error)
}

// Reminder is one dispatched payment reminder.
type Reminder struct {
	InvoiceID     string          `json:"invoiceId"`
	InvoiceNumber string          `json:"invoiceNumber"`
	CustomerName  string          `json:"customerName"`
	CustomerEmail string          `json:"customerEmail,omitempty"`
	Balance       decimal.Decimal `json:"balance"`
	DueDate       string          `json:"dueDate"`
	DaysUntilDue  int             `json:"daysUntilDue"`
	Date          string          `json:"date"`
	Mode          Mode            `json:"mode"`
	Message       string          `json:"message"`
	TrackedLocal  bool            `json:"trackedLocally"`
	// AlreadySent is set on manual reminders when one had already gone out that day.
	AlreadySent bool `json:"alreadySentToday"`
}

// Dispatcher delivers a recorded reminder.
type Dispatcher interface {
	Dispatch(ctx context.Context, r Reminder) error
}

// Metrics observes scheduler outcomes.
type Metrics interface {
	ReminderSent(mode string, local bool)
	ReminderFailed(mode string)
	TrackingLocally()
}

// ScanResult summarizes one automatic scan.
type ScanResult struct {
	Date     string `json:"date"`
	Checked  int    `json:"checked"`
	Eligible int    `json:"eligible"`
	Sent     int    `json:"sent"`
	Failed   int    `json:"failed"`
	Skipped  bool   `json:"skipped"`
	Degraded bool   `json:"trackingLocally"`
}

// Candidate is a non-paid invoice due within the lookahead window or overdue.
type Candidate struct {
	Invoice      ar.Invoice `json:"invoice"`
	DaysUntilDue int        `json:"daysUntilDue"`
	Overdue      bool       `json:"overdue"`
	SentToday    bool       `json:"sentToday"`
	LastSent     string     `json:"lastSent,omitempty"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// WithLocation sets the calendar used to determine "today".
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.loc = loc }
}

// WithLookahead sets the candidate window in days.
func WithLookahead(days int) Option {
	return func(s *Scheduler) { s.lookahead = days }
}

// WithDispatcher sets where recorded reminders are delivered.
func WithDispatcher(d Dispatcher) Option {
	return func(s *Scheduler) { s.dispatcher = d }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// Scheduler runs reminder scans over a Source.
type Scheduler struct {
	source     Source
	tracker    *Tracker
	composer   *Composer
	dispatcher Dispatcher
	metrics    Metrics
	logger     *slog.Logger
	clock      func() time.Time
	loc        *time.Location
	lookahead  int

	running atomic.Bool
}

// NewScheduler wires a scheduler. The tracker is shared with any other component that
// reads reminder dates.
func NewScheduler(source Source, tracker *Tracker, composer *Composer, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		source:    source,
		tracker:   tracker,
		composer:  composer,
		logger:    logger,
		clock:     time.Now,
		loc:       time.UTC,
		lookahead: DefaultLookaheadDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dispatcher == nil {
		s.dispatcher = LogDispatcher{Logger: logger}
	}
	if s.metrics != nil {
		tracker.OnDegraded(s.metrics.TrackingLocally)
	}
	return s
}

// Tracker exposes the degraded-mode state.
func (s *Scheduler) Tracker() *Tracker {
	return s.tracker
}

// Today returns the current calendar day.
func (s *Scheduler) Today() time.Time {
	return ar.Day(s.clock().In(s.loc))
}

// Eligible reports whether inv needs an automatic reminder on today.
func Eligible(inv ar.Invoice, lastSent *time.Time, today time.Time) bool {
	if inv.Status == ar.StatusPaid {
		return false
	}
	until := inv.DaysUntilDue(today)
	overdue := until < 0
	preDue := until == DaysBeforeDue
	needs := lastSent == nil || !ar.SameDay(*lastSent, today)
	return (overdue || preDue) && needs
}

// Scan refreshes the working set and sends every due automatic reminder. A scan that
// starts while another is running returns immediately with Skipped set.
func (s *Scheduler) Scan(ctx context.Context) (ScanResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("reminder scan already running; skipping")
		return ScanResult{Skipped: true, Degraded: s.tracker.Degraded()}, nil
	}
	defer s.running.Store(false)

	today := s.Today()
	res := ScanResult{Date: ar.FormatDate(today)}
	if err := s.source.Refresh(ctx); err != nil {
		return res, fmt.Errorf("reminders: scan: %w", err)
	}

	for _, inv := range s.source.Invoices() {
		res.Checked++
		if !Eligible(inv, s.tracker.LastSent(inv), today) {
			continue
		}
		res.Eligible++
		if _, err := s.send(ctx, inv, today, ModeAuto); err != nil {
			res.Failed++
			continue
		}
		res.Sent++
	}
	res.Degraded = s.tracker.Degraded()
	s.logger.Info("reminder scan finished",
		slog.String("date", res.Date),
		slog.Int("checked", res.Checked),
		slog.Int("eligible", res.Eligible),
		slog.Int("sent", res.Sent),
		slog.Int("failed", res.Failed),
		slog.Bool("tracking_locally", res.Degraded))
	return res, nil
}

// SendManual sends a reminder for one invoice regardless of whether one already went
// out today. The working set is reloaded first so reminders sent by other processes
// count. The reminder date follows the same persistence rules as automatic scans.
func (s *Scheduler) SendManual(ctx context.Context, id string) (Reminder, error) {
	if err := s.source.Refresh(ctx); err != nil {
		return Reminder{}, fmt.Errorf("reminders: manual: %w", err)
	}
	inv, err := s.source.Get(id)
	if err != nil {
		return Reminder{}, err
	}
	today := s.Today()
	last := s.tracker.LastSent(inv)
	r, err := s.send(ctx, inv, today, ModeManual)
	if err != nil {
		return Reminder{}, err
	}
	r.AlreadySent = last != nil && ar.SameDay(*last, today)
	return r, nil
}

// Candidates refreshes the working set and lists reminder candidates, earliest due first.
func (s *Scheduler) Candidates(ctx context.Context) ([]Candidate, error) {
	if err := s.source.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("reminders: candidates: %w", err)
	}
	return ListCandidates(s.source.Invoices(), s.tracker, s.Today(), s.lookahead), nil
}

// ListCandidates selects non-paid invoices due within lookahead days or overdue.
func ListCandidates(invoices []ar.Invoice, tracker *Tracker, today time.Time, lookahead int) []Candidate {
	out := []Candidate{}
	for _, inv := range invoices {
		if inv.Status == ar.StatusPaid {
			continue
		}
		until := inv.DaysUntilDue(today)
		if until > lookahead {
			continue
		}
		c := Candidate{Invoice: inv, DaysUntilDue: until, Overdue: until < 0}
		if last := tracker.LastSent(inv); last != nil {
			c.LastSent = ar.FormatDate(*last)
			c.SentToday = ar.SameDay(*last, today)
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Invoice.DueDate.Before(out[j].Invoice.DueDate)
	})
	return out
}

func (s *Scheduler) send(ctx context.Context, inv ar.Invoice, today time.Time, mode Mode) (Reminder, error) {
	until := inv.DaysUntilDue(today)
	r := Reminder{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.Number,
		CustomerName:  inv.Customer.Name,
		CustomerEmail: inv.Customer.Email,
		Balance:       inv.BalanceDue,
		DueDate:       ar.FormatDate(inv.DueDate),
		DaysUntilDue:  until,
		Date:          ar.FormatDate(today),
		Mode:          mode,
	}
	r.Message = s.composer.Compose(ctx, Draft{
		CustomerName:  inv.Customer.Name,
		InvoiceNumber: inv.Number,
		Balance:       inv.BalanceDue,
		DaysUntilDue:  until,
	})

	local, err := s.tracker.Record(ctx, s.source, inv.ID, today)
	if err != nil {
		s.logger.Error("reminder not recorded",
			slog.String("invoice_id", inv.ID),
			slog.String("mode", string(mode)),
			slog.Any("error", err))
		if s.metrics != nil {
			s.metrics.ReminderFailed(string(mode))
		}
		return Reminder{}, fmt.Errorf("reminders: record %s: %w", inv.Number, err)
	}
	r.TrackedLocal = local
	s.logger.Info("reminder sent",
		slog.String("invoice_id", inv.ID),
		slog.String("invoice_number", inv.Number),
		slog.String("date", r.Date),
		slog.String("mode", string(mode)),
		slog.Bool("tracked_locally", local))
	if s.metrics != nil {
		s.metrics.ReminderSent(string(mode), local)
	}

	if err := s.dispatcher.Dispatch(ctx, r); err != nil {
		s.logger.Warn("reminder delivery failed",
			slog.String("invoice_id", inv.ID), slog.Any("error", err))
	}
	return r, nil
}

// LogDispatcher only logs reminders; used when no mail queue is configured.
type LogDispatcher struct {
	Logger *slog.Logger
}

// Dispatch implements Dispatcher.
func (d LogDispatcher) Dispatch(_ context.Context, r Reminder) error {
	if d.Logger == nil {
		return errors.New("reminders: log dispatcher without logger")
	}
	d.Logger.Debug("reminder text", slog.String("invoice_number", r.InvoiceNumber), slog.String("message", r.Message))
	return nil
}
