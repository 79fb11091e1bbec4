package reminders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/billdesk/internal/ar"
	"github.com/odyssey-erp/billdesk/internal/store"
	"github.com/odyssey-erp/billdesk/internal/store/memory"
)

var testNow = time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)

func today() time.Time { return ar.Day(testNow) }

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []Reminder
}

func (d *recordingDispatcher) Dispatch(_ context.Context, r Reminder) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, r)
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func invoiceDue(id string, daysFromToday int) ar.Invoice {
	inv := ar.Invoice{
		ID:         id,
		Number:     "INV-" + id,
		Customer:   ar.CustomerSnapshot{Name: "Leitaria Sol", Email: "sol@example.com"},
		TaxRate:    decimal.Zero,
		DateIssued: today().AddDate(0, 0, -20),
		DueDate:    today().AddDate(0, 0, daysFromToday),
		Items: []ar.LineItem{{
			Description: "Milk collection",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   decimal.NewFromInt(120),
		}},
	}
	inv.Recalculate()
	return inv
}

type fixture struct {
	store      *memory.Store
	engine     *ar.Engine
	scheduler  *Scheduler
	dispatcher *recordingDispatcher
}

func newFixture(t *testing.T, invoices ...ar.Invoice) *fixture {
	t.Helper()
	st := memory.New()
	for _, inv := range invoices {
		rec, err := ar.EncodeInvoice(inv)
		require.NoError(t, err)
		st.Seed(store.EntityInvoice, rec)
	}
	clock := func() time.Time { return testNow }
	tracker := NewTracker(nil)
	engine := ar.NewEngine(ar.NewRepository(st, time.UTC), nil,
		ar.WithClock(clock), ar.WithReminderDates(tracker))
	require.NoError(t, engine.Refresh(context.Background()))
	d := &recordingDispatcher{}
	s := NewScheduler(engine, tracker, NewComposer(nil, "€", nil), nil,
		WithClock(clock), WithDispatcher(d))
	return &fixture{store: st, engine: engine, scheduler: s, dispatcher: d}
}

func TestEligible(t *testing.T) {
	yesterday := today().AddDate(0, 0, -1)
	now := today()
	paid := invoiceDue("p", -3)
	paid, _ = ar.ApplyPayment(paid, paid.Total)

	cases := []struct {
		name     string
		inv      ar.Invoice
		lastSent *time.Time
		want     bool
	}{
		{"overdue never reminded", invoiceDue("a", -1), nil, true},
		{"two days before due", invoiceDue("b", 2), nil, true},
		{"three days before due", invoiceDue("c", 3), nil, false},
		{"one day before due", invoiceDue("d", 1), nil, false},
		{"due today", invoiceDue("e", 0), nil, false},
		{"paid and overdue", paid, nil, false},
		{"already sent today", invoiceDue("f", -4), &now, false},
		{"sent yesterday and still overdue", invoiceDue("g", -4), &yesterday, true},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Eligible(tc.inv, tc.lastSent, today()), tc.name)
	}
}

func TestScanIsIdempotentPerDay(t *testing.T) {
	f := newFixture(t, invoiceDue("a", 2), invoiceDue("b", -7), invoiceDue("c", 10))
	ctx := context.Background()

	res, err := f.scheduler.Scan(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, res.Checked)
	require.Equal(t, 2, res.Sent)
	require.False(t, res.Degraded)

	inv, err := f.engine.Get("a")
	require.NoError(t, err)
	require.NotNil(t, inv.LastReminderSent)
	require.Equal(t, "2024-05-10", ar.FormatDate(*inv.LastReminderSent))

	res, err = f.scheduler.Scan(ctx)
	require.NoError(t, err)
	require.Zero(t, res.Eligible)
	require.Equal(t, 2, f.dispatcher.count())
}

func TestScanSwitchesToLocalTracking(t *testing.T) {
	f := newFixture(t, invoiceDue("a", 2), invoiceDue("b", -1))
	f.store.DropColumn(store.EntityInvoice, ar.FieldLastReminderSent)
	ctx := context.Background()

	res, err := f.scheduler.Scan(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, res.Sent)
	require.Zero(t, res.Failed)
	require.True(t, res.Degraded)
	require.True(t, f.scheduler.Tracker().Degraded())
	require.Equal(t, 1, f.store.Updates())

	for _, inv := range f.engine.Invoices() {
		last := f.scheduler.Tracker().LastSent(inv)
		require.NotNil(t, last)
		require.False(t, Eligible(inv, last, today()))
	}

	res, err = f.scheduler.Scan(ctx)
	require.NoError(t, err)
	require.Zero(t, res.Sent)
	require.Equal(t, 2, f.dispatcher.count())
	require.Equal(t, 1, f.store.Updates())
}

func TestLocalTrackingIsSticky(t *testing.T) {
	f := newFixture(t, invoiceDue("a", -1))
	tracker := f.scheduler.Tracker()
	ctx := context.Background()

	f.store.DropColumn(store.EntityInvoice, ar.FieldLastReminderSent)
	local, err := tracker.Record(ctx, f.engine, "a", today().AddDate(0, 0, -1))
	require.NoError(t, err)
	require.True(t, local)

	// A store that could accept the field again is still bypassed.
	fresh := newFixture(t, invoiceDue("a", -1))
	local, err = tracker.Record(ctx, fresh.engine, "a", today())
	require.NoError(t, err)
	require.True(t, local)
	require.Zero(t, fresh.store.Updates())
}

func TestScanGenericFailureRetriesNextRun(t *testing.T) {
	f := newFixture(t, invoiceDue("a", -2))
	f.store.FailNext(memory.OpUpdate, store.EntityInvoice, errors.New("connection refused"))
	ctx := context.Background()

	res, err := f.scheduler.Scan(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Failed)
	require.Zero(t, res.Sent)
	require.False(t, res.Degraded)
	require.Zero(t, f.dispatcher.count())

	res, err = f.scheduler.Scan(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Sent)
}

type blockingSource struct {
	Source
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSource) Refresh(ctx context.Context) error {
	close(b.entered)
	<-b.release
	return b.Source.Refresh(ctx)
}

func TestOverlappingScanIsSkipped(t *testing.T) {
	f := newFixture(t, invoiceDue("a", -1))
	src := &blockingSource{Source: f.engine, entered: make(chan struct{}), release: make(chan struct{})}
	s := NewScheduler(src, NewTracker(nil), NewComposer(nil, "€", nil), nil,
		WithClock(func() time.Time { return testNow }), WithDispatcher(f.dispatcher))

	done := make(chan ScanResult)
	go func() {
		res, _ := s.Scan(context.Background())
		done <- res
	}()
	<-src.entered

	res, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.True(t, res.Skipped)

	close(src.release)
	first := <-done
	require.False(t, first.Skipped)
	require.Equal(t, 1, first.Sent)
	require.Equal(t, 1, f.dispatcher.count())
}

func TestCandidatesOrderAndWindow(t *testing.T) {
	paid := invoiceDue("paid", -1)
	paid, _ = ar.ApplyPayment(paid, paid.Total)
	f := newFixture(t,
		invoiceDue("in3", 3),
		invoiceDue("in4", 4),
		invoiceDue("late5", -5),
		invoiceDue("in1", 1),
		paid,
	)

	got, err := f.scheduler.Candidates(context.Background())
	require.NoError(t, err)
	ids := []string{}
	for _, c := range got {
		ids = append(ids, c.Invoice.ID)
	}
	require.Equal(t, []string{"late5", "in1", "in3"}, ids)
	require.True(t, got[0].Overdue)
	require.Equal(t, -5, got[0].DaysUntilDue)
}

func TestSendManualAlwaysSends(t *testing.T) {
	f := newFixture(t, invoiceDue("a", 10))
	ctx := context.Background()

	first, err := f.scheduler.SendManual(ctx, "a")
	require.NoError(t, err)
	require.False(t, first.AlreadySent)
	require.Equal(t, ModeManual, first.Mode)
	require.Contains(t, first.Message, "INV-a")

	second, err := f.scheduler.SendManual(ctx, "a")
	require.NoError(t, err)
	require.True(t, second.AlreadySent)
	require.Equal(t, 2, f.dispatcher.count())

	got, err := f.scheduler.Candidates(ctx)
	require.NoError(t, err)
	require.Empty(t, got)

	_, err = f.scheduler.SendManual(ctx, "missing")
	require.ErrorIs(t, err, ar.ErrInvoiceNotFound)
}

func TestLocalReminderDatesShowOnInvoiceReads(t *testing.T) {
	inv := invoiceDue("a", 10)
	yesterday := today().AddDate(0, 0, -1)
	inv.LastReminderSent = &yesterday
	f := newFixture(t, inv, invoiceDue("b", 12))
	ctx := context.Background()

	f.store.FailNext(memory.OpUpdate, store.EntityInvoice,
		store.ColumnMissing("update", store.EntityInvoice, ar.FieldLastReminderSent, errors.New("column does not exist")))
	r, err := f.scheduler.SendManual(ctx, "a")
	require.NoError(t, err)
	require.True(t, r.TrackedLocal)

	got, err := f.engine.Get("a")
	require.NoError(t, err)
	require.NotNil(t, got.LastReminderSent)
	require.Equal(t, "2024-05-10", ar.FormatDate(*got.LastReminderSent))

	for _, listed := range f.engine.Invoices() {
		if listed.ID == "b" {
			require.Nil(t, listed.LastReminderSent)
			continue
		}
		require.Equal(t, "2024-05-10", ar.FormatDate(*listed.LastReminderSent))
	}
}

func TestSendManualSeesReminderFromAnotherProcess(t *testing.T) {
	f := newFixture(t, invoiceDue("a", 10))
	ctx := context.Background()

	other := ar.NewEngine(ar.NewRepository(f.store, time.UTC), nil)
	require.NoError(t, other.Refresh(ctx))
	require.NoError(t, other.SetLastReminderSent(ctx, "a", today()))

	r, err := f.scheduler.SendManual(ctx, "a")
	require.NoError(t, err)
	require.True(t, r.AlreadySent)
}
