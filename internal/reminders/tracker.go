package reminders

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/odyssey-erp/billdesk/internal/ar"
	"github.com/odyssey-erp/billdesk/internal/store"
)

// Persister stores the reminder date of an invoice.
type Persister interface {
	SetLastReminderSent(ctx context.Context, id string, day time.Time) error
}

// Tracker owns degraded-mode state. Once the store reports that the reminder column is
// missing, reminder dates are kept in memory for the rest of the process lifetime.
type Tracker struct {
	logger *slog.Logger

	mu         sync.RWMutex
	degraded   bool
	local      map[string]time.Time
	onDegraded func()
}

// NewTracker returns a tracker in persisted mode.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{logger: logger, local: make(map[string]time.Time)}
}

// OnDegraded registers fn to run once when local tracking starts.
func (t *Tracker) OnDegraded(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDegraded = fn
}

// Degraded reports whether reminder dates are tracked locally.
func (t *Tracker) Degraded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.degraded
}

// LastSent returns the last reminder day for inv from the active source.
func (t *Tracker) LastSent(inv ar.Invoice) *time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.degraded {
		return inv.LastReminderSent
	}
	day, ok := t.local[inv.ID]
	if !ok {
		return nil
	}
	return &day
}

// LocalReminder reports the locally tracked reminder day for id. local is false while
// the store holds reminder dates.
func (t *Tracker) LocalReminder(id string) (day time.Time, sent, local bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.degraded {
		return time.Time{}, false, false
	}
	day, sent = t.local[id]
	return day, sent, true
}

// Record stores day as the last reminder date for id. It reports whether the value was
// kept locally. A missing column switches the tracker to local mode and is not an error.
func (t *Tracker) Record(ctx context.Context, p Persister, id string, day time.Time) (bool, error) {
	if t.Degraded() {
		t.remember(id, day)
		return true, nil
	}
	err := p.SetLastReminderSent(ctx, id, day)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrColumnMissing) {
		return false, err
	}
	t.degrade(err)
	t.remember(id, day)
	return true, nil
}

func (t *Tracker) remember(id string, day time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.local[id] = ar.Day(day)
}

func (t *Tracker) degrade(cause error) {
	t.mu.Lock()
	if t.degraded {
		t.mu.Unlock()
		return
	}
	t.degraded = true
	hook := t.onDegraded
	t.mu.Unlock()

	t.logger.Warn("reminder column missing; tracking reminders locally for this session", slog.Any("error", cause))
	if hook != nil {
		hook()
	}
}
