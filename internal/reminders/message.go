package reminders

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultDraftTimeout bounds a single call to the message generator.
const DefaultDraftTimeout = 10 * time.Second

// Draft holds what a reminder text is written from.
type Draft struct {
	CustomerName  string
	InvoiceNumber string
	Balance       decimal.Decimal
	DaysUntilDue  int
	Currency      string
}

// MessageGenerator drafts reminder text, typically through a language model.
type MessageGenerator interface {
	DraftReminder(ctx context.Context, d Draft) (string, error)
}

// Composer produces reminder text and never fails: generator errors, timeouts and an
// absent generator all fall back to a fixed template.
type Composer struct {
	generator MessageGenerator
	timeout   time.Duration
	currency  string
	printer   *message.Printer
	logger    *slog.Logger
}

// NewComposer builds a composer. generator may be nil.
func NewComposer(generator MessageGenerator, currency string, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{
		generator: generator,
		timeout:   DefaultDraftTimeout,
		currency:  currency,
		printer:   message.NewPrinter(language.English),
		logger:    logger,
	}
}

// Compose returns the reminder text for d.
func (c *Composer) Compose(ctx context.Context, d Draft) string {
	if d.Currency == "" {
		d.Currency = c.currency
	}
	if c.generator == nil {
		return c.Fallback(d)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	text, err := c.generator.DraftReminder(ctx, d)
	if err != nil {
		c.logger.Warn("reminder draft failed; using template",
			slog.String("invoice_number", d.InvoiceNumber), slog.Any("error", err))
		return c.Fallback(d)
	}
	if text = strings.TrimSpace(text); text == "" {
		return c.Fallback(d)
	}
	return text
}

// Fallback renders the deterministic template.
func (c *Composer) Fallback(d Draft) string {
	if d.Currency == "" {
		d.Currency = c.currency
	}
	name := d.CustomerName
	if name == "" {
		name = "customer"
	}
	amount := d.Currency + c.printer.Sprintf("%.2f", d.Balance.Round(2).InexactFloat64())
	switch {
	case d.DaysUntilDue < 0:
		return c.printer.Sprintf("Dear %s, invoice %s is %s overdue. The outstanding balance is %s. Please arrange payment at your earliest convenience.",
			name, d.InvoiceNumber, days(-d.DaysUntilDue), amount)
	case d.DaysUntilDue == 0:
		return c.printer.Sprintf("Dear %s, invoice %s is due today. The outstanding balance is %s. Thank you for your prompt payment.",
			name, d.InvoiceNumber, amount)
	default:
		return c.printer.Sprintf("Dear %s, this is a friendly reminder that invoice %s is due in %s. The outstanding balance is %s.",
			name, d.InvoiceNumber, days(d.DaysUntilDue), amount)
	}
}

func days(n int) string {
	if n == 1 {
		return "1 day"
	}
	return message.NewPrinter(language.English).Sprintf("%d days", n)
}
