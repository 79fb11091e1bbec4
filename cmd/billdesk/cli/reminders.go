package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/odyssey-erp/billdesk/internal/ar"
	"github.com/odyssey-erp/billdesk/internal/reminders"
)

// CandidateLister reports invoices that are due soon or overdue.
type CandidateLister interface {
	Candidates(ctx context.Context) ([]reminders.Candidate, error)
}

// RemindersCLI prints the reminder work list for operators.
type RemindersCLI struct {
	lister CandidateLister
}

// NewRemindersCLI constructs the helper.
func NewRemindersCLI(lister CandidateLister) (*RemindersCLI, error) {
	if lister == nil {
		return nil, errors.New("reminders cli: lister required")
	}
	return &RemindersCLI{lister: lister}, nil
}

// DueOptions controls DueCommand output.
type DueOptions struct {
	JSONOutput  bool
	OverdueOnly bool
	Stdout      io.Writer
	Stderr      io.Writer
}

// DueSummary is the JSON form of DueCommand output.
type DueSummary struct {
	Count      int                   `json:"count"`
	Overdue    int                   `json:"overdue"`
	Candidates []reminders.Candidate `json:"candidates"`
}

// DueCommand lists reminder candidates. It returns 0 when nothing is overdue, 10
// when at least one listed invoice is overdue and 1 on failure.
func (c *RemindersCLI) DueCommand(ctx context.Context, opts DueOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	candidates, err := c.lister.Candidates(ctx)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "list reminder candidates: %v\n", err)
		return 1
	}

	summary := DueSummary{Candidates: make([]reminders.Candidate, 0, len(candidates))}
	for _, cand := range candidates {
		if opts.OverdueOnly && !cand.Overdue {
			continue
		}
		if cand.Overdue {
			summary.Overdue++
		}
		summary.Candidates = append(summary.Candidates, cand)
	}
	summary.Count = len(summary.Candidates)

	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			fmt.Fprintf(opts.Stderr, "encode summary: %v\n", err)
			return 1
		}
	} else {
		tw := tabwriter.NewWriter(opts.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NUMBER\tCUSTOMER\tDUE\tDAYS\tBALANCE\tLAST SENT")
		for _, cand := range summary.Candidates {
			last := cand.LastSent
			if last == "" {
				last = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
				cand.Invoice.Number,
				cand.Invoice.Customer.Name,
				ar.FormatDate(cand.Invoice.DueDate),
				cand.DaysUntilDue,
				cand.Invoice.BalanceDue.StringFixed(2),
				last)
		}
		if err := tw.Flush(); err != nil {
			fmt.Fprintf(opts.Stderr, "write table: %v\n", err)
			return 1
		}
	}
	if summary.Overdue > 0 {
		return 10
	}
	return 0
}
