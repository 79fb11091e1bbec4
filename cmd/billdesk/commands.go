package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/billdesk/cmd/billdesk/cli"
	"github.com/odyssey-erp/billdesk/internal/app"
	"github.com/odyssey-erp/billdesk/internal/platform/db"
)

// exitError carries a command's exit status without an extra message.
type exitError int

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the Postgres schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			if cfg.StoreDriver != app.StoreDriverPostgres {
				return errors.New("migrate requires STORE_DRIVER=postgres")
			}
			pool, err := db.New(cmd.Context(), cfg.PGDSN)
			if err != nil {
				return err
			}
			defer pool.Close()
			n, err := db.Migrate(cmd.Context(), pool)
			if err != nil {
				return err
			}
			logger.Info("schema up to date", slog.Int("statements", n))
			return nil
		},
	}
}

func newRemindersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Inspect payment reminders",
	}

	var jsonOutput, overdueOnly bool
	due := &cobra.Command{
		Use:   "due",
		Short: "List invoices due soon or overdue",
		Long: `List unpaid invoices that are overdue or fall due within the lookahead window,
ordered by due date. Exits with status 10 when any listed invoice is overdue.`,
		Example: `  billdesk reminders due
  billdesk reminders due --overdue --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			services, err := app.Build(cmd.Context(), cfg, logger, app.BuildOptions{})
			if err != nil {
				return err
			}
			defer services.Close()

			helper, err := cli.NewRemindersCLI(services.Scheduler)
			if err != nil {
				return err
			}
			code := helper.DueCommand(cmd.Context(), cli.DueOptions{
				JSONOutput:  jsonOutput,
				OverdueOnly: overdueOnly,
				Stdout:      cmd.OutOrStdout(),
				Stderr:      cmd.ErrOrStderr(),
			})
			if code != 0 {
				return exitError(code)
			}
			return nil
		},
	}
	due.Flags().BoolVar(&jsonOutput, "json", false, "print JSON instead of a table")
	due.Flags().BoolVar(&overdueOnly, "overdue", false, "only list overdue invoices")
	cmd.AddCommand(due)
	return cmd
}

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage background jobs",
	}

	withJobs := func(run func(cmd *cobra.Command, jobsCLI *cli.JobsCLI, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadRuntime()
			if err != nil {
				return err
			}
			jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
			defer jobsCLI.Close()
			return run(cmd, jobsCLI, args)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "trigger <job>",
		Short:   "Enqueue a job now",
		Example: "  billdesk jobs trigger reminder-scan",
		Args:    cobra.ExactArgs(1),
		RunE: withJobs(func(cmd *cobra.Command, jobsCLI *cli.JobsCLI, args []string) error {
			info, err := jobsCLI.Trigger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show queue counters",
		Args:  cobra.NoArgs,
		RunE: withJobs(func(cmd *cobra.Command, jobsCLI *cli.JobsCLI, _ []string) error {
			stats, err := jobsCLI.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd, stats)
		}),
	})
	var size int
	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		Args:  cobra.NoArgs,
		RunE: withJobs(func(cmd *cobra.Command, jobsCLI *cli.JobsCLI, _ []string) error {
			tasks, err := jobsCLI.ListScheduled(cmd.Context(), size)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339))
			}
			return nil
		}),
	}
	scheduled.Flags().IntVar(&size, "size", 10, "number of tasks to list")
	cmd.AddCommand(scheduled)
	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
