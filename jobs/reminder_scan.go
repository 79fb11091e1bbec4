package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/billdesk/internal/jobs"
	"github.com/odyssey-erp/billdesk/internal/reminders"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Scanner runs one reminder scan.
type Scanner interface {
	Scan(ctx context.Context) (reminders.ScanResult, error)
}

// ReminderScanJob executes the automatic reminder scan on the worker.
type ReminderScanJob struct {
	Scanner Scanner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReminderScanJob constructs the job handler.
func NewReminderScanJob(scanner Scanner, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReminderScanJob {
	return &ReminderScanJob{Scanner: scanner, Logger: logger, Metrics: metrics}
}

// Handle executes the reminder scan job.
func (j *ReminderScanJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.Scanner == nil {
		return asynq.SkipRetry
	}
	payload := ReminderScanPayload{Trigger: "cron"}
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskReminderScan)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.String("trigger", payload.Trigger))
	start := time.Now()
	res, err := j.Scanner.Scan(ctx)
	if err != nil {
		logger.Error("reminder scan failed", slog.Any("error", err))
		return err
	}
	if res.Skipped {
		logger.Info("reminder scan skipped; another scan in progress")
		return nil
	}
	logger.Info("completed reminder scan",
		slog.Int("checked", res.Checked),
		slog.Int("sent", res.Sent),
		slog.Int("failed", res.Failed),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *ReminderScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReminderScan))
	}
	return slog.Default().With(slog.String("job", TaskReminderScan))
}

func (j *ReminderScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

// ReminderScanCron registers the automatic scan at spec. Overlapping cron ticks
// collapse into one queued task.
func ReminderScanCron(spec string) (CronRegistration, error) {
	task, err := NewReminderScanTask("cron")
	if err != nil {
		return CronRegistration{}, err
	}
	return CronRegistration{
		Spec:    spec,
		Task:    task,
		Options: []asynq.Option{asynq.Unique(time.Hour), asynq.MaxRetry(3)},
	}, nil
}
