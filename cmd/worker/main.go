package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/billdesk/internal/app"
	"github.com/odyssey-erp/billdesk/jobs"
)

func main() {
	if app.SkipStartup(nil, "worker") {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	queue, err := jobs.NewClient(redisOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	services, err := app.Build(ctx, cfg, logger, app.BuildOptions{
		Dispatcher: jobs.NewQueueDispatcher(queue, cfg.CompanyName, logger),
	})
	if err != nil {
		return err
	}
	defer services.Close()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	scanCron, err := jobs.ReminderScanCron(cfg.ReminderCron)
	if err != nil {
		return err
	}

	scanJob := jobs.NewReminderScanJob(services.Scheduler, logger, services.JobMetrics)
	deliverJob := jobs.NewReminderDeliverJob(jobs.NewSMTPMailer(jobs.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}), logger, services.JobMetrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Location:    loc,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReminderScan, Handler: scanJob.Handle},
			{Type: jobs.TaskReminderDeliver, Handler: deliverJob.Handle},
		},
		Cron: []jobs.CronRegistration{scanCron},
	})
	if err != nil {
		return err
	}
	return worker.Run(ctx)
}
