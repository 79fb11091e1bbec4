package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/billdesk/internal/jobs"
	"github.com/odyssey-erp/billdesk/internal/reminders"
)

// ErrInvalidMessage marks a delivery payload that can never be sent.
var ErrInvalidMessage = errors.New("jobs: invalid reminder message")

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends a single email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig holds the outgoing mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer delivers mail through a plain SMTP relay.
type SMTPMailer struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer constructs a mailer for the relay in cfg.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

// Send writes msg to the relay. Context cancellation is honoured before dialing only.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("%w: missing recipient", ErrInvalidMessage)
	}
	if strings.ContainsAny(msg.To+msg.Subject, "\r\n") {
		return fmt.Errorf("%w: header injection", ErrInvalidMessage)
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	return m.send(addr, auth, m.cfg.From, []string{msg.To}, buildMessage(m.cfg.From, msg))
}

func buildMessage(from string, msg Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

// ReminderDeliverJob emails reminders handed over by the scheduler.
type ReminderDeliverJob struct {
	Mailer  Mailer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReminderDeliverJob constructs the job handler.
func NewReminderDeliverJob(mailer Mailer, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReminderDeliverJob {
	return &ReminderDeliverJob{Mailer: mailer, Logger: logger, Metrics: metrics}
}

// Handle processes TaskReminderDeliver tasks.
func (j *ReminderDeliverJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.Mailer == nil {
		return asynq.SkipRetry
	}
	var payload ReminderDeliverPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskReminderDeliver)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(
		slog.String("invoice_id", payload.InvoiceID),
		slog.String("invoice_number", payload.InvoiceNumber),
	)
	err = j.Mailer.Send(ctx, Message{To: payload.To, Subject: payload.Subject, Body: payload.Body})
	if errors.Is(err, ErrInvalidMessage) {
		logger.Warn("dropping undeliverable reminder", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if err != nil {
		logger.Error("reminder delivery failed", slog.Any("error", err))
		return err
	}
	logger.Info("reminder emailed", slog.String("to", payload.To))
	return nil
}

func (j *ReminderDeliverJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReminderDeliver))
	}
	return slog.Default().With(slog.String("job", TaskReminderDeliver))
}

func (j *ReminderDeliverJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

// Enqueuer submits tasks; *asynq.Client satisfies it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueDispatcher hands recorded reminders to the worker for email delivery.
// Reminders without a customer email are only logged.
type QueueDispatcher struct {
	queue   Enqueuer
	company string
	logger  *slog.Logger
}

// NewQueueDispatcher constructs a dispatcher backed by queue.
func NewQueueDispatcher(queue Enqueuer, company string, logger *slog.Logger) *QueueDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueDispatcher{queue: queue, company: company, logger: logger}
}

// Dispatch implements reminders.Dispatcher.
func (d *QueueDispatcher) Dispatch(ctx context.Context, r reminders.Reminder) error {
	if strings.TrimSpace(r.CustomerEmail) == "" {
		d.logger.Info("reminder has no recipient; not emailed",
			slog.String("invoice_id", r.InvoiceID),
			slog.String("invoice_number", r.InvoiceNumber))
		return nil
	}
	task, err := NewReminderDeliverTask(ReminderDeliverPayload{
		To:            r.CustomerEmail,
		Subject:       reminderSubject(d.company, r),
		Body:          r.Message,
		InvoiceID:     r.InvoiceID,
		InvoiceNumber: r.InvoiceNumber,
	})
	if err != nil {
		return err
	}
	var opts []asynq.Option
	if r.Mode == reminders.ModeAuto {
		// Automatic reminders go out at most once per invoice and day.
		opts = append(opts, asynq.TaskID(TaskReminderDeliver+":"+r.InvoiceID+":"+r.Date))
	}
	if _, err := d.queue.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("jobs: enqueue reminder %s: %w", r.InvoiceNumber, err)
	}
	return nil
}

func reminderSubject(company string, r reminders.Reminder) string {
	subject := "Payment reminder: invoice " + r.InvoiceNumber
	if company != "" {
		subject = company + " - " + subject
	}
	return subject
}
