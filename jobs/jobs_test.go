package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/billdesk/internal/jobs"
	"github.com/odyssey-erp/billdesk/internal/reminders"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubScanner struct {
	res   reminders.ScanResult
	err   error
	calls int
}

func (s *stubScanner) Scan(context.Context) (reminders.ScanResult, error) {
	s.calls++
	return s.res, s.err
}

type stubMailer struct {
	sent []Message
	err  error
}

func (m *stubMailer) Send(_ context.Context, msg Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type stubEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (e *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.tasks = append(e.tasks, task)
	e.opts = append(e.opts, opts)
	return &asynq.TaskInfo{Type: task.Type(), Queue: QueueDefault}, nil
}

func TestNewReminderScanTaskDefaultsTrigger(t *testing.T) {
	task, err := NewReminderScanTask("  ")
	require.NoError(t, err)
	require.Equal(t, TaskReminderScan, task.Type())

	var payload ReminderScanPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, "cron", payload.Trigger)
}

func TestReminderScanJobRecordsRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	scanner := &stubScanner{res: reminders.ScanResult{Checked: 4, Sent: 2}}
	job := NewReminderScanJob(scanner, discard, metrics)

	task, err := NewReminderScanTask("manual")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, scanner.calls)
	count, err := testutil.GatherAndCount(reg, "billdesk_jobs_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestReminderScanJobPropagatesFailure(t *testing.T) {
	boom := errors.New("store down")
	job := NewReminderScanJob(&stubScanner{err: boom}, discard, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	err := job.Handle(context.Background(), asynq.NewTask(TaskReminderScan, nil))
	require.ErrorIs(t, err, boom)
}

func TestReminderScanJobRejectsBadPayload(t *testing.T) {
	job := NewReminderScanJob(&stubScanner{}, discard, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskReminderScan, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestReminderScanCronIsUnique(t *testing.T) {
	entry, err := ReminderScanCron("0 9 * * *")
	require.NoError(t, err)
	require.Equal(t, "0 9 * * *", entry.Spec)
	require.Equal(t, TaskReminderScan, entry.Task.Type())
	require.Len(t, entry.Options, 2)
}

func TestReminderDeliverJobSendsMail(t *testing.T) {
	mailer := &stubMailer{}
	job := NewReminderDeliverJob(mailer, discard, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewReminderDeliverTask(ReminderDeliverPayload{
		To:            "billing@acme.test",
		Subject:       "Payment reminder: invoice INV-1001",
		Body:          "Please pay.",
		InvoiceID:     "inv-1",
		InvoiceNumber: "INV-1001",
	})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, mailer.sent, 1)
	require.Equal(t, "billing@acme.test", mailer.sent[0].To)
	require.Equal(t, "Please pay.", mailer.sent[0].Body)
}

func TestReminderDeliverJobSkipsRetryOnInvalidMessage(t *testing.T) {
	mailer := &stubMailer{err: ErrInvalidMessage}
	job := NewReminderDeliverJob(mailer, discard, nil)
	task, err := NewReminderDeliverTask(ReminderDeliverPayload{InvoiceID: "inv-1"})
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestReminderDeliverJobRetriesTransientFailure(t *testing.T) {
	boom := errors.New("connection refused")
	job := NewReminderDeliverJob(&stubMailer{err: boom}, discard, nil)
	task, err := NewReminderDeliverTask(ReminderDeliverPayload{To: "a@b.test"})
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestSMTPMailerBuildsMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	mailer := NewSMTPMailer(SMTPConfig{Host: "localhost", Port: 1025, From: "ar@billdesk.test"})
	mailer.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		require.Nil(t, a)
		return nil
	}

	err := mailer.Send(context.Background(), Message{To: "billing@acme.test", Subject: "Reminder", Body: "line one\nline two"})
	require.NoError(t, err)
	require.Equal(t, "localhost:1025", gotAddr)
	require.Equal(t, "ar@billdesk.test", gotFrom)
	require.Equal(t, []string{"billing@acme.test"}, gotTo)
	require.Contains(t, string(gotMsg), "Subject: Reminder\r\n")
	require.Contains(t, string(gotMsg), "line one\r\nline two")
}

func TestSMTPMailerRejectsHeaderInjection(t *testing.T) {
	mailer := NewSMTPMailer(SMTPConfig{Host: "localhost", Port: 25})
	mailer.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called")
		return nil
	}

	err := mailer.Send(context.Background(), Message{To: "a@b.test\r\nBcc: x@y.test", Subject: "x"})
	require.ErrorIs(t, err, ErrInvalidMessage)
	err = mailer.Send(context.Background(), Message{To: " "})
	require.ErrorIs(t, err, ErrInvalidMessage)
}

func TestQueueDispatcherEnqueuesWhenEmailPresent(t *testing.T) {
	queue := &stubEnqueuer{}
	d := NewQueueDispatcher(queue, "Acme Supplies", discard)

	r := reminders.Reminder{
		InvoiceID:     "inv-1",
		InvoiceNumber: "INV-1001",
		CustomerEmail: "billing@acme.test",
		Balance:       decimal.NewFromInt(100),
		Date:          "2026-10-16",
		Mode:          reminders.ModeAuto,
		Message:       "Please pay.",
	}
	require.NoError(t, d.Dispatch(context.Background(), r))
	require.Len(t, queue.tasks, 1)
	require.Equal(t, TaskReminderDeliver, queue.tasks[0].Type())
	require.Len(t, queue.opts[0], 1)

	var payload ReminderDeliverPayload
	require.NoError(t, json.Unmarshal(queue.tasks[0].Payload(), &payload))
	require.Equal(t, "billing@acme.test", payload.To)
	require.Equal(t, "Acme Supplies - Payment reminder: invoice INV-1001", payload.Subject)

	r.Mode = reminders.ModeManual
	require.NoError(t, d.Dispatch(context.Background(), r))
	require.Empty(t, queue.opts[1])
}

func TestQueueDispatcherSkipsMissingEmail(t *testing.T) {
	queue := &stubEnqueuer{}
	d := NewQueueDispatcher(queue, "", discard)
	require.NoError(t, d.Dispatch(context.Background(), reminders.Reminder{InvoiceID: "inv-1"}))
	require.Empty(t, queue.tasks)
}

func TestQueueDispatcherTreatsDuplicateAsDelivered(t *testing.T) {
	d := NewQueueDispatcher(&stubEnqueuer{err: asynq.ErrTaskIDConflict}, "", discard)
	err := d.Dispatch(context.Background(), reminders.Reminder{InvoiceID: "inv-1", CustomerEmail: "a@b.test", Mode: reminders.ModeAuto})
	require.NoError(t, err)

	boom := errors.New("redis unavailable")
	d = NewQueueDispatcher(&stubEnqueuer{err: boom}, "", discard)
	err = d.Dispatch(context.Background(), reminders.Reminder{InvoiceID: "inv-1", CustomerEmail: "a@b.test"})
	require.ErrorIs(t, err, boom)
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `"queue":"default"`))
}
