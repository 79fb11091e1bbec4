package jobs

import (
	"encoding/json"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReminderScan runs the daily automatic reminder scan.
	TaskReminderScan = "reminders:scan"
	// TaskReminderDeliver emails one recorded reminder to the customer.
	TaskReminderDeliver = "reminders:deliver"
)

// ReminderScanPayload identifies what triggered a scan.
type ReminderScanPayload struct {
	Trigger string `json:"trigger"`
}

// ReminderDeliverPayload describes the information required to email a reminder.
type ReminderDeliverPayload struct {
	To            string `json:"to"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	InvoiceID     string `json:"invoice_id"`
	InvoiceNumber string `json:"invoice_number"`
}

// NewReminderScanTask constructs an Asynq task for the reminder scan.
func NewReminderScanTask(trigger string) (*asynq.Task, error) {
	trigger = strings.TrimSpace(trigger)
	if trigger == "" {
		trigger = "cron"
	}
	body, err := json.Marshal(ReminderScanPayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReminderScan, body, asynq.Queue(QueueDefault)), nil
}

// NewReminderDeliverTask constructs an Asynq task that emails a reminder.
func NewReminderDeliverTask(payload ReminderDeliverPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReminderDeliver, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}
