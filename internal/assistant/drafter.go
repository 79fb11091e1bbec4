// Package assistant drafts reminder texts with the OpenAI chat completion API.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/odyssey-erp/billdesk/internal/reminders"
)

// ErrNoCredential is returned when the drafter is built without an API key.
var ErrNoCredential = errors.New("assistant: no API key configured")

const systemPrompt = "You write short, polite payment reminder emails for a small business. " +
	"Reply with the message body only: no subject line, no placeholders, at most four sentences."

// Config holds the client settings.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Company string
}

// Drafter implements reminders.MessageGenerator.
type Drafter struct {
	client  *openai.Client
	model   string
	company string
}

var _ reminders.MessageGenerator = (*Drafter)(nil)

// New builds a drafter. It returns ErrNoCredential when cfg.APIKey is empty so callers
// can fall back to the reminder template.
func New(cfg Config) (*Drafter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNoCredential
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Drafter{client: openai.NewClientWithConfig(clientCfg), model: model, company: cfg.Company}, nil
}

// DraftReminder asks the model for a reminder text.
func (d *Drafter) DraftReminder(ctx context.Context, draft reminders.Draft) (string, error) {
	const op = "assistant.DraftReminder"

	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       d.model,
		Temperature: 0.4,
		MaxTokens:   300,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: d.prompt(draft),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s: request failed: %w", op, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: no choices returned", op)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (d *Drafter) prompt(draft reminders.Draft) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Customer: %s\n", draft.CustomerName)
	fmt.Fprintf(&b, "Invoice number: %s\n", draft.InvoiceNumber)
	fmt.Fprintf(&b, "Outstanding balance: %s%s\n", draft.Currency, draft.Balance.StringFixed(2))
	switch {
	case draft.DaysUntilDue < 0:
		fmt.Fprintf(&b, "Status: %d days overdue\n", -draft.DaysUntilDue)
	case draft.DaysUntilDue == 0:
		b.WriteString("Status: due today\n")
	default:
		fmt.Fprintf(&b, "Status: due in %d days\n", draft.DaysUntilDue)
	}
	if d.company != "" {
		fmt.Fprintf(&b, "Sign the message as %s.\n", d.company)
	}
	return b.String()
}
