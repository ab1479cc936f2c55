package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// LogChannel writes alerts to the process log. It never fails, which makes
// it a safe default channel.
type LogChannel struct{}

func (LogChannel) Name() string { return "log" }

func (LogChannel) Send(_ context.Context, a *Alert) error {
	log.Printf("[alert:%s] %s (source: %s, id: %s)", a.Level, a.Message, a.Source, a.ID)
	return nil
}

// EmailChannel delivers alerts through SendGrid.
type EmailChannel struct {
	apiKey      string
	fromName    string
	fromAddress string
	to          string
}

func NewEmailChannel(apiKey, fromName, fromAddress, to string) *EmailChannel {
	return &EmailChannel{
		apiKey:      apiKey,
		fromName:    fromName,
		fromAddress: fromAddress,
		to:          to,
	}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(_ context.Context, a *Alert) error {
	subject := fmt.Sprintf("[%s] alert from %s", a.Level, a.Source)
	body := fmt.Sprintf("%s\n\nalert id: %s\nraised at: %s", a.Message, a.ID, a.CreatedAt.Format("2006-01-02 15:04:05"))

	from := mail.NewEmail(c.fromName, c.fromAddress)
	to := mail.NewEmail("", c.to)
	email := mail.NewSingleEmail(from, subject, to, body, body)

	client := sendgrid.NewSendClient(c.apiKey)
	response, err := client.Send(email)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d", response.StatusCode)
	}

	return nil
}

// WebhookChannel posts the alert as JSON to a chat/incident webhook URL.
type WebhookChannel struct {
	url    string
	client *http.Client
}

func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{
		url:    url,
		client: http.DefaultClient,
	}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Send(ctx context.Context, a *Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close webhook response body: %v", err)
		}
	}()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
