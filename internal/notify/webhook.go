package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookNotifier posts outcomes to a Slack-compatible incoming
// webhook.
type WebhookNotifier struct {
	webhookURL string
	client     *http.Client
}

// WebhookMessage is the webhook payload
type WebhookMessage struct {
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is a colored detail block under the message
type Attachment struct {
	Color  string `json:"color"`
	Title  string `json:"title"`
	Text   string `json:"text"`
	Footer string `json:"footer,omitempty"`
}

// NewWebhookNotifier creates a webhook notifier. An empty URL yields a
// disabled notifier.
func NewWebhookNotifier(webhookURL string) *WebhookNotifier {
	return &WebhookNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ToJSON converts the message to JSON
func (m *WebhookMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// outcomeColor maps an attempt outcome to a webhook attachment color.
func outcomeColor(n Notification) string {
	switch n.Outcome {
	case "recorded":
		return "good"
	case "duplicate", "canceled":
		return "warning"
	default:
		return "danger"
	}
}

// Send posts the notification to the webhook
func (w *WebhookNotifier) Send(n Notification) error {
	if w.webhookURL == "" {
		return nil // Disabled
	}

	msg := WebhookMessage{
		Text: n.Title(),
		Attachments: []Attachment{
			{
				Color:  outcomeColor(n),
				Title:  n.Run,
				Text:   n.Message,
				Footer: "kmunity",
			},
		},
	}

	payload, err := msg.ToJSON()
	if err != nil {
		return err
	}

	resp, err := w.client.Post(w.webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}

	return nil
}
