package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/mariusgr/contactflow/pkg/api"
)

// SlackWebhookSender sends messages via a Slack incoming webhook URL.
type SlackWebhookSender struct {
	WebhookURL string
	Channel    string
	Client     *http.Client
}

// Ensure SlackWebhookSender implements Sender.
var _ Sender = (*SlackWebhookSender)(nil)

func (s *SlackWebhookSender) Name() string { return "slack" }

func (s *SlackWebhookSender) Send(ctx context.Context, payload api.ContactPayload) error {
	if s.WebhookURL == "" {
		return api.NewPermanentSenderError(s.Name(), "webhook URL is not configured", nil)
	}

	body := map[string]string{"text": formatMessage(payload)}
	if s.Channel != "" {
		body["channel"] = s.Channel
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return api.NewPermanentSenderError(s.Name(), "encoding message", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(encoded))
	if err != nil {
		return api.NewPermanentSenderError(s.Name(), "building request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient(s.Client).Do(req)
	if err != nil {
		// Dial failures and timeouts are transient from our side.
		return api.NewRetryableSenderError(s.Name(), "posting webhook", err)
	}
	defer resp.Body.Close()

	return classifyStatus(s.Name(), resp.StatusCode)
}
