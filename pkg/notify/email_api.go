package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mariusgr/contactflow/pkg/api"
)

// EmailAPISender sends transactional email through an HTTP JSON API
// (Resend-style: POST with a bearer key and a from/to/subject/text body).
type EmailAPISender struct {
	Endpoint string
	APIKey   string
	From     string
	To       string
	Subject  string
	Client   *http.Client
}

// Ensure EmailAPISender implements Sender.
var _ Sender = (*EmailAPISender)(nil)

func (s *EmailAPISender) Name() string { return "email" }

func (s *EmailAPISender) Send(ctx context.Context, payload api.ContactPayload) error {
	if s.Endpoint == "" || s.From == "" || s.To == "" {
		return api.NewPermanentSenderError(s.Name(), "sender is not fully configured", nil)
	}

	subject := s.Subject
	if subject == "" {
		subject = fmt.Sprintf("Contact request from %s", payload.Name)
	}

	body := map[string]any{
		"from":     s.From,
		"to":       []string{s.To},
		"subject":  subject,
		"text":     formatMessage(payload),
		"reply_to": payload.Email,
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return api.NewPermanentSenderError(s.Name(), "encoding message", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(encoded))
	if err != nil {
		return api.NewPermanentSenderError(s.Name(), "building request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	resp, err := httpClient(s.Client).Do(req)
	if err != nil {
		return api.NewRetryableSenderError(s.Name(), "posting message", err)
	}
	defer resp.Body.Close()

	return classifyStatus(s.Name(), resp.StatusCode)
}
