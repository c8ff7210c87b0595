// Package notify contains the notification senders a contact workflow fans
// out to: a chat-ops webhook and a transactional email channel.
//
// Senders never panic and never retry on their own; they classify failures
// as retryable or permanent via api.SenderError and leave the retrying to
// the step executor.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mariusgr/contactflow/pkg/api"
)

// Sender delivers a contact submission to one external channel.
type Sender interface {
	// Name identifies the channel ("slack", "email") and tags errors.
	Name() string

	// Send delivers the payload. Failures are reported as *api.SenderError
	// so the caller can tell transient from permanent ones.
	Send(ctx context.Context, payload api.ContactPayload) error
}

const defaultHTTPTimeout = 10 * time.Second

func httpClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// classifyStatus maps an HTTP response status to a typed sender error.
// Timeouts, rate limits and server errors are worth retrying; the remaining
// 4xx (bad request, auth) are not.
func classifyStatus(channel string, status int) error {
	if status < 400 {
		return nil
	}
	msg := fmt.Sprintf("unexpected status %d", status)
	switch {
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= 500:
		return api.NewRetryableSenderError(channel, msg, nil)
	default:
		return api.NewPermanentSenderError(channel, msg, nil)
	}
}

// formatMessage renders the submission as readable plain text, shared by
// the chat and email channels.
func formatMessage(p api.ContactPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New contact request from %s <%s>\n", p.Name, p.Email)
	if p.Company != "" {
		fmt.Fprintf(&b, "Company: %s\n", p.Company)
	}
	if p.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", p.Phone)
	}
	if p.Locale != "" {
		fmt.Fprintf(&b, "Locale: %s\n", p.Locale)
	}
	fmt.Fprintf(&b, "\n%s\n", p.Message)
	return b.String()
}
