package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mariusgr/contactflow/pkg/api"
)

func notifyPayload() api.ContactPayload {
	return api.ContactPayload{
		Name:            "Ada Lovelace",
		Company:         "Analytical Engines Ltd",
		Phone:           "+44 20 7946 0000",
		Email:           "ada@example.com",
		Message:         "I would like a demo.",
		PrivacyAccepted: true,
	}
}

func TestSlackSenderPostsFormattedMessage(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := &SlackWebhookSender{WebhookURL: srv.URL, Channel: "#contact"}
	if err := s.Send(context.Background(), notifyPayload()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if got["channel"] != "#contact" {
		t.Fatalf("channel not forwarded: %+v", got)
	}
	text := got["text"]
	for _, want := range []string{"Ada Lovelace", "ada@example.com", "Analytical Engines Ltd", "I would like a demo."} {
		if !strings.Contains(text, want) {
			t.Fatalf("message missing %q:\n%s", want, text)
		}
	}
}

func TestSlackSenderClassifiesFailures(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"server error", http.StatusInternalServerError, true},
		{"rate limited", http.StatusTooManyRequests, true},
		{"bad request", http.StatusBadRequest, false},
		{"forbidden", http.StatusForbidden, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			s := &SlackWebhookSender{WebhookURL: srv.URL}
			err := s.Send(context.Background(), notifyPayload())
			if err == nil {
				t.Fatal("expected an error")
			}
			var serr *api.SenderError
			if !errors.As(err, &serr) {
				t.Fatalf("expected *api.SenderError, got %T", err)
			}
			if serr.Channel != "slack" {
				t.Fatalf("unexpected channel %q", serr.Channel)
			}
			if api.IsRetryable(err) != tc.retryable {
				t.Fatalf("status %d: retryable = %v, want %v", tc.status, api.IsRetryable(err), tc.retryable)
			}
		})
	}
}

func TestSlackSenderConnectionFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // dial will now be refused

	s := &SlackWebhookSender{WebhookURL: srv.URL}
	err := s.Send(context.Background(), notifyPayload())
	if err == nil {
		t.Fatal("expected an error")
	}
	if !api.IsRetryable(err) {
		t.Fatalf("connection failure should be retryable, got %v", err)
	}
}

func TestSlackSenderRequiresConfiguration(t *testing.T) {
	s := &SlackWebhookSender{}
	err := s.Send(context.Background(), notifyPayload())
	if err == nil {
		t.Fatal("expected an error")
	}
	if api.IsRetryable(err) {
		t.Fatalf("missing configuration must be permanent, got %v", err)
	}
}
