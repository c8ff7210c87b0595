package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/mariusgr/contactflow/pkg/api"
)

// Cancellation is cooperative: the step that is running finishes, every
// later step is skipped and marked FAILED.
func TestCancelSkipsRemainingSteps(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()

	var emailCalls int
	wf := api.WorkflowDefinition{
		Name: "contact-submission",
		Steps: []api.StepDefinition{
			{
				Name: "sendChatNotification",
				Fn: func(ctx context.Context, payload api.ContactPayload) error {
					// Request cancellation while the first step is in flight.
					if err := engine.Cancel(ctx, "cancel-1"); err != nil {
						t.Errorf("Cancel failed: %v", err)
					}
					return nil
				},
			},
			{
				Name: "sendEmailNotification",
				Fn: func(ctx context.Context, payload api.ContactPayload) error {
					emailCalls++
					return nil
				},
			},
		},
	}
	if err := engine.RegisterWorkflow(wf); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}

	res, err := engine.Submit(ctx, "contact-submission", testPayload(), "cancel-1")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if res.Status != api.StatusFailed {
		t.Fatalf("expected canceled run FAILED, got %q", res.Status)
	}
	if emailCalls != 0 {
		t.Fatalf("expected email step skipped after cancel, calls=%d", emailCalls)
	}

	chat := res.Steps[0]
	if chat.Status != api.StatusSucceeded {
		t.Fatalf("in-flight step should finish normally: %+v", chat)
	}
	email := res.Steps[1]
	if email.Status != api.StatusFailed {
		t.Fatalf("expected email FAILED: %+v", email)
	}
	if !strings.Contains(email.LastError, "canceled") {
		t.Fatalf("expected cancel reason on skipped step, got %q", email.LastError)
	}
}

func TestCancelTerminalRunFails(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()

	wf := api.WorkflowDefinition{
		Name:  "ok",
		Steps: []api.StepDefinition{{Name: "s", Fn: noop}},
	}
	if err := engine.RegisterWorkflow(wf); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}
	if _, err := engine.Submit(ctx, "ok", testPayload(), "cancel-done"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if err := engine.Cancel(ctx, "cancel-done"); err == nil {
		t.Fatalf("expected Cancel of a terminal run to fail")
	}
}

func TestCancelUnknownRunFails(t *testing.T) {
	engine := newTestEngine()

	if err := engine.Cancel(context.Background(), "does-not-exist"); err == nil {
		t.Fatalf("expected Cancel of an unknown run to fail")
	}
}
