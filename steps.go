package contactflow

import (
	"context"
	"time"

	"github.com/mariusgr/contactflow/pkg/api"
	"github.com/mariusgr/contactflow/pkg/notify"
)

// Step names of the standard contact workflow. Order matters only for
// reporting: the channels are independent and a failure of one never
// suppresses the other.
const (
	WorkflowContactSubmission = "contact-submission"

	StepSendChatNotification  = "sendChatNotification"
	StepSendEmailNotification = "sendEmailNotification"
)

// SendStep adapts a notification sender into a workflow step.
func SendStep(s notify.Sender) StepFunc {
	return func(ctx context.Context, payload api.ContactPayload) error {
		return s.Send(ctx, payload)
	}
}

// DefaultSendRetry is the retry policy applied to notification steps of the
// standard contact workflow: up to 3 attempts with exponential backoff.
func DefaultSendRetry() RetryPolicy {
	return Retry(3).
		WithExponentialBackoff(100*time.Millisecond, 2.0, 2*time.Second).
		Policy()
}

// ContactWorkflow builds the standard two-channel contact workflow:
// a chat-ops notification followed by a transactional email, each with
// bounded retries.
func ContactWorkflow(chat, email notify.Sender) *FlowBuilder {
	return New(WorkflowContactSubmission).
		StepWithRetry(StepSendChatNotification, SendStep(chat), DefaultSendRetry()).
		StepWithRetry(StepSendEmailNotification, SendStep(email), DefaultSendRetry())
}
