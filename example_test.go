package contactflow_test

import (
	"context"
	"fmt"
	"log"

	"github.com/mariusgr/contactflow"
	"github.com/mariusgr/contactflow/pkg/api"
)

// Example_contactWorkflow demonstrates defining and running the standard
// contact workflow synchronously against an in-memory engine.
func Example_contactWorkflow() {
	ctx := context.Background()
	eng := contactflow.NewInMemoryEngine()

	// Stand-in senders; real deployments use notify.SlackWebhookSender and
	// notify.EmailAPISender or notify.SMTPSender.
	chat := senderFunc(func(ctx context.Context, p api.ContactPayload) error {
		fmt.Printf("chat: new request from %s\n", p.Name)
		return nil
	})
	email := senderFunc(func(ctx context.Context, p api.ContactPayload) error {
		fmt.Printf("email: forwarding %s <%s>\n", p.Name, p.Email)
		return nil
	})

	contactflow.ContactWorkflow(chat, email).MustRegister(eng)

	res, err := contactflow.Submit(ctx, eng, contactflow.WorkflowContactSubmission, api.ContactPayload{
		Name:            "Ada Lovelace",
		Email:           "ada@example.com",
		Message:         "I would like a demo.",
		PrivacyAccepted: true,
	}, "")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("status:", res.Status)
	// Output:
	// chat: new request from Ada Lovelace
	// email: forwarding Ada Lovelace <ada@example.com>
	// status: SUCCEEDED
}

// senderFunc adapts a function to the notify.Sender shape used by the
// example.
type senderFunc func(ctx context.Context, p api.ContactPayload) error

func (f senderFunc) Name() string { return "example" }
func (f senderFunc) Send(ctx context.Context, p api.ContactPayload) error {
	return f(ctx, p)
}
